package gesture

// Action is the instruction given by the right hand in the current frame.
type Action int

const (
	ActionIdle Action = iota
	ActionCursor
	ActionTap
	ActionDrag
	ActionScroll
	ActionFlick
	ActionPush
	ActionCancel
)

func (a Action) String() string {
	switch a {
	case ActionIdle:
		return "idle"
	case ActionCursor:
		return "cursor"
	case ActionTap:
		return "tap"
	case ActionDrag:
		return "drag"
	case ActionScroll:
		return "scroll"
	case ActionFlick:
		return "flick"
	case ActionPush:
		return "push"
	case ActionCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Direction of a confirmed swipe.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionUp
	DirectionDown
	DirectionLeft
	DirectionRight
)

func (d Direction) String() string {
	switch d {
	case DirectionNone:
		return ""
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	case DirectionLeft:
		return "left"
	case DirectionRight:
		return "right"
	default:
		return "unknown"
	}
}

// Result is the outcome of one engine update. Direction is set only when
// Action is ActionFlick.
type Result struct {
	Mode      Mode
	Action    Action
	Direction Direction
}
