package capture

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/detector"
)

var (
	leftColor  = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	rightColor = color.RGBA{R: 255, G: 0, B: 0, A: 0}
)

// Overlay is the state drawn onto a debug frame.
type Overlay struct {
	Mode   string
	Action string
	Left   *detector.HandLandmarks
	Right  *detector.HandLandmarks
}

// Draw writes the mode and action labels onto frame and marks the index
// fingertip of each tracked hand. Pixel coordinates of the landmarks must
// match the frame size.
func (o Overlay) Draw(frame *gocv.Mat) {
	if frame == nil || frame.Empty() {
		return
	}

	gocv.PutText(frame, "Mode: "+o.Mode, image.Pt(10, 30), gocv.FontHersheySimplex, 0.7, leftColor, 2)
	gocv.PutText(frame, "Action: "+o.Action, image.Pt(10, 60), gocv.FontHersheySimplex, 0.7, rightColor, 2)

	if o.Left != nil {
		tip := o.Left.Points[detector.IndexTip]
		gocv.Circle(frame, image.Pt(tip.PX, tip.PY), 5, leftColor, -1)
	}
	if o.Right != nil {
		tip := o.Right.Points[detector.IndexTip]
		gocv.Circle(frame, image.Pt(tip.PX, tip.PY), 5, rightColor, -1)
	}
}
