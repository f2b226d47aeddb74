package store

import (
	"database/sql"
	"time"
)

// Point is an optional fingertip position in normalized coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Event is one recorded transition. Left and Right are the index
// fingertips of each hand, nil when that hand was absent.
type Event struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
	Mode      string    `json:"mode"`
	Action    string    `json:"action"`
	Direction string    `json:"direction,omitempty"`
	Left      *Point    `json:"left,omitempty"`
	Right     *Point    `json:"right,omitempty"`
}

// EventRepository provides access to events.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Insert appends e and fills its ID.
func (r *EventRepository) Insert(e *Event) error {
	lx, ly := nullPoint(e.Left)
	rx, ry := nullPoint(e.Right)

	result, err := r.db.Exec(
		`INSERT INTO events (session_id, at, mode, action, direction, left_x, left_y, right_x, right_y)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.At.UTC(), e.Mode, e.Action, e.Direction, lx, ly, rx, ry,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// List returns the newest events first. An empty sessionID spans all
// sessions; a non-positive limit returns everything.
func (r *EventRepository) List(sessionID string, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT id, session_id, at, mode, action, direction, left_x, left_y, right_x, right_y
		 FROM events WHERE (? = '' OR session_id = ?)
		 ORDER BY id DESC LIMIT ?`,
		sessionID, sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		e := &Event{}
		var lx, ly, rx, ry sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.At, &e.Mode, &e.Action, &e.Direction, &lx, &ly, &rx, &ry); err != nil {
			return nil, err
		}
		e.Left = pointFrom(lx, ly)
		e.Right = pointFrom(rx, ry)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// Count returns the number of events in a session, or in all sessions
// when sessionID is empty.
func (r *EventRepository) Count(sessionID string) (int, error) {
	var n int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM events WHERE (? = '' OR session_id = ?)`,
		sessionID, sessionID,
	).Scan(&n)
	return n, err
}

func nullPoint(p *Point) (sql.NullFloat64, sql.NullFloat64) {
	if p == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: p.X, Valid: true}, sql.NullFloat64{Float64: p.Y, Valid: true}
}

func pointFrom(x, y sql.NullFloat64) *Point {
	if !x.Valid || !y.Valid {
		return nil
	}
	return &Point{X: x.Float64, Y: y.Float64}
}
