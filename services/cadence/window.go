package cadence

import (
	"time"

	"github.com/cppla/challengehub/models"
)

// Window is the half-open interval [StartAt, EndAt) during which submissions are accepted.
type Window struct {
	StartAt time.Time
	EndAt   time.Time
}

// WindowOf returns the challenge's own start/end window without any grace.
func WindowOf(ch *models.Challenge) Window {
	return Window{StartAt: ch.StartAt, EndAt: ch.EndAt}
}

// Started reports whether at is at or after StartAt.
func (w Window) Started(at time.Time) bool {
	return !at.Before(w.StartAt)
}

// Ended reports whether at is at or after EndAt.
func (w Window) Ended(at time.Time) bool {
	return !at.Before(w.EndAt)
}

// Contains reports whether at falls inside the window.
func (w Window) Contains(at time.Time) bool {
	return w.Started(at) && !w.Ended(at)
}
