// Package trial tracks anonymous usage with a counter held by the client.
package trial

import (
	"errors"
	"time"
)

const (
	Max    = 3
	Window = 24 * time.Hour
)

var ErrExhausted = errors.New("you have used your 3 free trials, sign in to continue")

type Counter struct {
	Remaining int       `json:"remaining"`
	LastReset time.Time `json:"lastReset"`
}

func fresh(now time.Time) Counter {
	return Counter{Remaining: Max, LastReset: now}
}

// Read returns the effective counter at now. A nil counter or one whose
// window has elapsed reads as full.
func Read(c *Counter, now time.Time) Counter {
	if c == nil || now.Sub(c.LastReset) >= Window {
		return fresh(now)
	}
	return Counter{Remaining: min(max(c.Remaining, 0), Max), LastReset: c.LastReset}
}

// Consume spends one trial and returns the new counter to store.
func Consume(c *Counter, now time.Time) (Counter, error) {
	cur := Read(c, now)
	if cur.Remaining <= 0 {
		return cur, ErrExhausted
	}
	cur.Remaining--
	return cur, nil
}
