// Package access decides whether an actor may still change a booking.
package access

import (
	"errors"
	"fmt"
	"time"

	"github.com/tutorhub/tutorhub/internal/utils"
	"github.com/tutorhub/tutorhub/pkg/booking"
	"github.com/tutorhub/tutorhub/pkg/user"
)

var (
	ErrForbidden = errors.New("not allowed to modify this booking")
	ErrTooLate   = errors.New("booking can no longer be modified")
)

type Policy struct {
	clock  utils.Clock
	window time.Duration
}

// NewPolicy creates a policy where students must act more than window before the start.
func NewPolicy(clock utils.Clock, window time.Duration) *Policy {
	return &Policy{clock: clock, window: window}
}

func (p *Policy) Window() time.Duration {
	return p.window
}

// CanModify reports whether actor may cancel or reschedule b now.
// Admins and the booking's instructor are not bound by the window.
func (p *Policy) CanModify(actor user.User, b booking.Booking) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.Id == b.InstructorId {
		return nil
	}
	if actor.Id != b.StudentId {
		return ErrForbidden
	}
	return p.checkWindow(b.StartTime())
}

// CanBookAt applies the same window to a student moving a booking to a new start.
func (p *Policy) CanBookAt(actor user.User, instructorId int, start time.Time) error {
	if actor.IsAdmin() || actor.Id == instructorId {
		return nil
	}
	return p.checkWindow(start)
}

func (p *Policy) checkWindow(start time.Time) error {
	deadline := start.Add(-p.window)
	if !p.clock.Now().Before(deadline) {
		return fmt.Errorf("%w: changes close %s before the start", ErrTooLate, p.window)
	}
	return nil
}
