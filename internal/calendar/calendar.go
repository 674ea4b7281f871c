// Package calendar schedules meetings on a user's calendar.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventParams describes a meeting to create.
type EventParams struct {
	UserID      string
	Summary     string
	Description string
	StartTime   time.Time
	EndTime     time.Time
	Attendees   []string
	Meet        bool // attach a video conference link
}

// Scheduler creates calendar events and returns a link to the result.
type Scheduler interface {
	CreateEvent(ctx context.Context, p EventParams) (string, error)
}

var (
	// ErrNotAuthorized means the user has not granted calendar access.
	ErrNotAuthorized = errors.New("user has not authorized calendar access")
	// ErrInvalidEvent means the event parameters were rejected locally.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrInvalidState means an OAuth callback did not match a pending
	// authorization.
	ErrInvalidState = errors.New("unknown or expired oauth state")
)

// CalendarError wraps any failure talking to the calendar provider.
type CalendarError struct {
	Op     string
	UserID string
	Err    error
}

func (e *CalendarError) Error() string {
	return fmt.Sprintf("calendar %s for %q: %v", e.Op, e.UserID, e.Err)
}

func (e *CalendarError) Unwrap() error { return e.Err }

// Validate checks the fields every provider needs.
func (p EventParams) Validate() error {
	switch {
	case p.UserID == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidEvent)
	case strings.TrimSpace(p.Summary) == "":
		return fmt.Errorf("%w: summary is required", ErrInvalidEvent)
	case p.StartTime.IsZero() || p.EndTime.IsZero():
		return fmt.Errorf("%w: start and end times are required", ErrInvalidEvent)
	case p.EndTime.Before(p.StartTime):
		return fmt.Errorf("%w: end time is before start time", ErrInvalidEvent)
	}
	return nil
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTime accepts RFC 3339 or a zone-less ISO date-time, which is read
// as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse time %q", ErrInvalidEvent, s)
}
