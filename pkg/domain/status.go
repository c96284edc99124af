package domain

import (
	"fmt"
	"time"
)

// Status is the lifecycle stage reported by an action.
type Status string

const (
	StatusInactive  Status = "inactive"
	StatusOpen      Status = "open"
	StatusUpdate    Status = "update"
	StatusLoading   Status = "loading"
	StatusDone      Status = "done"
	StatusResolve   Status = "resolve"
	StatusError     Status = "error"
	StatusReject    Status = "reject"
	StatusCancel    Status = "cancel"
	StatusCancelled Status = "cancelled"
)

var resolution = map[Status]bool{
	StatusInactive:  false,
	StatusOpen:      false,
	StatusUpdate:    false,
	StatusLoading:   false,
	StatusDone:      true,
	StatusResolve:   true,
	StatusError:     true,
	StatusReject:    true,
	StatusCancel:    true,
	StatusCancelled: true,
}

// Statuses lists every known status in declaration order.
func Statuses() []Status {
	return []Status{
		StatusInactive, StatusOpen, StatusUpdate, StatusLoading, StatusDone,
		StatusResolve, StatusError, StatusReject, StatusCancel, StatusCancelled,
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := resolution[s]
	return ok
}

// Settled reports whether s ends the action.
func (s Status) Settled() bool { return resolution[s] }

// Failed reports whether s ends the action unsuccessfully.
func (s Status) Failed() bool {
	switch s.Phase() {
	case StatusReject, StatusCancel:
		return true
	default:
		return false
	}
}

// Phase collapses alias statuses onto the four-phase model
// open -> update* -> resolve | reject | cancel.
func (s Status) Phase() Status {
	switch s {
	case StatusLoading, StatusUpdate:
		return StatusUpdate
	case StatusDone, StatusResolve:
		return StatusResolve
	case StatusError, StatusReject:
		return StatusReject
	case StatusCancel, StatusCancelled:
		return StatusCancel
	default:
		return s
	}
}

// ParseStatus validates a raw status name.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// Revision is one status transition emitted by an action.
type Revision struct {
	Status    Status    `json:"status"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
