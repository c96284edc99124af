package core

import (
	"errors"
	"fmt"

	"microcosm/pkg/domain"
)

var (
	// ErrDisconnected is returned when an action without a parent is pruned or removed.
	ErrDisconnected = errors.New("action is disconnected")
	// ErrNotOwned is returned when abandoning a child the parent does not hold.
	ErrNotOwned = errors.New("action is not a child of the parent")
	// ErrForeignAction is returned when linking actions from different trees.
	ErrForeignAction = errors.New("action belongs to another tree")
	// ErrUnknownAction is returned for nil actions or actions missing from history.
	ErrUnknownAction = errors.New("unknown action")
	// ErrDuplicateCommand is returned when a command key is tagged twice.
	ErrDuplicateCommand = errors.New("command already registered")
	// ErrNilCommand is returned when appending without a command.
	ErrNilCommand = errors.New("nil command")
	// ErrCancelled matches rejections produced by cancel or cancelled.
	ErrCancelled = errors.New("action cancelled")
	// ErrRepoShutdown is returned by operations on a repo after Shutdown.
	ErrRepoShutdown = errors.New("repo is shut down")
	// ErrDuplicateDomain is returned when a domain key is added twice.
	ErrDuplicateDomain = errors.New("domain already registered")
)

// UnknownCommandError is returned when a command key is not registered.
type UnknownCommandError struct {
	Key string
}

func (e UnknownCommandError) Error() string {
	return fmt.Sprintf("command %q not registered", e.Key)
}

// RejectionError is the terminal error carried by an action that settled
// with reject, error, cancel or cancelled.
type RejectionError struct {
	ActionID ActionID
	Command  string
	Status   domain.Status
	Payload  any
}

func (e *RejectionError) Error() string {
	if err, ok := e.Payload.(error); ok {
		return fmt.Sprintf("%s %s: %v", e.Command, e.Status, err)
	}
	if e.Payload != nil {
		return fmt.Sprintf("%s %s: %v", e.Command, e.Status, e.Payload)
	}
	return fmt.Sprintf("%s %s", e.Command, e.Status)
}

// Unwrap exposes the payload when it is itself an error.
func (e *RejectionError) Unwrap() error {
	err, _ := e.Payload.(error)
	return err
}

// Is matches ErrCancelled for the cancel phase.
func (e *RejectionError) Is(target error) bool {
	return target == ErrCancelled && e.Status.Phase() == domain.StatusCancel
}
