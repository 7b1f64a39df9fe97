// Package taskerr defines the errors reported by the task engine and the deferred-callback scheduler.
package taskerr

import (
	"errors"
	"fmt"
)

var (
	ErrNotActive          = errors.New("task is not active")
	ErrAlreadyActive      = errors.New("task is already active")
	ErrDisposed           = errors.New("task has been disposed")
	ErrStateRange         = errors.New("state outside reserved range")
	ErrBackwardTransition = errors.New("state transition is not forward")
	ErrIdleOutsideStep    = errors.New("idle called outside of a state step")
	ErrUnknownState       = errors.New("unknown state")
	ErrEmptyRange         = errors.New("task has an empty state range")
	ErrReentrantPump      = errors.New("pump called from within a firing callback")
	ErrReentrantTick      = errors.New("engine tick called from within a task step")
	ErrNegativeDelta      = errors.New("negative time delta")
	ErrNilAction          = errors.New("action must not be nil")
	ErrQueueFull          = errors.New("action queue is full")
)

// ConfigurationError is returned when a component is configured with invalid options.
type ConfigurationError struct {
	Component string
	Err       error
}

var _ error = (*ConfigurationError)(nil)

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("configuration error: %s", e.Component)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Component, e.Err.Error())
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// MisuseError is the panic value raised when the task or scheduler contract is violated.
// Op names the operation that was misused and Subject identifies the task or handle involved.
type MisuseError struct {
	Op      string
	Subject string
	Err     error
}

var _ error = (*MisuseError)(nil)

func (e *MisuseError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Err.Error())
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Subject, e.Err.Error())
}

func (e *MisuseError) Unwrap() error {
	return e.Err
}

// Misuse panics with a MisuseError.
func Misuse(op, subject string, err error) {
	panic(&MisuseError{Op: op, Subject: subject, Err: err})
}
