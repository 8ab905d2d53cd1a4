package session

import (
	"errors"
	"fmt"
)

// ErrReferencedEntity is returned by Remove when a tracked entity still
// references the removed one through a non-nullable reference.
var ErrReferencedEntity = errors.New("entity is still referenced")

// ErrNotTracked is returned when a state does not belong to the session.
var ErrNotTracked = errors.New("entity is not tracked by this session")

// ErrRemoved is returned when a removed entity is mutated.
var ErrRemoved = errors.New("entity is removed")

// FlushErrorCode categorizes flush failures.
type FlushErrorCode string

const (
	// ErrCodeKeyGeneration indicates the durable key generator failed
	// while remapping temporary keys.
	ErrCodeKeyGeneration FlushErrorCode = "KEY_GENERATION_FAILED"

	// ErrCodePlanFailed indicates the action generator failed.
	ErrCodePlanFailed FlushErrorCode = "PLAN_FAILED"

	// ErrCodeExecutionFailed indicates the executor rejected the plan.
	ErrCodeExecutionFailed FlushErrorCode = "EXECUTION_FAILED"
)

// FlushError reports a failed flush. The session state is unchanged apart
// from keys assigned by the remap step.
type FlushError struct {
	// Code identifies the failed pipeline step.
	Code FlushErrorCode

	// Seq is the flush sequence number.
	Seq int64

	// Actions is the number of actions planned before the failure.
	Actions int

	Err error
}

// Error implements the error interface.
func (e *FlushError) Error() string {
	if e.Actions > 0 {
		return fmt.Sprintf("%s: flush %d (%d actions): %v", e.Code, e.Seq, e.Actions, e.Err)
	}
	return fmt.Sprintf("%s: flush %d: %v", e.Code, e.Seq, e.Err)
}

func (e *FlushError) Unwrap() error { return e.Err }

// IsExecutionError reports whether err is a flush rejected by the executor.
func IsExecutionError(err error) bool {
	return hasCode(err, ErrCodeExecutionFailed)
}

// IsKeyGenerationError reports whether err is a flush whose remap could not
// allocate durable keys.
func IsKeyGenerationError(err error) bool {
	return hasCode(err, ErrCodeKeyGeneration)
}

// IsPlanError reports whether err is a flush whose plan could not be built.
func IsPlanError(err error) bool {
	return hasCode(err, ErrCodePlanFailed)
}

func hasCode(err error, code FlushErrorCode) bool {
	var fe *FlushError
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}

// ErrDuplicateKey is returned when an entity is created with the key of a
// tracked entity that is not removed.
var ErrDuplicateKey = errors.New("key is already tracked")

// ErrNotFound is returned by Get when no entity has the requested key.
var ErrNotFound = errors.New("entity not found")
