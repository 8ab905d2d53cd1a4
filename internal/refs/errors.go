package refs

import (
	"errors"
	"fmt"
)

// ErrCodeInvariantViolation marks bookkeeping defects.
const ErrCodeInvariantViolation = "INVARIANT_VIOLATION"

// InvariantError reports a reference change registered twice.
type InvariantError struct {
	Association string
	Detail      string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrCodeInvariantViolation, e.Association, e.Detail)
}

// IsInvariantError reports whether err wraps an InvariantError.
func IsInvariantError(err error) bool {
	var e *InvariantError
	return errors.As(err, &e)
}
