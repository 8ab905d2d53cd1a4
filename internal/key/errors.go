package key

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	ErrCodeInvalidShape             = "INVALID_SHAPE"
	ErrCodeUnsupportedConfiguration = "UNSUPPORTED_CONFIGURATION"
)

// ShapeError reports values that do not fit a key: wrong arity, a column
// of the wrong kind, or a null key column.
type ShapeError struct {
	Type   string
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: key of %s: %s", ErrCodeInvalidShape, e.Type, e.Reason)
}

// ConfigError reports a hierarchy with no usable key generator.
type ConfigError struct {
	Hierarchy string
	Reason    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: hierarchy %s: %s", ErrCodeUnsupportedConfiguration, e.Hierarchy, e.Reason)
}

// IsShapeError reports whether err wraps a ShapeError.
func IsShapeError(err error) bool {
	var e *ShapeError
	return errors.As(err, &e)
}

// IsConfigError reports whether err wraps a ConfigError.
func IsConfigError(err error) bool {
	var e *ConfigError
	return errors.As(err, &e)
}
