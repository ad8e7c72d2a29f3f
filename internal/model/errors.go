package model

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig marks configuration/dimension inconsistencies detected while
// building a graph.
var ErrInvalidConfig = errors.New("model: invalid configuration")

// ErrShape marks data or constants whose shape disagrees with the graph.
var ErrShape = errors.New("model: shape mismatch")

// ConfigError describes one configuration inconsistency.
type ConfigError struct {
	Field  string
	Reason string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("invalid model configuration: %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidConfig.
func (e ConfigError) Unwrap() error { return ErrInvalidConfig }

func shapeErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrShape, fmt.Sprintf(format, args...))
}
