package rotation

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for rotation operations.
var (
	// ErrRotationInProgress indicates that the single-flight gate denied a
	// rotation because another rotation for the same identity holds the lock.
	ErrRotationInProgress = errors.New("rotation already in progress")

	// ErrCooldownActive indicates that the cooldown gate denied a rotation.
	// Concrete denials carry the remaining wait in a CooldownError.
	ErrCooldownActive = errors.New("rotation cooldown active")
)

// CooldownError reports a cooldown denial together with the remaining wait.
type CooldownError struct {
	Remaining time.Duration
	Cooldown  time.Duration
}

// Error implements the error interface.
func (e *CooldownError) Error() string {
	return fmt.Sprintf("rotation cooldown active: %v remaining", e.Remaining)
}

// Is checks if the error matches the target.
func (e *CooldownError) Is(target error) bool {
	if target == ErrCooldownActive {
		return true
	}
	_, ok := target.(*CooldownError)
	return ok
}

// NewCooldownError creates a CooldownError.
func NewCooldownError(remaining, cooldown time.Duration) *CooldownError {
	return &CooldownError{Remaining: remaining, Cooldown: cooldown}
}
