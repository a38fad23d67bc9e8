// Package amaserr defines the closed set of error kinds the engine can
// surface, per the error-handling design: a single user's pipeline may
// never propagate a raw error into another user's pipeline, so every
// fallible path wraps one of these sentinels and is tested with errors.Is.
package amaserr

import "errors"

// Kind identifies which of the six documented failure classes an error
// belongs to.
type Kind int

const (
	// InputSanitisation: NaN/Inf in a feature or reward; the caller
	// replaces or skips the update and continues.
	InputSanitisation Kind = iota
	// NumericInstability: Cholesky rank-1 failure or diagonal out of
	// range; caller re-decomposes, and resets to lambda*I if that also
	// fails.
	NumericInstability
	// StateCorruption: a restored snapshot fails an invariant check.
	StateCorruption
	// Timeout: the event's deadline passed mid-pipeline.
	Timeout
	// PersistenceFailure: a snapshot or decision-record write failed.
	PersistenceFailure
	// ConfigViolation: boot-time configuration is invalid.
	ConfigViolation
)

func (k Kind) String() string {
	switch k {
	case InputSanitisation:
		return "input_sanitisation"
	case NumericInstability:
		return "numeric_instability"
	case StateCorruption:
		return "state_corruption"
	case Timeout:
		return "timeout"
	case PersistenceFailure:
		return "persistence_failure"
	case ConfigViolation:
		return "config_violation"
	default:
		return "unknown"
	}
}

var (
	ErrInputSanitisation  = errors.New("input_sanitisation")
	ErrNumericInstability = errors.New("numeric_instability")
	ErrStateCorruption    = errors.New("state_corruption")
	ErrTimeout            = errors.New("timeout")
	ErrPersistenceFailure = errors.New("persistence_failure")
	ErrConfigViolation    = errors.New("config_violation")
)

// Sentinel returns the package-level sentinel for a Kind, for wrapping with
// fmt.Errorf("...: %w", amaserr.Sentinel(k)).
func Sentinel(k Kind) error {
	switch k {
	case InputSanitisation:
		return ErrInputSanitisation
	case NumericInstability:
		return ErrNumericInstability
	case StateCorruption:
		return ErrStateCorruption
	case Timeout:
		return ErrTimeout
	case PersistenceFailure:
		return ErrPersistenceFailure
	case ConfigViolation:
		return ErrConfigViolation
	default:
		return errors.New("unknown")
	}
}

// Is reports whether err wraps the sentinel for k.
func Is(err error, k Kind) bool {
	return errors.Is(err, Sentinel(k))
}
