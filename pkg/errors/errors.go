package errors

import "errors"

// Sentinels for domain errors.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrValidation  = errors.New("validation error")
	ErrUnavailable = errors.New("service unavailable")

	// ErrConfigurationMissing means the tenant has no telephony or AI session configuration.
	ErrConfigurationMissing = errors.New("configuration missing")
	// ErrProvider wraps transport, HTTP and credential failures from external providers.
	ErrProvider = errors.New("provider error")
	// ErrPersistence marks a store write that could not be completed.
	ErrPersistence = errors.New("persistence error")
	// ErrDispatchInProgress is returned when another run already holds the campaign.
	ErrDispatchInProgress = errors.New("dispatch already in progress")
	// ErrRunLockLost means a run could no longer prove it holds its campaign.
	ErrRunLockLost = errors.New("run lock lost")
)

// Names used when an error is recorded against a lead outcome.
const (
	KindConfigurationMissing = "ConfigurationMissing"
	KindProvider             = "ProviderError"
	KindPersistence          = "PersistenceError"
	KindInternal             = "InternalError"
)

// Is reports whether err is one of the sentinels.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Kind maps an error onto the outcome taxonomy. Nil maps to "".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfigurationMissing):
		return KindConfigurationMissing
	case errors.Is(err, ErrProvider):
		return KindProvider
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	default:
		return KindInternal
	}
}

// Wrap adds context to an error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return errors.Join(errors.New(message), err)
}
