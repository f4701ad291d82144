package llm

import (
	"errors"
	"fmt"
)

// ErrUnsupportedModel reports a model identifier that is not present in the
// registry. It is a caller input error, surfaced before any network I/O.
var ErrUnsupportedModel = errors.New("llm: unsupported model")

// ErrProviderUnavailable reports that the adapter for a resolved family
// cannot be used in this execution context (for example, Vertex AI publisher
// models on a host without Google Cloud credentials). It is distinct from a
// backend failure so callers can explain why, not just that, the call failed.
var ErrProviderUnavailable = errors.New("llm: provider unavailable")

// UnsupportedModelError wraps [ErrUnsupportedModel] with the offending
// identifier.
type UnsupportedModelError struct {
	Model string
}

func (e *UnsupportedModelError) Error() string {
	return fmt.Sprintf("llm: unsupported model %q", e.Model)
}

func (e *UnsupportedModelError) Unwrap() error { return ErrUnsupportedModel }

// ProviderUnavailableError wraps [ErrProviderUnavailable] with the family and
// the reason the adapter could not be used.
type ProviderUnavailableError struct {
	// Family is the provider family that is unavailable.
	Family Family

	// Reason describes the execution-context restriction.
	Reason string

	// Cause is the underlying construction failure, if any.
	Cause error
}

func (e *ProviderUnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("llm: provider %s unavailable: %s: %v", e.Family, e.Reason, e.Cause)
	}
	return fmt.Sprintf("llm: provider %s unavailable: %s", e.Family, e.Reason)
}

func (e *ProviderUnavailableError) Unwrap() error { return ErrProviderUnavailable }

// BackendError wraps a failure of the adapter's underlying backend call —
// network, auth, quota. The original error is preserved verbatim and never
// swallowed.
type BackendError struct {
	// Family is the provider family whose backend failed.
	Family Family

	// Op is the operation that failed ("connect", "generate", "chat", …).
	Op string

	// Err is the upstream failure.
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("llm: %s backend %s: %v", e.Family, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
