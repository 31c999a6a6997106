package waitlist

import (
	"errors"
	"fmt"
)

// Store errors.
var (
	ErrNotFound  = errors.New("signup not found")
	ErrDuplicate = errors.New("signup already exists")
	// ErrConflict marks transient write contention that is worth retrying.
	ErrConflict = errors.New("store write conflict")
)

// ErrStorageUnavailable is returned by the registration service once the
// store could not complete a submission within the retry budget.
var ErrStorageUnavailable = errors.New("storage unavailable")

// ErrorKind classifies a failed submission.
type ErrorKind string

const (
	InvalidPayload     ErrorKind = "invalid_payload"
	InvalidEmail       ErrorKind = "invalid_email"
	ConsentRequired    ErrorKind = "consent_required"
	InvalidUseCase     ErrorKind = "invalid_use_case"
	NameTooLong        ErrorKind = "name_too_long"
	StorageUnavailable ErrorKind = "storage_unavailable"
)

// Reason is the client-facing message for the kind. Storage reasons are
// generic on purpose and never mention the backend.
func (k ErrorKind) Reason() string {
	switch k {
	case InvalidPayload:
		return "Invalid request body"
	case InvalidEmail:
		return "Invalid email"
	case ConsentRequired:
		return "Consent is required"
	case InvalidUseCase:
		return "Invalid use case"
	case NameTooLong:
		return "Name is too long"
	default:
		return "Service temporarily unavailable, please try again"
	}
}

// ValidationError rejects a submission before any store access.
type ValidationError struct {
	Kind  ErrorKind
	Field string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("waitlist: %s", e.Kind)
	}
	return fmt.Sprintf("waitlist: %s (%s)", e.Kind, e.Field)
}

func invalid(kind ErrorKind, field string) error {
	return &ValidationError{Kind: kind, Field: field}
}

// KindOf maps any error returned by this package to its kind. Unknown errors
// are treated as storage failures.
func KindOf(err error) ErrorKind {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return StorageUnavailable
}
