package models

import "fmt"

// InvalidStateError signals a lifecycle precondition violation. Not
// retryable: the caller must change the post's state first.
type InvalidStateError struct {
	Message string
}

func (e *InvalidStateError) Error() string { return e.Message }

// ErrInvalidState builds an InvalidStateError.
func ErrInvalidState(format string, args ...interface{}) *InvalidStateError {
	return &InvalidStateError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError signals an unknown post or company.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ErrNotFound builds a NotFoundError.
func ErrNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// AuthError signals an invalid or expired platform credential. Not
// retryable without re-authorization.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// PublishError carries a platform-side failure message verbatim. Terminal
// per post; surfaced through the post's stored error field.
type PublishError struct {
	Message string
}

func (e *PublishError) Error() string { return e.Message }

// StorageError wraps a transactional-store failure. Lifecycle transitions
// propagate it; the heuristic engine absorbs it and degrades to a fallback.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
