package client

import "fmt"

// AuthError signals rejected credentials or failed registration. Detail is
// the server's human-readable message when one was supplied.
type AuthError struct {
	Detail string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return "authentication failed"
}

func (e *AuthError) Unwrap() error { return e.Err }

// NetworkError wraps a transport-level failure.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// ConflictError means the gathering was already claimed by someone else.
type ConflictError struct {
	GatheringID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("gathering %s already claimed", e.GatheringID)
}

// ValidationError reports a malformed coordinate or missing required field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Reason) }
