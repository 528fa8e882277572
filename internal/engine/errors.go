package engine

import "fmt"

// ValidationError marks malformed or out-of-range input. All validation runs
// before any write, so a ValidationError guarantees no partial state.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func validationf(field, format string, args ...any) ValidationError {
	return ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ConflictError marks a request that contradicts current state, such as
// releasing a non-positive escrow amount.
type ConflictError struct {
	Reason string
}

func (e ConflictError) Error() string { return e.Reason }

// ForbiddenError marks a caller lacking a required permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("missing permission %s", e.Permission)
}
