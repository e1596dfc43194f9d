package entity

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// NotFoundError is returned when no row matches a lookup that requires one.
type NotFoundError struct {
	Kind  string
	Field string
	Value any
	base  *goerrors.Error
}

// NewNotFoundError creates a NotFoundError for kind where field equals value.
func NewNotFoundError(kind, field string, value any) *NotFoundError {
	msg := fmt.Sprintf("%s not found where %s = %v", kind, field, value)
	return &NotFoundError{
		Kind:  kind,
		Field: field,
		Value: value,
		base: goerrors.New(msg, goerrors.CategoryNotFound).
			WithTextCode("ENTITY_NOT_FOUND").
			WithMetadata(map[string]any{"kind": kind, "field": field}),
	}
}

func (e *NotFoundError) Error() string { return e.base.Message }

func (e *NotFoundError) Unwrap() error { return e.base }

// NotAuthorizedError is returned when a privacy policy denies an action.
// RuleIndex is the position of the denying rule, -1 when every rule skipped.
type NotAuthorizedError struct {
	Kind      string
	EntityID  any
	Action    Action
	RuleIndex int
	Reason    error
	base      *goerrors.Error
}

// NewNotAuthorizedError creates a NotAuthorizedError. reason is the value the
// denying rule returned and may be nil.
func NewNotAuthorizedError(kind string, id any, action Action, ruleIndex int, reason error) *NotAuthorizedError {
	msg := fmt.Sprintf("viewer not authorized to %s %s(%v) (rule %d)", action, kind, id, ruleIndex)
	return &NotAuthorizedError{
		Kind:      kind,
		EntityID:  id,
		Action:    action,
		RuleIndex: ruleIndex,
		Reason:    reason,
		base: goerrors.New(msg, goerrors.CategoryAuthz).
			WithTextCode("ENTITY_NOT_AUTHORIZED").
			WithMetadata(map[string]any{
				"kind":       kind,
				"action":     action.String(),
				"rule_index": ruleIndex,
			}),
	}
}

func (e *NotAuthorizedError) Error() string { return e.base.Message }

func (e *NotAuthorizedError) Unwrap() error { return e.base }

// InvalidFieldValueError is returned when field validation rejects a mutation.
type InvalidFieldValueError struct {
	Kind string
	base *goerrors.Error
}

// NewInvalidFieldValueError converts validation errors (usually
// ozzo-validation's validation.Errors) into an InvalidFieldValueError.
func NewInvalidFieldValueError(kind string, err error) *InvalidFieldValueError {
	msg := fmt.Sprintf("invalid field values for %s", kind)
	base := goerrors.FromOzzoValidation(err, msg)
	if base == nil {
		base = goerrors.New(msg, goerrors.CategoryValidation)
	}
	base.TextCode = "ENTITY_INVALID_FIELD_VALUE"
	return &InvalidFieldValueError{Kind: kind, base: base}
}

func (e *InvalidFieldValueError) Error() string { return e.base.Error() }

func (e *InvalidFieldValueError) Unwrap() error { return e.base }

// FieldErrors returns the validation message per field.
func (e *InvalidFieldValueError) FieldErrors() map[string]string {
	return e.base.ValidationMap()
}

// StoreErrorKind classifies backing store failures.
type StoreErrorKind int

const (
	StoreErrorUnknown StoreErrorKind = iota
	StoreErrorTransient
	StoreErrorUniqueConstraint
	StoreErrorForeignKeyConstraint
	StoreErrorNotNullConstraint
	StoreErrorCheckConstraint
	StoreErrorExclusionConstraint
)

func (k StoreErrorKind) String() string {
	switch k {
	case StoreErrorTransient:
		return "transient"
	case StoreErrorUniqueConstraint:
		return "unique_constraint"
	case StoreErrorForeignKeyConstraint:
		return "foreign_key_constraint"
	case StoreErrorNotNullConstraint:
		return "not_null_constraint"
	case StoreErrorCheckConstraint:
		return "check_constraint"
	case StoreErrorExclusionConstraint:
		return "exclusion_constraint"
	default:
		return "unknown"
	}
}

// IsConstraint reports whether the kind is a permanent constraint violation.
func (k StoreErrorKind) IsConstraint() bool {
	return k >= StoreErrorUniqueConstraint
}

// StoreError is the only error type store adapters return.
type StoreError struct {
	Kind       StoreErrorKind
	Table      string
	Constraint string
	base       *goerrors.Error
}

// NewStoreError wraps cause, the adapter-native error, as a StoreError.
func NewStoreError(kind StoreErrorKind, table, constraint string, cause error) *StoreError {
	category := goerrors.CategoryExternal
	if kind.IsConstraint() {
		category = goerrors.CategoryConflict
	}
	msg := fmt.Sprintf("store %s error on %s", kind, table)
	if constraint != "" {
		msg += " (" + constraint + ")"
	}

	var base *goerrors.Error
	if cause != nil {
		base = &goerrors.Error{
			Category: category,
			Message:  msg,
			Source:   cause,
		}
	} else {
		base = goerrors.New(msg, category)
	}
	base.TextCode = "STORE_" + kindTextCode(kind)

	return &StoreError{Kind: kind, Table: table, Constraint: constraint, base: base}
}

func kindTextCode(k StoreErrorKind) string {
	switch k {
	case StoreErrorTransient:
		return "TRANSIENT"
	case StoreErrorUniqueConstraint:
		return "UNIQUE"
	case StoreErrorForeignKeyConstraint:
		return "FOREIGN_KEY"
	case StoreErrorNotNullConstraint:
		return "NOT_NULL"
	case StoreErrorCheckConstraint:
		return "CHECK"
	case StoreErrorExclusionConstraint:
		return "EXCLUSION"
	default:
		return "UNKNOWN"
	}
}

func (e *StoreError) Error() string { return e.base.Error() }

func (e *StoreError) Unwrap() error { return e.base }

// IsRetryable reports whether the failed call may succeed when retried.
func (e *StoreError) IsRetryable() bool { return e.Kind == StoreErrorTransient }

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsNotAuthorized reports whether err is or wraps a NotAuthorizedError.
func IsNotAuthorized(err error) bool {
	var target *NotAuthorizedError
	return errors.As(err, &target)
}

// IsInvalidFieldValue reports whether err is or wraps an InvalidFieldValueError.
func IsInvalidFieldValue(err error) bool {
	var target *InvalidFieldValueError
	return errors.As(err, &target)
}

// StoreErrorKindOf returns the kind of a wrapped StoreError.
func StoreErrorKindOf(err error) (StoreErrorKind, bool) {
	var target *StoreError
	if errors.As(err, &target) {
		return target.Kind, true
	}
	return StoreErrorUnknown, false
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	kind, ok := StoreErrorKindOf(err)
	return ok && kind == StoreErrorUniqueConstraint
}

// IsTransient reports whether err is a retryable store failure.
func IsTransient(err error) bool {
	kind, ok := StoreErrorKindOf(err)
	return ok && kind == StoreErrorTransient
}

// IsExpected reports whether err belongs to the outcomes raw APIs return as
// results instead of errors.
func IsExpected(err error) bool {
	return IsNotFound(err) || IsNotAuthorized(err) || IsInvalidFieldValue(err)
}
