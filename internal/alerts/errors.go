package alerts

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/civicwatch/alertwatch/internal/datastore/repository"
	"github.com/civicwatch/alertwatch/internal/errors"
	"github.com/civicwatch/alertwatch/internal/identity"
)

// Sentinel errors returned by Service. Match them with errors.Is.
var (
	// ErrAlertNotFound means no alert has the requested id.
	ErrAlertNotFound = errors.New(repository.ErrAlertNotFound).
		Component("alerts").
		Category(errors.CategoryNotFound).
		Build()

	// ErrActorNotFound means the acting user is not known to the identity provider.
	ErrActorNotFound = identity.ErrActorNotFound

	// ErrDuplicateVote means the actor already voted on the alert.
	ErrDuplicateVote = errors.New(repository.ErrDuplicateVote).
		Component("alerts").
		Category(errors.CategoryConflict).
		Build()

	// ErrVotingClosed means the voting policy refuses votes in the alert's state.
	ErrVotingClosed = errors.Newf("voting is closed for this alert").
		Component("alerts").
		Category(errors.CategoryConflict).
		Build()

	// ErrForbidden means the actor may not perform the operation on the alert.
	ErrForbidden = errors.Newf("operation not permitted").
		Component("alerts").
		Category(errors.CategoryForbidden).
		Build()
)

// IsDenied reports whether err is a not-found or forbidden outcome. Callers
// that must not reveal whether an alert exists treat both the same way.
func IsDenied(err error) bool {
	return errors.Is(err, ErrAlertNotFound) || errors.Is(err, ErrForbidden)
}

// ValidationError lists the invalid fields of an input.
type ValidationError struct {
	Fields map[string]string
}

// Error lists the fields in a stable order.
func (ve *ValidationError) Error() string {
	keys := make([]string, 0, len(ve.Fields))
	for k := range ve.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+ve.Fields[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// ErrorCategory marks validation errors for errors.IsCategory.
func (ve *ValidationError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryValidation
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func invalidField(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// validate is the shared validator for all operation inputs.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
}

func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Fields: map[string]string{"input": err.Error()}}
	}

	ve := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		ve.Fields[fe.Field()] = describe(fe)
	}
	return ve
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "latitude":
		return "must be between -90 and 90"
	case "longitude":
		return "must be between -180 and 180"
	default:
		return fmt.Sprintf("failed %s check", fe.Tag())
	}
}

// translate maps repository errors to service sentinels and wraps anything
// unexpected as a storage error.
func translate(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAlertNotFound), errors.Is(err, ErrDuplicateVote),
		errors.Is(err, ErrVotingClosed), errors.Is(err, ErrForbidden),
		errors.Is(err, ErrActorNotFound), IsValidation(err):
		return err
	case errors.Is(err, repository.ErrAlertNotFound):
		return ErrAlertNotFound
	case errors.Is(err, repository.ErrDuplicateVote):
		return ErrDuplicateVote
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return errors.New(err).
			Component("alerts").
			Category(errors.CategoryCancellation).
			Context("operation", op).
			Build()
	default:
		return errors.New(fmt.Errorf("%s: %w", op, err)).
			Component("alerts").
			Category(errors.CategoryDatabase).
			Context("operation", op).
			Build()
	}
}

// IsStorage reports whether err is a storage failure.
func IsStorage(err error) bool {
	return errors.IsCategory(err, errors.CategoryDatabase)
}
