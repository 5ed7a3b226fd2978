package schema

import (
	"errors"
	"strings"
)

// ErrInvalidSettings is matched by every error returned from Validate.
var ErrInvalidSettings = errors.New("schema: invalid settings")

// Rule names reported in ValidationError.Rule.
const (
	RuleRequired     = "required"
	RuleRequiredWith = "required_with"
	RuleType         = "type"
	RuleCheck        = "check"
)

// ValidationError identifies one offending field and the rule it violated.
type ValidationError struct {
	Path    string
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Path + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidSettings }

// ValidationErrors aggregates every violation found in one Validate call,
// in field order.
type ValidationErrors struct {
	Errs []*ValidationError
}

func (e *ValidationErrors) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return "schema: " + strings.Join(msgs, "; ")
}

func (e *ValidationErrors) Unwrap() []error {
	out := make([]error, len(e.Errs))
	for i, err := range e.Errs {
		out[i] = err
	}
	return out
}

func (e *ValidationErrors) Is(target error) bool { return target == ErrInvalidSettings }

// First returns the first violation.
func (e *ValidationErrors) First() *ValidationError {
	if len(e.Errs) == 0 {
		return nil
	}
	return e.Errs[0]
}

// Field returns the violation reported for path, if any.
func (e *ValidationErrors) Field(path string) (*ValidationError, bool) {
	for _, err := range e.Errs {
		if err.Path == path {
			return err, true
		}
	}
	return nil, false
}
