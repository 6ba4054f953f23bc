package inquiry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FallbackMessage is shown when the collaborator gives no usable message.
const FallbackMessage = "Something went wrong while sending your inquiry. Please try again."

// Payload is the faculty inquiry sent to the collaborator.
type Payload struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required"`
	Query string `json:"query" validate:"required"`
}

// Ack is the collaborator's acknowledgement. Its contents are not interpreted.
type Ack struct {
	ID      int    `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse is the body of a non-2xx collaborator response.
type ErrorResponse struct {
	Code    string  `json:"code,omitempty"`
	Message *string `json:"message,omitempty"`
}

var validate = validator.New()

// FieldError names a field that failed validation and the rule it broke.
type FieldError struct {
	Field Field
	Rule  string
}

// ValidationError is returned when a payload is rejected before any request is made.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Field, f.Rule)
	}
	return "invalid inquiry: " + strings.Join(parts, ", ")
}

// Has reports whether field f failed validation.
func (e *ValidationError) Has(f Field) bool {
	for _, fe := range e.Fields {
		if fe.Field == f {
			return true
		}
	}
	return false
}

// Validate checks the required-field and email constraints. Values are not trimmed.
func (p Payload) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		field, ok := fieldByStructName[fe.StructField()]
		if !ok {
			continue
		}
		out.Fields = append(out.Fields, FieldError{Field: field, Rule: fe.Tag()})
	}
	return out
}
