package validator

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	playground "github.com/go-playground/validator/v10"

	apperrors "github.com/jwalitptl/appointment-engine/pkg/errors"
)

// FieldError is one failed rule, named by the field's JSON key.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validator checks `validate` struct tags and reports failures as
// bad-request errors.
type Validator struct {
	engine *playground.Validate
}

func New() *Validator {
	engine := playground.New()
	engine.RegisterTagNameFunc(JSONTagName)
	return &Validator{engine: engine}
}

// JSONTagName names struct fields by their json key in validation errors.
func JSONTagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}

func (v *Validator) Validate(obj interface{}) error {
	err := v.engine.Struct(obj)
	if err == nil {
		return nil
	}
	fields := Fields(err)
	if len(fields) == 0 {
		return apperrors.NewBadRequest("invalid request", err)
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.Field + " " + f.Message
	}
	return apperrors.NewBadRequest(strings.Join(parts, "; "), err)
}

// Fields flattens validator errors into per-field messages. Errors of any
// other kind yield nil.
func Fields(err error) []FieldError {
	var verrs playground.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return nil
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return out
}

func message(fe playground.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "datetime":
		return fmt.Sprintf("must match %s", fe.Param())
	case "ltefield":
		return fmt.Sprintf("must not exceed %s", fe.Param())
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}
