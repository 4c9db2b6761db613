package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("pwbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= maxPasswordBytes
	})
	return v
}

// fieldErrors validates req and groups the messages by JSON field name.
// It returns nil when req is valid.
func fieldErrors(req any) map[string][]string {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string][]string{"request": {err.Error()}}
	}

	fields := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = append(fields[fe.Field()], fieldMessage(fe))
	}
	return fields
}

func fieldMessage(fe validator.FieldError) string {
	label := strings.ReplaceAll(fe.Field(), "_", " ")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", label)
	case "email":
		return fmt.Sprintf("The %s field must be a valid email address.", label)
	case "max":
		return fmt.Sprintf("The %s field must not be greater than %s characters.", label, fe.Param())
	case "min":
		return fmt.Sprintf("The %s field must be at least %s characters.", label, fe.Param())
	case "eqfield":
		return fmt.Sprintf("The %s field confirmation does not match.", label)
	case "number", "numeric":
		return fmt.Sprintf("The %s field must be a number.", label)
	case "pwbytes":
		return fmt.Sprintf("The %s field must not be greater than %d bytes.", label, maxPasswordBytes)
	case "len":
		return fmt.Sprintf("The %s field must be %s digits.", label, fe.Param())
	default:
		return fmt.Sprintf("The %s field is invalid.", label)
	}
}

func addFieldError(fields map[string][]string, field, message string) map[string][]string {
	if fields == nil {
		fields = make(map[string][]string)
	}
	fields[field] = append(fields[field], message)
	return fields
}

func takenMessage(field string) string {
	return fmt.Sprintf("The %s has already been taken.", strings.ReplaceAll(field, "_", " "))
}
