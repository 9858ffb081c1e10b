package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	_ = v.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		s := strings.TrimSpace(fl.Field().String())
		if s == "" {
			return true
		}
		d, err := decimal.NewFromString(s)
		return err == nil && !d.IsNegative()
	})
	return v
}

// DecodeJSON decodes the request body into dest, rejecting unknown fields, and
// runs struct validation. Failures are returned as a 400 AppError.
func DecodeJSON(r *http.Request, dest any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return &AppError{Code: "BAD_REQUEST", Message: "invalid payload", HTTPStatus: http.StatusBadRequest, Err: err}
	}
	return Validate(dest)
}

// Validate runs struct validation on v.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			details := map[string]string{}
			for _, fe := range errs {
				details[fe.Field()] = validationMessage(fe)
			}
			return &AppError{Code: "VALIDATION_FAILED", Message: "validation failed", HTTPStatus: http.StatusBadRequest, Err: err, Details: details}
		}
		return &AppError{Code: "VALIDATION_FAILED", Message: "validation failed", HTTPStatus: http.StatusBadRequest, Err: err}
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	case "uuid", "uuid4":
		return "must be a valid uuid"
	case "money":
		return "must be a non-negative decimal amount"
	}
	return "is invalid"
}
