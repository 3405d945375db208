package validators

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/rubberops/tapping-backend/pkg/errors"
)

// Proposal bodies are small; notes are the only free text.
const maxBodyBytes = 64 << 10

var validate = newValidator()

var fieldMessages = map[string]func(param string) string{
	"required": func(string) string { return "is required" },
	"min":      func(p string) string { return "must be at least " + p },
	"max":      func(p string) string { return "must be at most " + p },
	"gt":       func(p string) string { return "must be greater than " + p },
	"oneof":    func(p string) string { return "must be one of [" + p + "]" },
	"cents":    func(string) string { return "must have at most two decimal places" },
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	if err := v.RegisterValidation("cents", cents); err != nil {
		panic(err)
	}
	return v
}

func jsonFieldName(f reflect.StructField) string {
	if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name != "" {
		return name
	}
	return f.Name
}

// cents accepts amounts that fit a NUMERIC(12,2) column without rounding.
// Decimal fields reach it as float64.
func cents(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.Float64 {
		return false
	}
	d := decimal.NewFromFloat(fl.Field().Float())
	return d.Equal(d.Round(2))
}

// DecodeJSONBody reads a single JSON object into dest and runs its validate
// tags. Unknown fields are refused so callers cannot smuggle an actor in.
func DecodeJSONBody(r *http.Request, dest any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return pkgerrors.New(pkgerrors.CodeValidation, "request body is required")
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").WithDetails(map[string]any{"error": err.Error()})
	}
	if decoder.More() {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body must hold a single JSON object")
	}
	return ValidateStruct(dest)
}

// ValidateStruct runs the struct's validate tags and maps failures to a validation error.
func ValidateStruct(dest any) error {
	err := validate.Struct(dest)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = "is invalid"
		if msg, ok := fieldMessages[fe.Tag()]; ok {
			details[fe.Field()] = msg(fe.Param())
		}
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}
