package model

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// FieldError describes one invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FieldErrors is returned by Validate when struct tags are violated.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
			return IsClock(fl.Field().String())
		})
		_ = validate.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
			_, err := time.Parse(DateLayout, fl.Field().String())
			return err == nil
		})
	})
	return validate
}

// Validate checks v against its validate tags.
func Validate(v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(FieldErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "hhmm":
		return "must be HH:MM"
	case "isodate":
		return "must be YYYY-MM-DD"
	case "gte":
		return "must be >= " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	}
	return "failed " + fe.Tag()
}

// IsClock reports whether s is a zero-padded HH:MM time of day.
func IsClock(s string) bool {
	if len(s) != 5 {
		return false
	}
	_, err := time.Parse(TimeLayout, s)
	return err == nil
}
