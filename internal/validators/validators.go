package validators

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	domain "github.com/TabarBaptiste/masseuse/internal/domain/booking"
)

// Register adds the booking tags to v:
//
//	hhmm     zero-padded "HH:MM" time of day
//	isodate  "YYYY-MM-DD" calendar date
func Register(v *validator.Validate) error {
	if err := v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseClock(fl.Field().String())
		return err == nil
	}); err != nil {
		return err
	}
	return v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(domain.DateLayout, fl.Field().String())
		return err == nil
	})
}

// RegisterGin installs the tags on gin's binding engine.
func RegisterGin() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected gin validator engine %T", binding.Validator.Engine())
	}
	return Register(v)
}

func message(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "hhmm":
		return "must be a time formatted HH:MM"
	case "isodate":
		return "must be a date formatted YYYY-MM-DD"
	case "max":
		return fmt.Sprintf("must be at most %s characters", err.Param())
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", err.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(err.Param(), " ", ", "))
	default:
		return "is invalid"
	}
}

// Describe flattens a binding error into one readable line. Errors that
// are not validation errors, such as malformed JSON, are returned as is.
func Describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s %s", fe.Field(), message(fe)))
	}
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}
