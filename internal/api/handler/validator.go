package handler

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var (
	// sessionKeyPattern bounds transient data keys.
	sessionKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,64}$`)
	// screenPattern matches legacy map and transaction ids such as COSGN00C or CC00.
	screenPattern = regexp.MustCompile(`^[A-Z0-9]{1,8}$`)
)

// echoValidator wraps go-playground/validator so Echo can call c.Validate(req).
type echoValidator struct {
	v *validator.Validate
}

// NewValidator returns an echoValidator ready to be assigned to echo.Echo.Validator.
func NewValidator() *echoValidator {
	v := validator.New()
	_ = v.RegisterValidation("sessionkey", func(fl validator.FieldLevel) bool {
		return sessionKeyPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("screen", func(fl validator.FieldLevel) bool {
		return screenPattern.MatchString(fl.Field().String())
	})
	return &echoValidator{v: v}
}

// Validate satisfies the echo.Validator interface. Failures come back as
// 400 HTTP errors so the error handler renders them directly.
func (ev *echoValidator) Validate(i any) error {
	if err := ev.v.Struct(i); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			msgs := make([]string, 0, len(ve))
			for _, fe := range ve {
				msgs = append(msgs, fieldError(fe))
			}
			return echo.NewHTTPError(http.StatusBadRequest, strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// fieldError converts a single ValidationError into a human-readable message.
func fieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "sessionkey":
		return field + " must be 1-64 characters of letters, digits, '.', '_', ':' or '-'"
	case "screen":
		return field + " must be an upper-case screen or transaction id of up to 8 characters"
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}
