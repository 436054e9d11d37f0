package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/actiontracker/tracker-server-go/internal/errors"
	"github.com/actiontracker/tracker-server-go/internal/model"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// FieldError is one entry of a validation error's details.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ValidateWebhookEvent checks the provider payload shape.
func ValidateWebhookEvent(ev *model.WebhookEvent) error {
	if ev == nil {
		return apperrors.ValidationError("Invalid payload: empty body")
	}
	return validateStruct(ev)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.ValidationError("Invalid payload").WithCause(err)
	}

	fields := make([]FieldError, 0, len(verrs))
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := jsonPath(fe.Namespace())
		fields = append(fields, FieldError{Field: name, Rule: fe.Tag()})
		names = append(names, name)
	}

	return apperrors.ValidationError(fmt.Sprintf("Invalid payload: %s", strings.Join(names, ", "))).
		WithDetails(fields)
}

// jsonPath drops the root type from "WebhookEvent.timeInterval.offsetStart".
func jsonPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}
