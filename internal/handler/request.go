package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"batepapo/internal/chat"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	}); err != nil {
		panic(err)
	}
	return v
}

// ParticipantRequest is the body of POST /participants
type ParticipantRequest struct {
	Name string `json:"name" validate:"required,notblank,max=255"`
}

// MessageRequest is the body of POST /messages; User comes from the User header
type MessageRequest struct {
	To   string `json:"to" validate:"required,notblank,max=255"`
	Text string `json:"text" validate:"required,notblank"`
	Type string `json:"type" validate:"required,oneof=message private_message"`
	User string `json:"-" validate:"required,notblank,max=255"`
}

// Validate checks req against its struct tags and returns a *chat.ValidationError
// listing every failed field
func Validate(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	return &chat.ValidationError{Fields: lo.Map(fieldErrs, func(fe validator.FieldError, _ int) chat.FieldError {
		return chat.FieldError{Field: fieldName(fe), Message: fieldMessage(fe)}
	})}
}

func fieldName(fe validator.FieldError) string {
	if fe.StructField() == "User" {
		return "user"
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "must not be empty"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	}
	return "is invalid"
}

// decodeJSON reads a capped JSON body into dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &chat.ValidationError{Fields: []chat.FieldError{{Field: "body", Message: "is too large"}}}
		}
		return &chat.ValidationError{Fields: []chat.FieldError{{Field: "body", Message: "must be a JSON object"}}}
	}
	return nil
}
