// File: booking/validate.go
package booking

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/drshumard/bookingflow/models"
)

// Field messages rendered under the form inputs. Keys in the returned map
// are the wire field names so a shell can line errors up with inputs.
const (
	msgFirstNameRequired = "First name is required"
	msgLastNameRequired  = "Last name is required"
	msgEmailRequired     = "Email is required"
	msgEmailInvalid      = "Enter a valid email address"
)

var formValidator *validator.Validate

func init() {
	formValidator = validator.New()
	// Report errors under json names so they match the wire contract.
	formValidator.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ValidateContactDetails checks the contact form and returns per-field
// messages, or nil when the form is ready to send. Phone and notes are
// optional; the front desk follows up by email.
func ValidateContactDetails(d models.ContactDetails) map[string]string {
	err := formValidator.Struct(d)
	if err == nil {
		return nil
	}

	fields := make(map[string]string)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fields["email"] = msgEmailInvalid
		return fields
	}
	for _, fe := range verrs {
		switch fe.Field() {
		case "first_name":
			fields["first_name"] = msgFirstNameRequired
		case "last_name":
			fields["last_name"] = msgLastNameRequired
		case "email":
			if fe.Tag() == "required" {
				fields["email"] = msgEmailRequired
			} else {
				fields["email"] = msgEmailInvalid
			}
		}
	}
	return fields
}
