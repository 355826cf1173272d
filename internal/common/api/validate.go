package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"paygate/internal/providers"
)

var (
	msisdnPattern = regexp.MustCompile(`^254[0-9]{9}$`)
	expiryPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/[0-9]{2}$`)
	cvcPattern    = regexp.MustCompile(`^[0-9]{3,4}$`)
	panPattern    = regexp.MustCompile(`^[0-9]{16}$`)
)

// Validate is a shared validator instance
var Validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "msisdn", msisdnPattern)
	mustRegister(v, "expiry", expiryPattern)
	mustRegister(v, "cvc", cvcPattern)
	mustRegister(v, "pan", panPattern)
	return v
}

func mustRegister(v *validator.Validate, tag string, pattern *regexp.Regexp) {
	err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return pattern.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(err)
	}
}

// DecodeAndValidate decodes the JSON body into v and validates it. A
// malformed body or a constraint violation comes back as a
// ValidationError carrying the first failing field's message.
func DecodeAndValidate(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &providers.ValidationError{Message: "Invalid request body"}
	}
	return CheckStruct(v)
}

// CheckStruct validates v against its struct tags.
func CheckStruct(v interface{}) error {
	if err := Validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return &providers.ValidationError{
				Field:   first.Field(),
				Message: validationMessage(first),
			}
		}
		return &providers.ValidationError{Message: "Invalid request"}
	}
	return nil
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fieldLabel(e.Field()) + " is required"
	case "msisdn":
		return "Phone number must be in the format 254XXXXXXXXX"
	case "pan":
		return "Card number must be 16 digits"
	case "expiry":
		return "Expiry date must be in the format MM/YY"
	case "cvc":
		return "CVC must be 3 or 4 digits"
	case "gt":
		return fieldLabel(e.Field()) + " must be greater than " + e.Param()
	case "oneof":
		return fieldLabel(e.Field()) + " must be one of: " + e.Param()
	default:
		return fieldLabel(e.Field()) + " is invalid"
	}
}

// fieldLabel maps wire field names onto the labels used in messages.
func fieldLabel(field string) string {
	switch field {
	case "phoneNumber":
		return "Phone number"
	case "amount":
		return "Amount"
	case "currency":
		return "Currency"
	case "number":
		return "Card number"
	case "expiry":
		return "Expiry date"
	case "cvc":
		return "CVC"
	case "name":
		return "Cardholder name"
	case "provider":
		return "Provider"
	case "transactionId":
		return "Transaction ID"
	case "cardDetails":
		return "Card details"
	case "orderId":
		return "Order ID"
	default:
		return field
	}
}
