package auth

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// RegisterRequest holds the registration rules. Usernames are alphanumeric
// because they are embedded in storage keys.
type RegisterRequest struct {
	Username string `validate:"required,alphanum,min=3,max=32"`
	Secret   string `validate:"required,min=3,max=72"`
}

func ValidateRegister(req RegisterRequest) error {
	return validate.Struct(req)
}
