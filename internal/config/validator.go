package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate validates Config using struct tags plus cross-field rules,
// mirroring the teacher's OSSConfig.Validate shape.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateIdentityUniqueness(); err != nil {
		return err
	}
	return nil
}

// validateIdentityUniqueness ensures no two configured identities share a
// DID or username, since either would make Basic-auth lookup ambiguous.
func (c *Config) validateIdentityUniqueness() error {
	dids := make(map[string]struct{}, len(c.Auth.Identities))
	usernames := make(map[string]struct{}, len(c.Auth.Identities))
	for i, id := range c.Auth.Identities {
		if _, exists := dids[id.DID]; exists {
			return fmt.Errorf("auth.identities[%d]: duplicate did %q", i, id.DID)
		}
		dids[id.DID] = struct{}{}
		if _, exists := usernames[id.Username]; exists {
			return fmt.Errorf("auth.identities[%d]: duplicate username %q", i, id.Username)
		}
		usernames[id.Username] = struct{}{}
	}
	return nil
}

func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
