package auth

import (
	"strings"

	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/civic-console/internal/errors"
)

// Validator checks credential forms before they are sent to the API, so an
// obviously bad form never costs a round trip.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// ValidateCredentials validates login credentials
func (v *Validator) ValidateCredentials(email, password string) error {
	if err := v.ValidateEmail(email); err != nil {
		return err
	}
	if password == "" {
		return errors.Wrap(apperrors.ErrInvalidCredentials, PasswordRequiredErr.Error())
	}
	return nil
}

// ValidateEmail performs a basic shape check; the server has the final say.
func (v *Validator) ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.Wrap(apperrors.ErrInvalidCredentials, EmailRequiredErr.Error())
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || !strings.Contains(email[at:], ".") {
		return errors.Wrap(apperrors.ErrInvalidCredentials, InvalidEmailErr.Error())
	}
	return nil
}

func (v *Validator) ValidateAppOwnerRegistration(req RegisterAppOwnerRequest) error {
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return errors.Wrap(apperrors.ErrInvalidCredentials, NameRequiredErr.Error())
	}
	return v.ValidateCredentials(req.Email, req.Password)
}

func (v *Validator) ValidateUserRegistration(req RegisterUserRequest) error {
	if strings.TrimSpace(req.InvitationToken) == "" {
		return errors.Wrap(apperrors.ErrInvalidCredentials, InvitationTokenRequiredErr.Error())
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return errors.Wrap(apperrors.ErrInvalidCredentials, NameRequiredErr.Error())
	}
	if req.Password == "" {
		return errors.Wrap(apperrors.ErrInvalidCredentials, PasswordRequiredErr.Error())
	}
	return nil
}
