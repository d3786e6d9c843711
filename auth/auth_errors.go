package auth

import "errors"

var (
	EmailRequiredErr           = errors.New("email is required")
	InvalidEmailErr            = errors.New("invalid email format")
	PasswordRequiredErr        = errors.New("password is required")
	NameRequiredErr            = errors.New("first and last name are required")
	InvitationTokenRequiredErr = errors.New("invitation token is required")
)
