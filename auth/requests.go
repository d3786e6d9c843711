package auth

import (
	"bytes"
	"encoding/json"

	"github.com/jrsteele09/civic-console/users"
)

const (
	LoginPath            = "/auth/login"
	LogoutPath           = "/auth/logout"
	MePath               = "/auth/me"
	RegisterAppOwnerPath = "/auth/register/app-owner"
	RegisterUserPath     = "/auth/register/user"
	AcceptInvitationPath = "/auth/accept-invitation/user"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RegisterAppOwnerRequest signs up a platform owner.
type RegisterAppOwnerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Phone     string `json:"phone,omitempty"`
}

// RegisterUserRequest completes an invitation sign-up.
type RegisterUserRequest struct {
	InvitationToken string `json:"token"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Password        string `json:"password"`
	Phone           string `json:"phone,omitempty"`
}

// Invitation is what the accept-invitation endpoint reports about a pending
// invitation.
type Invitation struct {
	Email        string     `json:"email"`
	FirstName    string     `json:"firstName,omitempty"`
	LastName     string     `json:"lastName,omitempty"`
	Role         users.Role `json:"role,omitempty"`
	AccountID    string     `json:"accountId,omitempty"`
	WorkspaceID  string     `json:"workspaceId,omitempty"`
	DepartmentID string     `json:"departmentId,omitempty"`
	TeamID       string     `json:"teamId,omitempty"`
}

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// credentialResponse is the data of a login or registration response. Tokens
// arrive either beside the profile or under "tokens".
type credentialResponse struct {
	User     json.RawMessage `json:"user"`
	AppOwner json.RawMessage `json:"appOwner"`
	tokenPair
	Tokens *tokenPair `json:"tokens"`
}

func (c credentialResponse) pair() tokenPair {
	if c.AccessToken == "" && c.Tokens != nil {
		return *c.Tokens
	}
	return c.tokenPair
}

func (c credentialResponse) hasProfile() bool {
	return isObject(c.User) || isObject(c.AppOwner)
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
