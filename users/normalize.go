package users

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/civic-console/internal/errors"
)

// wireProfile accepts both camelCase and snake_case field names seen on the wire.
type wireProfile struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	FirstName    string `json:"firstName"`
	FirstNameAlt string `json:"first_name"`
	LastName     string `json:"lastName"`
	LastNameAlt  string `json:"last_name"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Role         Role   `json:"role"`
	AccountID    string `json:"accountId"`
	WorkspaceID  string `json:"workspaceId"`
	DepartmentID string `json:"departmentId"`
	TeamID       string `json:"teamId"`
}

type wrappedProfile struct {
	User     json.RawMessage `json:"user"`
	AppOwner json.RawMessage `json:"appOwner"`
}

// Normalize turns a "who am I" style payload into a Profile. The payload may
// nest the profile under "user" or "appOwner", or be the bare profile object.
// An app owner without an explicit role is tagged app_owner; any other profile
// without a role defaults to agent.
func Normalize(raw json.RawMessage) (*Profile, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, errors.Wrap(apperrors.ErrInvalidResponse, "users.Normalize empty payload")
	}

	var wrapped wrappedProfile
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, errors.Wrapf(apperrors.ErrInvalidResponse, "users.Normalize %v", err)
	}

	switch {
	case isObject(wrapped.AppOwner):
		return decodeProfile(wrapped.AppOwner, KindAppOwner)
	case isObject(wrapped.User):
		return decodeProfile(wrapped.User, KindUser)
	default:
		return decodeProfile(raw, KindUser)
	}
}

func decodeProfile(raw json.RawMessage, kind Kind) (*Profile, error) {
	var w wireProfile
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, errors.Wrapf(apperrors.ErrInvalidResponse, "users.Normalize decode %s: %v", kind, err)
	}
	if w.ID == "" {
		return nil, errors.Wrapf(apperrors.ErrInvalidResponse, "users.Normalize %s without id", kind)
	}

	p := &Profile{
		ID:           w.ID,
		Email:        w.Email,
		FirstName:    firstNonEmpty(w.FirstName, w.FirstNameAlt),
		LastName:     firstNonEmpty(w.LastName, w.LastNameAlt),
		Name:         w.Name,
		Phone:        w.Phone,
		Kind:         kind,
		Role:         w.Role,
		AccountID:    w.AccountID,
		WorkspaceID:  w.WorkspaceID,
		DepartmentID: w.DepartmentID,
		TeamID:       w.TeamID,
	}
	if p.Role == "" {
		if kind == KindAppOwner {
			p.Role = RoleAppOwner
		} else {
			p.Role = RoleAgent
		}
	}
	if !p.Role.Valid() {
		return nil, errors.Wrapf(apperrors.ErrInvalidResponse, "users.Normalize unknown role %q", p.Role)
	}
	return p, nil
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
