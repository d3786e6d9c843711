package users

import "strings"

// Kind discriminates the two principal variants returned by the API.
type Kind string

const (
	KindUser     Kind = "user"
	KindAppOwner Kind = "app_owner"
)

// Role is the closed set of console roles.
type Role string

const (
	RoleAppOwner          Role = "app_owner"
	RoleAccountAdmin      Role = "account_admin"
	RoleDepartmentManager Role = "department_manager"
	RoleAgent             Role = "agent"
	RoleViewer            Role = "viewer"
)

// Roles lists every valid role.
var Roles = []Role{RoleAppOwner, RoleAccountAdmin, RoleDepartmentManager, RoleAgent, RoleViewer}

func (r Role) Valid() bool {
	for _, role := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Profile is the current principal: either a tenant user or an app owner.
type Profile struct {
	ID           string `json:"id"`
	Email        string `json:"email,omitempty"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	Name         string `json:"name,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Kind         Kind   `json:"kind"`
	Role         Role   `json:"role"`
	AccountID    string `json:"accountId,omitempty"`
	WorkspaceID  string `json:"workspaceId,omitempty"`
	DepartmentID string `json:"departmentId,omitempty"`
	TeamID       string `json:"teamId,omitempty"`
}

func (p *Profile) IsAppOwner() bool {
	return p != nil && p.Kind == KindAppOwner
}

func (p *Profile) DisplayName() string {
	if p == nil {
		return ""
	}
	if full := strings.TrimSpace(p.FirstName + " " + p.LastName); full != "" {
		return full
	}
	if p.Name != "" {
		return p.Name
	}
	return p.Email
}

// Capabilities returns the flags derived from the profile's role. A nil
// profile has none.
func (p *Profile) Capabilities() Capabilities {
	if p == nil {
		return Capabilities{}
	}
	return CapabilitiesFor(p.Role)
}
