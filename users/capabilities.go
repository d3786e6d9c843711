package users

// Capabilities are derived from a role on every call and never stored.
type Capabilities struct {
	CanCreateAccounts    bool `json:"canCreateAccounts"`
	CanCreateWorkspaces  bool `json:"canCreateWorkspaces"`
	CanManageUsers       bool `json:"canManageUsers"`
	CanAccessAllAccounts bool `json:"canAccessAllAccounts"`
}

func CapabilitiesFor(role Role) Capabilities {
	return Capabilities{
		CanCreateAccounts:    role == RoleAppOwner,
		CanCreateWorkspaces:  role == RoleAppOwner || role == RoleAccountAdmin,
		CanManageUsers:       role == RoleAppOwner || role == RoleAccountAdmin || role == RoleDepartmentManager,
		CanAccessAllAccounts: role == RoleAppOwner,
	}
}
