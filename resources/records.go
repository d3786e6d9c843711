// Package resources reads and writes the tenant hierarchy (accounts,
// workspaces, departments and teams) through the query cache.
package resources

import "github.com/pkg/errors"

var (
	NameRequiredErr = errors.New("name is required")
	IDRequiredErr   = errors.New("id is required")
)

type Account struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Status    string `json:"status,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type Workspace struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccountID   string `json:"accountId,omitempty"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
}

type Department struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccountID   string `json:"accountId,omitempty"`
	WorkspaceID string `json:"workspaceId,omitempty"`
	Description string `json:"description,omitempty"`
}

type Team struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	AccountID    string `json:"accountId,omitempty"`
	WorkspaceID  string `json:"workspaceId,omitempty"`
	DepartmentID string `json:"departmentId,omitempty"`
	Description  string `json:"description,omitempty"`
}

// AccountInput is the body of account create and update calls.
type AccountInput struct {
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Status string `json:"status,omitempty"`
}

type WorkspaceInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type DepartmentInput struct {
	Name        string `json:"name"`
	WorkspaceID string `json:"workspaceId"`
	Description string `json:"description,omitempty"`
}

type TeamInput struct {
	Name         string `json:"name"`
	DepartmentID string `json:"departmentId"`
	Description  string `json:"description,omitempty"`
}
