package resources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/civic-console/apiclient"
	"github.com/jrsteele09/civic-console/query"
	"github.com/jrsteele09/civic-console/users"
)

const (
	AccountsPath    = "/accounts"
	WorkspacesPath  = "/workspaces"
	DepartmentsPath = "/departments"
	TeamsPath       = "/teams"
	CurrentUserPath = "/auth/me"
)

var (
	Accounts    = query.KeyFactory{Resource: "accounts"}
	Workspaces  = query.KeyFactory{Resource: "workspaces"}
	Departments = query.KeyFactory{Resource: "departments"}
	Teams       = query.KeyFactory{Resource: "teams"}
	// CurrentUserKey holds the signed in user's profile.
	CurrentUserKey = query.Key{"users", "me"}
)

var (
	accounts    = resource[Account]{path: AccountsPath, plural: "accounts", singular: "account", keys: Accounts}
	workspaces  = resource[Workspace]{path: WorkspacesPath, plural: "workspaces", singular: "workspace", keys: Workspaces}
	departments = resource[Department]{path: DepartmentsPath, plural: "departments", singular: "department", keys: Departments}
	teams       = resource[Team]{path: TeamsPath, plural: "teams", singular: "team", keys: Teams}
)

// API is the subset of the API client the service calls.
type API interface {
	Do(ctx context.Context, req apiclient.Request, out interface{}) error
}

type Service struct {
	api    API
	cache  *query.Cache
	logger zerolog.Logger
}

type Option func(*Service)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(api API, cache *query.Cache, options ...Option) (*Service, error) {
	if api == nil {
		return nil, errors.New("[NewService] api is required")
	}
	if cache == nil {
		return nil, errors.New("[NewService] cache is required")
	}
	s := &Service{api: api, cache: cache, logger: log.Logger}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

func (s *Service) Cache() *query.Cache {
	return s.cache
}

// CurrentUser reads the signed in profile. It is never retried, so an auth
// failure reaches the session straight away.
func (s *Service) CurrentUser(ctx context.Context) (*users.Profile, error) {
	return query.Fetch(ctx, s.cache, query.Query[*users.Profile]{
		Key:   CurrentUserKey,
		Retry: query.NoRetry,
		Fetch: func(ctx context.Context) (*users.Profile, error) {
			var raw json.RawMessage
			if err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: CurrentUserPath}, &raw); err != nil {
				return nil, err
			}
			data, err := apiclient.UnwrapData(raw)
			if err != nil {
				return nil, err
			}
			return users.Normalize(data)
		},
	})
}

func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	return accounts.list(ctx, s, scope{})
}

// ObserveAccounts is ListAccounts for a list that stays on screen. The list is
// refetched on focus and after invalidation until the observer is closed.
func (s *Service) ObserveAccounts(ctx context.Context) ([]Account, *query.Observer, error) {
	return accounts.observe(ctx, s, scope{})
}

func (s *Service) GetAccount(ctx context.Context, id string) (Account, error) {
	return accounts.get(ctx, s, scope{accountID: id}, id)
}

func (s *Service) CreateAccount(ctx context.Context, in AccountInput) (Account, error) {
	if err := requireName(in.Name, "CreateAccount"); err != nil {
		return Account{}, err
	}
	return accounts.create(ctx, s, scope{}, in)
}

func (s *Service) UpdateAccount(ctx context.Context, id string, in AccountInput) (Account, error) {
	if err := requireName(in.Name, "UpdateAccount"); err != nil {
		return Account{}, err
	}
	return accounts.update(ctx, s, scope{accountID: id}, id, in)
}

// DeleteAccount invalidates the account's detail entry and the account lists.
// Entries of other resources are left alone.
func (s *Service) DeleteAccount(ctx context.Context, id string) error {
	return accounts.remove(ctx, s, scope{accountID: id}, id)
}

func workspaceScope(accountID string) scope {
	return scope{accountID: accountID, filter: url.Values{"accountId": {accountID}}}
}

func (s *Service) ListWorkspaces(ctx context.Context, accountID string) ([]Workspace, error) {
	if accountID == "" {
		return nil, errors.Wrap(IDRequiredErr, "ListWorkspaces account")
	}
	return workspaces.list(ctx, s, workspaceScope(accountID))
}

func (s *Service) ObserveWorkspaces(ctx context.Context, accountID string) ([]Workspace, *query.Observer, error) {
	if accountID == "" {
		return nil, nil, errors.Wrap(IDRequiredErr, "ObserveWorkspaces account")
	}
	return workspaces.observe(ctx, s, workspaceScope(accountID))
}

func (s *Service) GetWorkspace(ctx context.Context, accountID, id string) (Workspace, error) {
	return workspaces.get(ctx, s, workspaceScope(accountID), id)
}

func (s *Service) CreateWorkspace(ctx context.Context, accountID string, in WorkspaceInput) (Workspace, error) {
	if err := requireName(in.Name, "CreateWorkspace"); err != nil {
		return Workspace{}, err
	}
	return workspaces.create(ctx, s, workspaceScope(accountID), in)
}

func (s *Service) UpdateWorkspace(ctx context.Context, accountID, id string, in WorkspaceInput) (Workspace, error) {
	if err := requireName(in.Name, "UpdateWorkspace"); err != nil {
		return Workspace{}, err
	}
	return workspaces.update(ctx, s, workspaceScope(accountID), id, in)
}

func (s *Service) DeleteWorkspace(ctx context.Context, accountID, id string) error {
	return workspaces.remove(ctx, s, workspaceScope(accountID), id)
}

func departmentScope(accountID, workspaceID string) scope {
	return scope{accountID: accountID, filter: url.Values{"workspaceId": {workspaceID}}}
}

func (s *Service) ListDepartments(ctx context.Context, accountID, workspaceID string) ([]Department, error) {
	if workspaceID == "" {
		return nil, errors.Wrap(IDRequiredErr, "ListDepartments workspace")
	}
	return departments.list(ctx, s, departmentScope(accountID, workspaceID))
}

func (s *Service) CreateDepartment(ctx context.Context, accountID string, in DepartmentInput) (Department, error) {
	if err := requireName(in.Name, "CreateDepartment"); err != nil {
		return Department{}, err
	}
	if in.WorkspaceID == "" {
		return Department{}, errors.Wrap(IDRequiredErr, "CreateDepartment workspace")
	}
	return departments.create(ctx, s, departmentScope(accountID, in.WorkspaceID), in)
}

func (s *Service) UpdateDepartment(ctx context.Context, accountID, workspaceID, id string, in DepartmentInput) (Department, error) {
	if err := requireName(in.Name, "UpdateDepartment"); err != nil {
		return Department{}, err
	}
	return departments.update(ctx, s, departmentScope(accountID, workspaceID), id, in)
}

func (s *Service) DeleteDepartment(ctx context.Context, accountID, workspaceID, id string) error {
	return departments.remove(ctx, s, departmentScope(accountID, workspaceID), id)
}

func teamScope(accountID, departmentID string) scope {
	return scope{accountID: accountID, filter: url.Values{"departmentId": {departmentID}}}
}

func (s *Service) ListTeams(ctx context.Context, accountID, departmentID string) ([]Team, error) {
	if departmentID == "" {
		return nil, errors.Wrap(IDRequiredErr, "ListTeams department")
	}
	return teams.list(ctx, s, teamScope(accountID, departmentID))
}

func (s *Service) CreateTeam(ctx context.Context, accountID string, in TeamInput) (Team, error) {
	if err := requireName(in.Name, "CreateTeam"); err != nil {
		return Team{}, err
	}
	if in.DepartmentID == "" {
		return Team{}, errors.Wrap(IDRequiredErr, "CreateTeam department")
	}
	return teams.create(ctx, s, teamScope(accountID, in.DepartmentID), in)
}

func (s *Service) UpdateTeam(ctx context.Context, accountID, departmentID, id string, in TeamInput) (Team, error) {
	if err := requireName(in.Name, "UpdateTeam"); err != nil {
		return Team{}, err
	}
	return teams.update(ctx, s, teamScope(accountID, departmentID), id, in)
}

func (s *Service) DeleteTeam(ctx context.Context, accountID, departmentID, id string) error {
	return teams.remove(ctx, s, teamScope(accountID, departmentID), id)
}

func requireName(name, op string) error {
	if strings.TrimSpace(name) == "" {
		return errors.Wrap(NameRequiredErr, op)
	}
	return nil
}
