package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"covenant/api/internal/archive"
	"covenant/api/internal/cache"
	"covenant/api/internal/config"
	"covenant/api/internal/export"
	"covenant/api/internal/revlog"
	"covenant/api/internal/search"
	"covenant/api/internal/store"
	"covenant/api/internal/util"
)

var allowedRoles = map[string]struct{}{
	"PARTICIPANT": {},
	"FACILITATOR": {},
	"ADMIN":       {},
}

type dataStore interface {
	Ping(ctx context.Context) error

	ListUsers(context.Context) ([]store.User, error)
	GetUser(context.Context, string) (store.User, error)
	InsertUser(context.Context, store.User) error
	UpdateUser(context.Context, string, string, string) error
	DeleteUser(context.Context, string) error
	UserExists(context.Context, string) (bool, error)

	ListCohorts(context.Context) ([]store.Cohort, error)
	GetCohort(context.Context, string) (store.Cohort, error)
	InsertCohort(context.Context, store.Cohort) error
	UpdateCohort(context.Context, string, string) error
	DeleteCohort(context.Context, string) error
	ListCohortMembers(context.Context, string) ([]store.CohortMember, error)
	AddCohortMember(context.Context, string, string) error
	RemoveCohortMember(context.Context, string, string) error

	ListContracts(context.Context, string) ([]store.Contract, error)
	GetContract(context.Context, string) (store.Contract, error)
	GetContractTree(context.Context, string) (store.ContractTree, error)
	InsertContract(context.Context, store.Contract) error
	UpdateContractTitle(context.Context, string, string) error
	DeleteContract(context.Context, string) error

	ListClauses(context.Context, string) ([]store.Clause, error)
	GetClause(context.Context, string) (store.Clause, error)
	InsertClause(context.Context, store.Clause) error
	DeleteClause(context.Context, string) error

	GetAmendment(context.Context, string) (store.Amendment, error)
	ListAmendments(context.Context, string) ([]store.Amendment, error)
	InsertAmendment(context.Context, store.Amendment) error
	DecideAmendment(context.Context, string, string, string) (store.Amendment, error)

	ListTensionMeasurements(context.Context, string) ([]store.TensionMeasurement, error)
	InsertTensionMeasurement(context.Context, store.TensionMeasurement) (store.TensionMeasurement, error)
	ListJournalEntries(context.Context, string) ([]store.JournalEntry, error)
	GetJournalEntry(context.Context, string) (store.JournalEntry, error)
	InsertJournalEntry(context.Context, store.JournalEntry) error
	UpdateJournalEntry(context.Context, string, string, string) error
	ListFailureEntries(context.Context, string) ([]store.FailureEntry, error)
	GetFailureEntry(context.Context, string) (store.FailureEntry, error)
	InsertFailureEntry(context.Context, store.FailureEntry) error
	UpdateFailureEntry(context.Context, string, string, string) error
	ListIterations(context.Context, string) ([]store.Iteration, error)
	InsertIteration(context.Context, store.Iteration) (store.Iteration, error)

	SummaryCounts(context.Context) (int, int, int, error)
}

type revisionLog interface {
	EnsureContractRepo(contractID, author string) error
	CommitClause(contractID, clauseID, content, author, message string) (revlog.CommitInfo, error)
	History(contractID string, limit int) ([]revlog.CommitInfo, error)
	SnapshotAt(contractID, hash string) (map[string]string, error)
}

type Service struct {
	cfg     config.Config
	store   dataStore
	revlog  revisionLog
	search  *search.Service
	cache   *cache.ContractCache
	export  *export.Service
	archive *archive.Service
}

// New wires the service. search is required; cache, export, and archive may
// be nil when not configured.
func New(cfg config.Config, dataStore *store.PostgresStore, revisionLog *revlog.Service, searchSvc *search.Service, contractCache *cache.ContractCache, exportSvc *export.Service, archiveSvc *archive.Service) *Service {
	return &Service{
		cfg:     cfg,
		store:   dataStore,
		revlog:  revisionLog,
		search:  searchSvc,
		cache:   contractCache,
		export:  exportSvc,
		archive: archiveSvc,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap runs startup work that needs the full stack: reindexing the
// search backend from Postgres when it is reachable.
func (s *Service) Bootstrap(ctx context.Context) {
	if s.search != nil {
		s.search.ReindexAllFromPG(ctx)
	}
}

func (s *Service) Summary(ctx context.Context) (map[string]any, error) {
	contracts, pending, accepted, err := s.store.SummaryCounts(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"contracts":          contracts,
		"pendingAmendments":  pending,
		"acceptedAmendments": accepted,
	}, nil
}

func (s *Service) Search(ctx context.Context, text, filterType, cohortID string, limit, offset int) (map[string]any, error) {
	if filterType != "" {
		switch search.ResultType(filterType) {
		case search.ResultContract, search.ResultClause, search.ResultJournal:
		default:
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "type must be one of contract, clause, journal", nil)
		}
	}
	resp := s.search.Search(search.Query{
		Text:           text,
		FilterType:     search.ResultType(filterType),
		FilterCohortID: cohortID,
		Limit:          limit,
		Offset:         offset,
	})
	return map[string]any{
		"results": resp.Results,
		"total":   resp.Total,
		"query":   resp.Query,
	}, nil
}

// Users

func (s *Service) ListUsers(ctx context.Context) ([]map[string]any, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(users))
	for _, u := range users {
		items = append(items, userPayload(u))
	}
	return items, nil
}

func (s *Service) GetUser(ctx context.Context, userID string) (map[string]any, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return userPayload(user), nil
}

func (s *Service) CreateUser(ctx context.Context, email, displayName, role string) (map[string]any, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	displayName = strings.TrimSpace(displayName)
	role = strings.TrimSpace(strings.ToUpper(role))
	if email == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "email is required", nil)
	}
	if !strings.Contains(email, "@") {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "email is invalid", nil)
	}
	if displayName == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "displayName is required", nil)
	}
	if role == "" {
		role = "PARTICIPANT"
	}
	if _, ok := allowedRoles[role]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "role must be one of PARTICIPANT, FACILITATOR, ADMIN", nil)
	}

	user := store.User{
		ID:          util.NewID("usr"),
		Email:       email,
		DisplayName: displayName,
		Role:        role,
	}
	if err := s.store.InsertUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, domainError(http.StatusConflict, "CONFLICT", "email already registered", nil)
		}
		return nil, err
	}
	return s.GetUser(ctx, user.ID)
}

func (s *Service) UpdateUser(ctx context.Context, userID, displayName, role string) (map[string]any, error) {
	displayName = strings.TrimSpace(displayName)
	role = strings.TrimSpace(strings.ToUpper(role))
	if displayName == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "displayName is required", nil)
	}
	if role == "" {
		current, err := s.store.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		role = current.Role
	}
	if _, ok := allowedRoles[role]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "role must be one of PARTICIPANT, FACILITATOR, ADMIN", nil)
	}
	if err := s.store.UpdateUser(ctx, userID, displayName, role); err != nil {
		return nil, err
	}
	return s.GetUser(ctx, userID)
}

func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrHasDependents) {
			return domainError(http.StatusConflict, "CONFLICT", "user still has contracts, clauses, or records", nil)
		}
		return err
	}
	return nil
}

// Cohorts

func (s *Service) ListCohorts(ctx context.Context) ([]map[string]any, error) {
	cohorts, err := s.store.ListCohorts(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(cohorts))
	for _, c := range cohorts {
		items = append(items, cohortPayload(c))
	}
	return items, nil
}

func (s *Service) GetCohort(ctx context.Context, cohortID string) (map[string]any, error) {
	cohort, err := s.store.GetCohort(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListCohortMembers(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	payload := cohortPayload(cohort)
	memberItems := make([]map[string]any, 0, len(members))
	for _, m := range members {
		memberItems = append(memberItems, memberPayload(m))
	}
	payload["members"] = memberItems
	return payload, nil
}

func (s *Service) CreateCohort(ctx context.Context, name string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	cohort := store.Cohort{
		ID:   util.NewID("coh"),
		Name: name,
	}
	if err := s.store.InsertCohort(ctx, cohort); err != nil {
		return nil, err
	}
	return s.GetCohort(ctx, cohort.ID)
}

func (s *Service) UpdateCohort(ctx context.Context, cohortID, name string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if err := s.store.UpdateCohort(ctx, cohortID, name); err != nil {
		return nil, err
	}
	return s.GetCohort(ctx, cohortID)
}

func (s *Service) DeleteCohort(ctx context.Context, cohortID string) error {
	if err := s.store.DeleteCohort(ctx, cohortID); err != nil {
		if errors.Is(err, store.ErrHasDependents) {
			return domainError(http.StatusConflict, "CONFLICT", "cohort still has contracts or members", nil)
		}
		return err
	}
	return nil
}

func (s *Service) ListCohortMembers(ctx context.Context, cohortID string) ([]map[string]any, error) {
	if _, err := s.store.GetCohort(ctx, cohortID); err != nil {
		return nil, err
	}
	members, err := s.store.ListCohortMembers(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(members))
	for _, m := range members {
		items = append(items, memberPayload(m))
	}
	return items, nil
}

func (s *Service) AddCohortMember(ctx context.Context, cohortID, userID string) (map[string]any, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "userId is required", nil)
	}
	if _, err := s.store.GetCohort(ctx, cohortID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.store.AddCohortMember(ctx, cohortID, userID); err != nil {
		if errors.Is(err, store.ErrDuplicateMember) {
			return nil, domainError(http.StatusConflict, "CONFLICT", "user is already a member of this cohort", nil)
		}
		return nil, err
	}
	return s.GetCohort(ctx, cohortID)
}

func (s *Service) RemoveCohortMember(ctx context.Context, cohortID, userID string) error {
	if _, err := s.store.GetCohort(ctx, cohortID); err != nil {
		return err
	}
	return s.store.RemoveCohortMember(ctx, cohortID, userID)
}

// Payload shaping

func userPayload(u store.User) map[string]any {
	return map[string]any{
		"id":          u.ID,
		"email":       u.Email,
		"displayName": u.DisplayName,
		"role":        u.Role,
		"createdAt":   u.CreatedAt.Format(time.RFC3339),
		"updatedAt":   u.UpdatedAt.Format(time.RFC3339),
	}
}

func cohortPayload(c store.Cohort) map[string]any {
	return map[string]any{
		"id":        c.ID,
		"name":      c.Name,
		"createdAt": c.CreatedAt.Format(time.RFC3339),
		"updatedAt": c.UpdatedAt.Format(time.RFC3339),
	}
}

func memberPayload(m store.CohortMember) map[string]any {
	return map[string]any{
		"userId":      m.UserID,
		"email":       m.Email,
		"displayName": m.DisplayName,
		"role":        m.Role,
		"joinedAt":    m.JoinedAt.Format(time.RFC3339),
	}
}
