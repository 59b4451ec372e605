package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"
	"time"

	"covenant/api/internal/config"
	"covenant/api/internal/revlog"
	"covenant/api/internal/store"
)

type fakeStore struct {
	getUserFn                func(context.Context, string) (store.User, error)
	insertUserFn             func(context.Context, store.User) error
	deleteUserFn             func(context.Context, string) error
	userExistsFn             func(context.Context, string) (bool, error)
	getCohortFn              func(context.Context, string) (store.Cohort, error)
	getContractFn            func(context.Context, string) (store.Contract, error)
	getContractTreeFn        func(context.Context, string) (store.ContractTree, error)
	insertContractFn         func(context.Context, store.Contract) error
	deleteContractFn         func(context.Context, string) error
	getClauseFn              func(context.Context, string) (store.Clause, error)
	insertClauseFn           func(context.Context, store.Clause) error
	deleteClauseFn           func(context.Context, string) error
	getAmendmentFn           func(context.Context, string) (store.Amendment, error)
	listAmendmentsFn         func(context.Context, string) ([]store.Amendment, error)
	insertAmendmentFn        func(context.Context, store.Amendment) error
	decideAmendmentFn        func(context.Context, string, string, string) (store.Amendment, error)
	insertTensionFn          func(context.Context, store.TensionMeasurement) (store.TensionMeasurement, error)
	getFailureEntryFn        func(context.Context, string) (store.FailureEntry, error)
	updateFailureEntryFn     func(context.Context, string, string, string) error
	getJournalEntryFn        func(context.Context, string) (store.JournalEntry, error)
	insertJournalEntryFn     func(context.Context, store.JournalEntry) error
	listContractsFn          func(context.Context, string) ([]store.Contract, error)
	listTensionFn            func(context.Context, string) ([]store.TensionMeasurement, error)
	summaryCountsFn          func(context.Context) (int, int, int, error)
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) ListUsers(context.Context) ([]store.User, error) { return nil, nil }
func (f *fakeStore) GetUser(ctx context.Context, userID string) (store.User, error) {
	if f.getUserFn != nil {
		return f.getUserFn(ctx, userID)
	}
	return store.User{ID: userID, DisplayName: "Someone", Role: "PARTICIPANT"}, nil
}
func (f *fakeStore) InsertUser(ctx context.Context, item store.User) error {
	if f.insertUserFn != nil {
		return f.insertUserFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) UpdateUser(context.Context, string, string, string) error { return nil }
func (f *fakeStore) DeleteUser(ctx context.Context, userID string) error {
	if f.deleteUserFn != nil {
		return f.deleteUserFn(ctx, userID)
	}
	return nil
}
func (f *fakeStore) UserExists(ctx context.Context, userID string) (bool, error) {
	if f.userExistsFn != nil {
		return f.userExistsFn(ctx, userID)
	}
	return true, nil
}

func (f *fakeStore) ListCohorts(context.Context) ([]store.Cohort, error) { return nil, nil }
func (f *fakeStore) GetCohort(ctx context.Context, cohortID string) (store.Cohort, error) {
	if f.getCohortFn != nil {
		return f.getCohortFn(ctx, cohortID)
	}
	return store.Cohort{ID: cohortID, Name: "Cohort"}, nil
}
func (f *fakeStore) InsertCohort(context.Context, store.Cohort) error        { return nil }
func (f *fakeStore) UpdateCohort(context.Context, string, string) error      { return nil }
func (f *fakeStore) DeleteCohort(context.Context, string) error              { return nil }
func (f *fakeStore) ListCohortMembers(context.Context, string) ([]store.CohortMember, error) {
	return nil, nil
}
func (f *fakeStore) AddCohortMember(context.Context, string, string) error    { return nil }
func (f *fakeStore) RemoveCohortMember(context.Context, string, string) error { return nil }

func (f *fakeStore) ListContracts(ctx context.Context, cohortID string) ([]store.Contract, error) {
	if f.listContractsFn != nil {
		return f.listContractsFn(ctx, cohortID)
	}
	return nil, nil
}
func (f *fakeStore) GetContract(ctx context.Context, contractID string) (store.Contract, error) {
	if f.getContractFn != nil {
		return f.getContractFn(ctx, contractID)
	}
	return store.Contract{ID: contractID, CohortID: "coh_1", Title: "Contract"}, nil
}
func (f *fakeStore) GetContractTree(ctx context.Context, contractID string) (store.ContractTree, error) {
	if f.getContractTreeFn != nil {
		return f.getContractTreeFn(ctx, contractID)
	}
	return store.ContractTree{Contract: store.Contract{ID: contractID}}, nil
}
func (f *fakeStore) InsertContract(ctx context.Context, item store.Contract) error {
	if f.insertContractFn != nil {
		return f.insertContractFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) UpdateContractTitle(context.Context, string, string) error { return nil }
func (f *fakeStore) DeleteContract(ctx context.Context, contractID string) error {
	if f.deleteContractFn != nil {
		return f.deleteContractFn(ctx, contractID)
	}
	return nil
}

func (f *fakeStore) ListClauses(context.Context, string) ([]store.Clause, error) { return nil, nil }
func (f *fakeStore) GetClause(ctx context.Context, clauseID string) (store.Clause, error) {
	if f.getClauseFn != nil {
		return f.getClauseFn(ctx, clauseID)
	}
	return store.Clause{ID: clauseID, ContractID: "ctr_1", Content: "original"}, nil
}
func (f *fakeStore) InsertClause(ctx context.Context, item store.Clause) error {
	if f.insertClauseFn != nil {
		return f.insertClauseFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) DeleteClause(ctx context.Context, clauseID string) error {
	if f.deleteClauseFn != nil {
		return f.deleteClauseFn(ctx, clauseID)
	}
	return nil
}

func (f *fakeStore) GetAmendment(ctx context.Context, amendmentID string) (store.Amendment, error) {
	if f.getAmendmentFn != nil {
		return f.getAmendmentFn(ctx, amendmentID)
	}
	return store.Amendment{ID: amendmentID, ClauseID: "cls_1", Status: store.AmendmentPending}, nil
}
func (f *fakeStore) ListAmendments(ctx context.Context, clauseID string) ([]store.Amendment, error) {
	if f.listAmendmentsFn != nil {
		return f.listAmendmentsFn(ctx, clauseID)
	}
	return nil, nil
}
func (f *fakeStore) InsertAmendment(ctx context.Context, item store.Amendment) error {
	if f.insertAmendmentFn != nil {
		return f.insertAmendmentFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) DecideAmendment(ctx context.Context, amendmentID, status, deciderID string) (store.Amendment, error) {
	if f.decideAmendmentFn != nil {
		return f.decideAmendmentFn(ctx, amendmentID, status, deciderID)
	}
	return store.Amendment{ID: amendmentID, ClauseID: "cls_1", Status: status}, nil
}

func (f *fakeStore) ListTensionMeasurements(ctx context.Context, contractID string) ([]store.TensionMeasurement, error) {
	if f.listTensionFn != nil {
		return f.listTensionFn(ctx, contractID)
	}
	return nil, nil
}
func (f *fakeStore) InsertTensionMeasurement(ctx context.Context, item store.TensionMeasurement) (store.TensionMeasurement, error) {
	if f.insertTensionFn != nil {
		return f.insertTensionFn(ctx, item)
	}
	item.CreatedAt = time.Now()
	return item, nil
}
func (f *fakeStore) ListJournalEntries(context.Context, string) ([]store.JournalEntry, error) {
	return nil, nil
}
func (f *fakeStore) GetJournalEntry(ctx context.Context, entryID string) (store.JournalEntry, error) {
	if f.getJournalEntryFn != nil {
		return f.getJournalEntryFn(ctx, entryID)
	}
	return store.JournalEntry{ID: entryID, ContractID: "ctr_1"}, nil
}
func (f *fakeStore) InsertJournalEntry(ctx context.Context, item store.JournalEntry) error {
	if f.insertJournalEntryFn != nil {
		return f.insertJournalEntryFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) UpdateJournalEntry(context.Context, string, string, string) error { return nil }
func (f *fakeStore) ListFailureEntries(context.Context, string) ([]store.FailureEntry, error) {
	return nil, nil
}
func (f *fakeStore) GetFailureEntry(ctx context.Context, failureID string) (store.FailureEntry, error) {
	if f.getFailureEntryFn != nil {
		return f.getFailureEntryFn(ctx, failureID)
	}
	return store.FailureEntry{ID: failureID, ContractID: "ctr_1"}, nil
}
func (f *fakeStore) InsertFailureEntry(context.Context, store.FailureEntry) error { return nil }
func (f *fakeStore) UpdateFailureEntry(ctx context.Context, failureID, title, content string) error {
	if f.updateFailureEntryFn != nil {
		return f.updateFailureEntryFn(ctx, failureID, title, content)
	}
	return nil
}
func (f *fakeStore) ListIterations(context.Context, string) ([]store.Iteration, error) {
	return nil, nil
}
func (f *fakeStore) InsertIteration(_ context.Context, item store.Iteration) (store.Iteration, error) {
	item.CreatedAt = time.Now()
	return item, nil
}

func (f *fakeStore) SummaryCounts(ctx context.Context) (int, int, int, error) {
	if f.summaryCountsFn != nil {
		return f.summaryCountsFn(ctx)
	}
	return 0, 0, 0, nil
}

type fakeRevlog struct {
	ensureFn  func(string, string) error
	commitFn  func(string, string, string, string, string) (revlog.CommitInfo, error)
	historyFn func(string, int) ([]revlog.CommitInfo, error)
	commits   []string
}

func (f *fakeRevlog) EnsureContractRepo(contractID, author string) error {
	if f.ensureFn != nil {
		return f.ensureFn(contractID, author)
	}
	return nil
}
func (f *fakeRevlog) CommitClause(contractID, clauseID, content, author, message string) (revlog.CommitInfo, error) {
	f.commits = append(f.commits, message)
	if f.commitFn != nil {
		return f.commitFn(contractID, clauseID, content, author, message)
	}
	return revlog.CommitInfo{Hash: "abc1234", Message: message, Author: author, CreatedAt: time.Now()}, nil
}
func (f *fakeRevlog) History(contractID string, limit int) ([]revlog.CommitInfo, error) {
	if f.historyFn != nil {
		return f.historyFn(contractID, limit)
	}
	return nil, nil
}
func (f *fakeRevlog) SnapshotAt(string, string) (map[string]string, error) {
	return map[string]string{}, nil
}

func newTestService(fs *fakeStore, fr *fakeRevlog) *Service {
	return &Service{
		cfg:    config.Config{},
		store:  fs,
		revlog: fr,
	}
}

func expectDomainError(t *testing.T, err error, status int, code string) *DomainError {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != status || domainErr.Code != code {
		t.Fatalf("expected %d %s, got %d %s", status, code, domainErr.Status, domainErr.Code)
	}
	return domainErr
}

func TestProposeAmendmentRequiresContent(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeRevlog{})
	_, err := svc.ProposeAmendment(context.Background(), "ctr_1", "cls_1", "usr_1", "   ")
	expectDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestProposeAmendmentUnknownClause(t *testing.T) {
	fs := &fakeStore{
		getClauseFn: func(context.Context, string) (store.Clause, error) {
			return store.Clause{}, sql.ErrNoRows
		},
	}
	svc := newTestService(fs, &fakeRevlog{})
	_, err := svc.ProposeAmendment(context.Background(), "ctr_1", "cls_missing", "usr_1", "new text")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestProposeAmendmentClauseFromOtherContract(t *testing.T) {
	fs := &fakeStore{
		getClauseFn: func(_ context.Context, clauseID string) (store.Clause, error) {
			return store.Clause{ID: clauseID, ContractID: "ctr_other"}, nil
		},
	}
	svc := newTestService(fs, &fakeRevlog{})
	_, err := svc.ProposeAmendment(context.Background(), "ctr_1", "cls_1", "usr_1", "new text")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for mismatched contract, got %v", err)
	}
}

func TestProposeAmendmentNeverTouchesClauseOrRevlog(t *testing.T) {
	inserted := store.Amendment{}
	fs := &fakeStore{
		insertAmendmentFn: func(_ context.Context, item store.Amendment) error {
			inserted = item
			return nil
		},
		getAmendmentFn: func(_ context.Context, amendmentID string) (store.Amendment, error) {
			inserted.ID = amendmentID
			return inserted, nil
		},
	}
	fr := &fakeRevlog{}
	svc := newTestService(fs, fr)

	payload, err := svc.ProposeAmendment(context.Background(), "ctr_1", "cls_1", "usr_1", "new text")
	if err != nil {
		t.Fatalf("propose failed: %v", err)
	}
	if inserted.Status != store.AmendmentPending {
		t.Fatalf("expected inserted amendment to be PENDING, got %q", inserted.Status)
	}
	if payload["status"] != store.AmendmentPending {
		t.Fatalf("expected payload status PENDING, got %v", payload["status"])
	}
	if len(fr.commits) != 0 {
		t.Fatalf("propose must not write a revision commit, got %v", fr.commits)
	}
}

func TestDecideAmendmentRejectsUnknownDecision(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeRevlog{})
	_, err := svc.DecideAmendment(context.Background(), "amd_1", "MAYBE", "usr_1")
	expectDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestDecideAmendmentAlreadyDecided(t *testing.T) {
	fs := &fakeStore{
		decideAmendmentFn: func(context.Context, string, string, string) (store.Amendment, error) {
			return store.Amendment{}, store.ErrAlreadyDecided
		},
	}
	svc := newTestService(fs, &fakeRevlog{})
	_, err := svc.DecideAmendment(context.Background(), "amd_1", "REJECT", "usr_1")
	expectDomainError(t, err, http.StatusConflict, "INVALID_STATE")
}

func TestDecideAmendmentAcceptCommitsRevision(t *testing.T) {
	decidedBy := "usr_decider"
	now := time.Now()
	fs := &fakeStore{
		decideAmendmentFn: func(_ context.Context, amendmentID, status, deciderID string) (store.Amendment, error) {
			if status != store.AmendmentAccepted {
				t.Fatalf("expected ACCEPTED status passed to store, got %q", status)
			}
			return store.Amendment{ID: amendmentID, ClauseID: "cls_1", Status: status, DecidedBy: &decidedBy, DecidedAt: &now}, nil
		},
		getClauseFn: func(_ context.Context, clauseID string) (store.Clause, error) {
			return store.Clause{ID: clauseID, ContractID: "ctr_1", Content: "accepted text"}, nil
		},
		getAmendmentFn: func(_ context.Context, amendmentID string) (store.Amendment, error) {
			return store.Amendment{ID: amendmentID, ClauseID: "cls_1", Status: store.AmendmentAccepted, DecidedBy: &decidedBy, DecidedAt: &now}, nil
		},
	}
	fr := &fakeRevlog{}
	svc := newTestService(fs, fr)

	payload, err := svc.DecideAmendment(context.Background(), "amd_1", "accept", decidedBy)
	if err != nil {
		t.Fatalf("decide failed: %v", err)
	}
	if payload["status"] != store.AmendmentAccepted {
		t.Fatalf("expected ACCEPTED payload, got %v", payload["status"])
	}
	if payload["decidedBy"] != decidedBy {
		t.Fatalf("expected decidedBy %q, got %v", decidedBy, payload["decidedBy"])
	}
	if len(fr.commits) != 1 {
		t.Fatalf("expected one revision commit for the accept, got %d", len(fr.commits))
	}
}

func TestDecideAmendmentRejectSkipsRevision(t *testing.T) {
	fs := &fakeStore{
		decideAmendmentFn: func(_ context.Context, amendmentID, status, _ string) (store.Amendment, error) {
			return store.Amendment{ID: amendmentID, ClauseID: "cls_1", Status: status}, nil
		},
		getAmendmentFn: func(_ context.Context, amendmentID string) (store.Amendment, error) {
			return store.Amendment{ID: amendmentID, ClauseID: "cls_1", Status: store.AmendmentRejected}, nil
		},
	}
	fr := &fakeRevlog{}
	svc := newTestService(fs, fr)

	payload, err := svc.DecideAmendment(context.Background(), "amd_1", "REJECT", "usr_1")
	if err != nil {
		t.Fatalf("decide failed: %v", err)
	}
	if payload["status"] != store.AmendmentRejected {
		t.Fatalf("expected REJECTED payload, got %v", payload["status"])
	}
	if len(fr.commits) != 0 {
		t.Fatalf("reject must not write a revision commit, got %v", fr.commits)
	}
}

func TestCreateUserValidation(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeRevlog{})

	if _, err := svc.CreateUser(context.Background(), "", "Ada", ""); err == nil {
		t.Fatal("expected error for missing email")
	}
	if _, err := svc.CreateUser(context.Background(), "not-an-email", "Ada", ""); err == nil {
		t.Fatal("expected error for invalid email")
	}
	_, err := svc.CreateUser(context.Background(), "ada@example.com", "Ada", "OVERLORD")
	expectDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	fs := &fakeStore{
		insertUserFn: func(context.Context, store.User) error {
			return store.ErrDuplicateEmail
		},
	}
	svc := newTestService(fs, &fakeRevlog{})
	_, err := svc.CreateUser(context.Background(), "ada@example.com", "Ada", "PARTICIPANT")
	expectDomainError(t, err, http.StatusConflict, "CONFLICT")
}

func TestCreateContractValidatesNestedClauses(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeRevlog{})

	_, err := svc.CreateContract(context.Background(), "coh_1", "Our Contract", "", []NestedClauseInput{
		{AuthorID: "usr_1", Content: "  "},
	})
	expectDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	fs := &fakeStore{
		userExistsFn: func(context.Context, string) (bool, error) { return false, nil },
	}
	svc = newTestService(fs, &fakeRevlog{})
	_, err = svc.CreateContract(context.Background(), "coh_1", "Our Contract", "", []NestedClauseInput{
		{AuthorID: "usr_ghost", Content: "show up on time"},
	})
	expectDomainError(t, err, http.StatusNotFound, "NOT_FOUND")
}

func TestCreateContractCommitsInitialClauses(t *testing.T) {
	fs := &fakeStore{
		getClauseFn: func(_ context.Context, clauseID string) (store.Clause, error) {
			return store.Clause{ID: clauseID, ContractID: "ctr_1", Content: "show up on time", AuthorName: "Ada"}, nil
		},
	}
	fr := &fakeRevlog{}
	svc := newTestService(fs, fr)

	_, err := svc.CreateContract(context.Background(), "coh_1", "Our Contract", "usr_1", []NestedClauseInput{
		{Content: "show up on time"},
		{Content: "review each sprint"},
	})
	if err != nil {
		t.Fatalf("create contract failed: %v", err)
	}
	if len(fr.commits) != 2 {
		t.Fatalf("expected one revision commit per nested clause, got %d", len(fr.commits))
	}
}

func TestDeleteContractWithClausesConflicts(t *testing.T) {
	fs := &fakeStore{
		deleteContractFn: func(context.Context, string) error {
			return store.ErrHasDependents
		},
	}
	svc := newTestService(fs, &fakeRevlog{})
	err := svc.DeleteContract(context.Background(), "ctr_1")
	expectDomainError(t, err, http.StatusConflict, "CONFLICT")
}

func TestDeleteClauseWithAmendmentsConflicts(t *testing.T) {
	fs := &fakeStore{
		deleteClauseFn: func(context.Context, string) error {
			return store.ErrHasDependents
		},
	}
	svc := newTestService(fs, &fakeRevlog{})
	err := svc.DeleteClause(context.Background(), "cls_1")
	expectDomainError(t, err, http.StatusConflict, "CONFLICT")
}

func TestRecordTensionRequiresValue(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeRevlog{})
	_, err := svc.RecordTension(context.Background(), "ctr_1", "usr_1", nil, "")
	expectDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestUpdateFailureEntryFrozenAfterIterations(t *testing.T) {
	fs := &fakeStore{
		updateFailureEntryFn: func(context.Context, string, string, string) error {
			return store.ErrHasIterations
		},
	}
	svc := newTestService(fs, &fakeRevlog{})
	_, err := svc.UpdateFailureEntry(context.Background(), "fail_1", "title", "content")
	expectDomainError(t, err, http.StatusConflict, "INVALID_STATE")
}
