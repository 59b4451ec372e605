package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"covenant/api/internal/util"
)

// These tests need a real Postgres and are gated on
// COVENANT_TEST_DATABASE_URL. They reset the public schema, so point the URL
// at a throwaway database.

func openTestStore(t *testing.T) *PostgresStore {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("COVENANT_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("COVENANT_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db)
}

type clauseFixture struct {
	author  User
	decider User
	clause  Clause
}

func seedClause(t *testing.T, s *PostgresStore) clauseFixture {
	t.Helper()
	ctx := context.Background()

	author := User{ID: util.NewID("usr"), Email: util.NewID("a") + "@example.com", DisplayName: "Ada", Role: "PARTICIPANT"}
	decider := User{ID: util.NewID("usr"), Email: util.NewID("b") + "@example.com", DisplayName: "Bea", Role: "FACILITATOR"}
	for _, u := range []User{author, decider} {
		if err := s.InsertUser(ctx, u); err != nil {
			t.Fatalf("insert user: %v", err)
		}
	}

	cohort := Cohort{ID: util.NewID("coh"), Name: "Spring Cohort"}
	if err := s.InsertCohort(ctx, cohort); err != nil {
		t.Fatalf("insert cohort: %v", err)
	}
	contract := Contract{ID: util.NewID("ctr"), CohortID: cohort.ID, Title: "Our Contract"}
	if err := s.InsertContract(ctx, contract); err != nil {
		t.Fatalf("insert contract: %v", err)
	}
	clause := Clause{ID: util.NewID("cls"), ContractID: contract.ID, AuthorID: author.ID, Content: "original text"}
	if err := s.InsertClause(ctx, clause); err != nil {
		t.Fatalf("insert clause: %v", err)
	}
	return clauseFixture{author: author, decider: decider, clause: clause}
}

func seedAmendment(t *testing.T, s *PostgresStore, fix clauseFixture, content string) Amendment {
	t.Helper()
	amendment := Amendment{
		ID:       util.NewID("amd"),
		ClauseID: fix.clause.ID,
		AuthorID: fix.author.ID,
		Content:  content,
		Status:   AmendmentPending,
	}
	if err := s.InsertAmendment(context.Background(), amendment); err != nil {
		t.Fatalf("insert amendment: %v", err)
	}
	return amendment
}

func TestDecideAmendmentSecondDecisionFails(t *testing.T) {
	s := openTestStore(t)
	fix := seedClause(t, s)
	amendment := seedAmendment(t, s, fix, "amended text")
	ctx := context.Background()

	decided, err := s.DecideAmendment(ctx, amendment.ID, AmendmentAccepted, fix.decider.ID)
	if err != nil {
		t.Fatalf("first decide failed: %v", err)
	}
	if decided.Status != AmendmentAccepted || decided.DecidedBy == nil || *decided.DecidedBy != fix.decider.ID {
		t.Fatalf("unexpected decision record: %+v", decided)
	}

	clause, err := s.GetClause(ctx, fix.clause.ID)
	if err != nil {
		t.Fatalf("get clause: %v", err)
	}
	if clause.Content != "amended text" {
		t.Fatalf("expected clause content overwritten, got %q", clause.Content)
	}
	if !clause.UpdatedAt.After(clause.CreatedAt) {
		t.Fatalf("expected updated_at to advance past created_at")
	}

	if _, err := s.DecideAmendment(ctx, amendment.ID, AmendmentRejected, fix.decider.ID); !errors.Is(err, ErrAlreadyDecided) {
		t.Fatalf("expected ErrAlreadyDecided on second decision, got %v", err)
	}
	clause, err = s.GetClause(ctx, fix.clause.ID)
	if err != nil {
		t.Fatalf("get clause after failed decide: %v", err)
	}
	if clause.Content != "amended text" {
		t.Fatalf("failed decide must not touch the clause, got %q", clause.Content)
	}
}

func TestDecideAmendmentRejectLeavesClauseUntouched(t *testing.T) {
	s := openTestStore(t)
	fix := seedClause(t, s)
	amendment := seedAmendment(t, s, fix, "amended text")
	ctx := context.Background()

	if _, err := s.DecideAmendment(ctx, amendment.ID, AmendmentRejected, fix.decider.ID); err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	clause, err := s.GetClause(ctx, fix.clause.ID)
	if err != nil {
		t.Fatalf("get clause: %v", err)
	}
	if clause.Content != "original text" {
		t.Fatalf("reject must leave clause content, got %q", clause.Content)
	}
}

func TestConcurrentAcceptsSerializePerClause(t *testing.T) {
	s := openTestStore(t)
	fix := seedClause(t, s)
	first := seedAmendment(t, s, fix, "proposal one")
	second := seedAmendment(t, s, fix, "proposal two")
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, amendmentID := range []string{first.ID, second.ID} {
		wg.Add(1)
		go func(slot int, id string) {
			defer wg.Done()
			_, errs[slot] = s.DecideAmendment(ctx, id, AmendmentAccepted, fix.decider.ID)
		}(i, amendmentID)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("accept %d failed: %v", i, err)
		}
	}

	clause, err := s.GetClause(ctx, fix.clause.ID)
	if err != nil {
		t.Fatalf("get clause: %v", err)
	}
	if clause.Content != "proposal one" && clause.Content != "proposal two" {
		t.Fatalf("clause content must be exactly one proposal, got %q", clause.Content)
	}
}

func TestUpdateFailureEntryFrozenAfterIteration(t *testing.T) {
	s := openTestStore(t)
	fix := seedClause(t, s)
	ctx := context.Background()

	entry := FailureEntry{
		ID:         util.NewID("fail"),
		ContractID: fix.clause.ContractID,
		UserID:     fix.author.ID,
		Title:      "missed retro",
		Content:    "we skipped the sprint retro",
	}
	if err := s.InsertFailureEntry(ctx, entry); err != nil {
		t.Fatalf("insert failure entry: %v", err)
	}

	if err := s.UpdateFailureEntry(ctx, entry.ID, "missed retro", "edited before iterations"); err != nil {
		t.Fatalf("edit before iterations should succeed: %v", err)
	}

	if _, err := s.InsertIteration(ctx, Iteration{ID: util.NewID("iter"), FailureID: entry.ID, Content: "try a shorter retro"}); err != nil {
		t.Fatalf("insert iteration: %v", err)
	}

	if err := s.UpdateFailureEntry(ctx, entry.ID, "missed retro", "edited after iterations"); !errors.Is(err, ErrHasIterations) {
		t.Fatalf("expected ErrHasIterations, got %v", err)
	}

	stored, err := s.GetFailureEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("get failure entry: %v", err)
	}
	if stored.Content != "edited before iterations" {
		t.Fatalf("frozen entry must keep its content, got %q", stored.Content)
	}

	if err := s.UpdateFailureEntry(ctx, "fail_missing", "t", "c"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for unknown entry, got %v", err)
	}
}
