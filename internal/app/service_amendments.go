package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"covenant/api/internal/search"
	"covenant/api/internal/store"
	"covenant/api/internal/util"
)

var allowedDecisions = map[string]string{
	"ACCEPT": store.AmendmentAccepted,
	"REJECT": store.AmendmentRejected,
}

// ProposeAmendment records a PENDING amendment against a clause of the given
// contract. The clause is never touched here; only an accepted decision
// mutates it.
func (s *Service) ProposeAmendment(ctx context.Context, contractID, clauseID, authorID, content string) (map[string]any, error) {
	clauseID = strings.TrimSpace(clauseID)
	authorID = strings.TrimSpace(authorID)
	content = strings.TrimSpace(content)
	if clauseID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "clauseId is required", nil)
	}
	if authorID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "authorId is required", nil)
	}
	if content == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}

	clause, err := s.store.GetClause(ctx, clauseID)
	if err != nil {
		return nil, err
	}
	if contractID != "" && clause.ContractID != contractID {
		return nil, sql.ErrNoRows
	}
	if _, err := s.store.GetUser(ctx, authorID); err != nil {
		return nil, err
	}

	amendment := store.Amendment{
		ID:       util.NewID("amd"),
		ClauseID: clauseID,
		AuthorID: authorID,
		Content:  content,
		Status:   store.AmendmentPending,
	}
	if err := s.store.InsertAmendment(ctx, amendment); err != nil {
		return nil, err
	}

	s.invalidateContract(ctx, clause.ContractID)

	stored, err := s.store.GetAmendment(ctx, amendment.ID)
	if err != nil {
		return nil, err
	}
	return amendmentPayload(stored), nil
}

func (s *Service) GetAmendment(ctx context.Context, amendmentID string) (map[string]any, error) {
	amendment, err := s.store.GetAmendment(ctx, amendmentID)
	if err != nil {
		return nil, err
	}
	return amendmentPayload(amendment), nil
}

// ListClauseAmendments returns the clause's amendment history, oldest first.
func (s *Service) ListClauseAmendments(ctx context.Context, clauseID string) ([]map[string]any, error) {
	if _, err := s.store.GetClause(ctx, clauseID); err != nil {
		return nil, err
	}
	amendments, err := s.store.ListAmendments(ctx, clauseID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(amendments))
	for _, a := range amendments {
		items = append(items, amendmentPayload(a))
	}
	return items, nil
}

// DecideAmendment transitions a PENDING amendment to ACCEPTED or REJECTED.
// The store runs the transition in one transaction with the amendment and
// clause rows locked, so concurrent accepts on one clause serialize and the
// final content is exactly one proposal. An accepted decision also writes a
// revision commit to the contract's log.
func (s *Service) DecideAmendment(ctx context.Context, amendmentID, decision, deciderID string) (map[string]any, error) {
	decision = strings.TrimSpace(strings.ToUpper(decision))
	deciderID = strings.TrimSpace(deciderID)
	status, ok := allowedDecisions[decision]
	if !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "decision must be ACCEPT or REJECT", nil)
	}
	if deciderID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "deciderId is required", nil)
	}
	decider, err := s.store.GetUser(ctx, deciderID)
	if err != nil {
		return nil, err
	}

	decided, err := s.store.DecideAmendment(ctx, amendmentID, status, deciderID)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyDecided) {
			return nil, domainError(http.StatusConflict, "INVALID_STATE", "amendment is already decided", nil)
		}
		return nil, err
	}

	clause, err := s.store.GetClause(ctx, decided.ClauseID)
	if err != nil {
		return nil, err
	}
	s.invalidateContract(ctx, clause.ContractID)

	if decided.Status == store.AmendmentAccepted {
		if _, err := s.revlog.CommitClause(clause.ContractID, clause.ID, clause.Content, decider.DisplayName, "Accept amendment "+decided.ID); err != nil {
			log.Printf("revlog: commit accepted amendment %s: %v", decided.ID, err)
		}
		if s.search != nil {
			contract, err := s.store.GetContract(ctx, clause.ContractID)
			if err == nil {
				s.search.IndexClause(search.ClauseRecord{
					ID:         clause.ID,
					Content:    clause.Content,
					ContractID: clause.ContractID,
					CohortID:   contract.CohortID,
					Author:     clause.AuthorName,
				})
			}
		}
	}

	stored, err := s.store.GetAmendment(ctx, decided.ID)
	if err != nil {
		return nil, err
	}
	return amendmentPayload(stored), nil
}

func amendmentPayload(a store.Amendment) map[string]any {
	payload := map[string]any{
		"id":         a.ID,
		"clauseId":   a.ClauseID,
		"authorId":   a.AuthorID,
		"authorName": a.AuthorName,
		"content":    a.Content,
		"status":     a.Status,
		"createdAt":  a.CreatedAt.Format(time.RFC3339),
		"decidedBy":  nil,
		"decidedAt":  nil,
	}
	if a.DecidedBy != nil {
		payload["decidedBy"] = *a.DecidedBy
	}
	if a.DecidedAt != nil {
		payload["decidedAt"] = a.DecidedAt.Format(time.RFC3339)
	}
	return payload
}
