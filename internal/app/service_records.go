package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"covenant/api/internal/search"
	"covenant/api/internal/store"
	"covenant/api/internal/util"
)

// Tension measurements are append-only signals: validated on the way in and
// never mutated afterwards.

func (s *Service) ListTensionMeasurements(ctx context.Context, contractID string) ([]map[string]any, error) {
	if _, err := s.store.GetContract(ctx, contractID); err != nil {
		return nil, err
	}
	items, err := s.store.ListTensionMeasurements(ctx, contractID)
	if err != nil {
		return nil, err
	}
	payloads := make([]map[string]any, 0, len(items))
	for _, t := range items {
		payloads = append(payloads, tensionPayload(t))
	}
	return payloads, nil
}

func (s *Service) RecordTension(ctx context.Context, contractID, userID string, value *int, tensionContext string) (map[string]any, error) {
	if _, err := s.store.GetContract(ctx, contractID); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "userId is required", nil)
	}
	if value == nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "value is required", nil)
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	item := store.TensionMeasurement{
		ID:         util.NewID("tsn"),
		ContractID: contractID,
		UserID:     userID,
		Value:      *value,
		Context:    strings.TrimSpace(tensionContext),
	}
	stored, err := s.store.InsertTensionMeasurement(ctx, item)
	if err != nil {
		return nil, err
	}
	return tensionPayload(stored), nil
}

// Journal entries

func (s *Service) ListJournalEntries(ctx context.Context, contractID string) ([]map[string]any, error) {
	if _, err := s.store.GetContract(ctx, contractID); err != nil {
		return nil, err
	}
	items, err := s.store.ListJournalEntries(ctx, contractID)
	if err != nil {
		return nil, err
	}
	payloads := make([]map[string]any, 0, len(items))
	for _, j := range items {
		payloads = append(payloads, journalPayload(j))
	}
	return payloads, nil
}

func (s *Service) CreateJournalEntry(ctx context.Context, contractID, userID, title, content string) (map[string]any, error) {
	contract, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if userID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "userId is required", nil)
	}
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if content == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	item := store.JournalEntry{
		ID:         util.NewID("jrn"),
		ContractID: contractID,
		UserID:     userID,
		Title:      title,
		Content:    content,
	}
	if err := s.store.InsertJournalEntry(ctx, item); err != nil {
		return nil, err
	}

	if s.search != nil {
		s.search.IndexJournal(search.JournalRecord{
			ID:         item.ID,
			Title:      title,
			Content:    content,
			ContractID: contractID,
			CohortID:   contract.CohortID,
		})
	}

	stored, err := s.store.GetJournalEntry(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	return journalPayload(stored), nil
}

func (s *Service) UpdateJournalEntry(ctx context.Context, entryID, title, content string) (map[string]any, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if content == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}
	if err := s.store.UpdateJournalEntry(ctx, entryID, title, content); err != nil {
		return nil, err
	}

	stored, err := s.store.GetJournalEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		if contract, err := s.store.GetContract(ctx, stored.ContractID); err == nil {
			s.search.IndexJournal(search.JournalRecord{
				ID:         stored.ID,
				Title:      stored.Title,
				Content:    stored.Content,
				ContractID: stored.ContractID,
				CohortID:   contract.CohortID,
			})
		}
	}
	return journalPayload(stored), nil
}

// Failure entries and iterations

func (s *Service) ListFailureEntries(ctx context.Context, contractID string) ([]map[string]any, error) {
	if _, err := s.store.GetContract(ctx, contractID); err != nil {
		return nil, err
	}
	items, err := s.store.ListFailureEntries(ctx, contractID)
	if err != nil {
		return nil, err
	}
	payloads := make([]map[string]any, 0, len(items))
	for _, f := range items {
		payloads = append(payloads, failurePayload(f))
	}
	return payloads, nil
}

func (s *Service) CreateFailureEntry(ctx context.Context, contractID, userID, title, content string) (map[string]any, error) {
	if _, err := s.store.GetContract(ctx, contractID); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if userID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "userId is required", nil)
	}
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if content == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	item := store.FailureEntry{
		ID:         util.NewID("fail"),
		ContractID: contractID,
		UserID:     userID,
		Title:      title,
		Content:    content,
	}
	if err := s.store.InsertFailureEntry(ctx, item); err != nil {
		return nil, err
	}

	stored, err := s.store.GetFailureEntry(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	return failurePayload(stored), nil
}

// UpdateFailureEntry edits a failure record. Once iterations exist the record
// is frozen and edits fail with INVALID_STATE.
func (s *Service) UpdateFailureEntry(ctx context.Context, failureID, title, content string) (map[string]any, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if content == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}
	if err := s.store.UpdateFailureEntry(ctx, failureID, title, content); err != nil {
		if errors.Is(err, store.ErrHasIterations) {
			return nil, domainError(http.StatusConflict, "INVALID_STATE", "failure entry is frozen once iterations exist", nil)
		}
		return nil, err
	}

	stored, err := s.store.GetFailureEntry(ctx, failureID)
	if err != nil {
		return nil, err
	}
	return failurePayload(stored), nil
}

func (s *Service) ListIterations(ctx context.Context, failureID string) ([]map[string]any, error) {
	if _, err := s.store.GetFailureEntry(ctx, failureID); err != nil {
		return nil, err
	}
	items, err := s.store.ListIterations(ctx, failureID)
	if err != nil {
		return nil, err
	}
	payloads := make([]map[string]any, 0, len(items))
	for _, it := range items {
		payloads = append(payloads, iterationPayload(it))
	}
	return payloads, nil
}

func (s *Service) AddIteration(ctx context.Context, failureID, content string) (map[string]any, error) {
	if _, err := s.store.GetFailureEntry(ctx, failureID); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}

	item := store.Iteration{
		ID:        util.NewID("iter"),
		FailureID: failureID,
		Content:   content,
	}
	stored, err := s.store.InsertIteration(ctx, item)
	if err != nil {
		return nil, err
	}
	return iterationPayload(stored), nil
}

func tensionPayload(t store.TensionMeasurement) map[string]any {
	return map[string]any{
		"id":         t.ID,
		"contractId": t.ContractID,
		"userId":     t.UserID,
		"value":      t.Value,
		"context":    t.Context,
		"createdAt":  t.CreatedAt.Format(time.RFC3339),
	}
}

func journalPayload(j store.JournalEntry) map[string]any {
	return map[string]any{
		"id":         j.ID,
		"contractId": j.ContractID,
		"userId":     j.UserID,
		"title":      j.Title,
		"content":    j.Content,
		"createdAt":  j.CreatedAt.Format(time.RFC3339),
		"updatedAt":  j.UpdatedAt.Format(time.RFC3339),
	}
}

func failurePayload(f store.FailureEntry) map[string]any {
	return map[string]any{
		"id":         f.ID,
		"contractId": f.ContractID,
		"userId":     f.UserID,
		"title":      f.Title,
		"content":    f.Content,
		"createdAt":  f.CreatedAt.Format(time.RFC3339),
		"updatedAt":  f.UpdatedAt.Format(time.RFC3339),
	}
}

func iterationPayload(it store.Iteration) map[string]any {
	return map[string]any{
		"id":        it.ID,
		"failureId": it.FailureID,
		"content":   it.Content,
		"createdAt": it.CreatedAt.Format(time.RFC3339),
	}
}
