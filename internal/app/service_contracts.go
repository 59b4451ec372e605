package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"covenant/api/internal/export"
	"covenant/api/internal/search"
	"covenant/api/internal/store"
	"covenant/api/internal/util"
)

// NestedClauseInput is a clause created inline with its contract.
type NestedClauseInput struct {
	AuthorID string `json:"authorId"`
	Content  string `json:"content"`
}

func (s *Service) ListContracts(ctx context.Context, cohortID string) ([]map[string]any, error) {
	if cohortID != "" {
		if _, err := s.store.GetCohort(ctx, cohortID); err != nil {
			return nil, err
		}
	}
	contracts, err := s.store.ListContracts(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(contracts))
	for _, c := range contracts {
		items = append(items, contractPayload(c))
	}
	return items, nil
}

func (s *Service) CreateContract(ctx context.Context, cohortID, title, creatorID string, clauses []NestedClauseInput) (map[string]any, error) {
	title = strings.TrimSpace(title)
	cohortID = strings.TrimSpace(cohortID)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if cohortID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "cohortId is required", nil)
	}
	if _, err := s.store.GetCohort(ctx, cohortID); err != nil {
		return nil, err
	}

	// Validate nested clauses before anything is written.
	for i, cl := range clauses {
		if strings.TrimSpace(cl.Content) == "" {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "clause content is required", map[string]any{"index": i})
		}
		authorID := strings.TrimSpace(cl.AuthorID)
		if authorID == "" {
			authorID = strings.TrimSpace(creatorID)
		}
		if authorID == "" {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "clause authorId is required", map[string]any{"index": i})
		}
		exists, err := s.store.UserExists(ctx, authorID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "clause author not found", map[string]any{"index": i})
		}
	}

	contract := store.Contract{
		ID:       util.NewID("ctr"),
		CohortID: cohortID,
		Title:    title,
	}
	if err := s.store.InsertContract(ctx, contract); err != nil {
		return nil, err
	}

	if err := s.revlog.EnsureContractRepo(contract.ID, "system"); err != nil {
		log.Printf("revlog: ensure repo for %s: %v", contract.ID, err)
	}

	for _, cl := range clauses {
		authorID := strings.TrimSpace(cl.AuthorID)
		if authorID == "" {
			authorID = strings.TrimSpace(creatorID)
		}
		if _, err := s.addClause(ctx, contract, authorID, cl.Content); err != nil {
			return nil, err
		}
	}

	if s.search != nil {
		s.search.IndexContract(search.ContractRecord{ID: contract.ID, Title: title, CohortID: cohortID})
	}

	return s.GetContractTree(ctx, contract.ID)
}

// GetContractTree serves the composed read, through the Redis cache when one
// is configured. Every contract-scoped write invalidates the entry.
func (s *Service) GetContractTree(ctx context.Context, contractID string) (map[string]any, error) {
	if s.cache != nil {
		var cached store.ContractTree
		if err := s.cache.Get(ctx, contractID, &cached); err == nil {
			return treePayload(cached), nil
		}
	}

	tree, err := s.store.GetContractTree(ctx, contractID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, contractID, tree); err != nil {
			log.Printf("cache: set contract %s: %v", contractID, err)
		}
	}
	return treePayload(tree), nil
}

func (s *Service) RenameContract(ctx context.Context, contractID, title string) (map[string]any, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if err := s.store.UpdateContractTitle(ctx, contractID, title); err != nil {
		return nil, err
	}
	s.invalidateContract(ctx, contractID)
	if s.search != nil {
		if contract, err := s.store.GetContract(ctx, contractID); err == nil {
			s.search.IndexContract(search.ContractRecord{ID: contract.ID, Title: contract.Title, CohortID: contract.CohortID})
		}
	}
	return s.GetContractTree(ctx, contractID)
}

func (s *Service) DeleteContract(ctx context.Context, contractID string) error {
	if err := s.store.DeleteContract(ctx, contractID); err != nil {
		if errors.Is(err, store.ErrHasDependents) {
			return domainError(http.StatusConflict, "CONFLICT", "contract still has clauses or records", nil)
		}
		return err
	}
	s.invalidateContract(ctx, contractID)
	if s.search != nil {
		s.search.DeleteContract(contractID)
	}
	return nil
}

func (s *Service) AddClause(ctx context.Context, contractID, authorID, content string) (map[string]any, error) {
	contract, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}
	authorID = strings.TrimSpace(authorID)
	if authorID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "authorId is required", nil)
	}
	if _, err := s.store.GetUser(ctx, authorID); err != nil {
		return nil, err
	}

	clause, err := s.addClause(ctx, contract, authorID, content)
	if err != nil {
		return nil, err
	}
	s.invalidateContract(ctx, contractID)
	return clausePayload(clause), nil
}

// addClause inserts the clause, records its initial revision, and indexes it.
// Callers validate the author and contract first.
func (s *Service) addClause(ctx context.Context, contract store.Contract, authorID, content string) (store.Clause, error) {
	clause := store.Clause{
		ID:         util.NewID("cls"),
		ContractID: contract.ID,
		AuthorID:   authorID,
		Content:    strings.TrimSpace(content),
	}
	if err := s.store.InsertClause(ctx, clause); err != nil {
		return store.Clause{}, err
	}

	stored, err := s.store.GetClause(ctx, clause.ID)
	if err != nil {
		return store.Clause{}, err
	}

	if err := s.revlog.EnsureContractRepo(contract.ID, stored.AuthorName); err != nil {
		log.Printf("revlog: ensure repo for %s: %v", contract.ID, err)
	} else if _, err := s.revlog.CommitClause(contract.ID, clause.ID, stored.Content, stored.AuthorName, "Add clause "+clause.ID); err != nil {
		log.Printf("revlog: commit clause %s: %v", clause.ID, err)
	}

	if s.search != nil {
		s.search.IndexClause(search.ClauseRecord{
			ID:         stored.ID,
			Content:    stored.Content,
			ContractID: contract.ID,
			CohortID:   contract.CohortID,
			Author:     stored.AuthorName,
		})
	}
	return stored, nil
}

func (s *Service) GetClause(ctx context.Context, clauseID string) (map[string]any, error) {
	clause, err := s.store.GetClause(ctx, clauseID)
	if err != nil {
		return nil, err
	}
	return clausePayload(clause), nil
}

func (s *Service) DeleteClause(ctx context.Context, clauseID string) error {
	clause, err := s.store.GetClause(ctx, clauseID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteClause(ctx, clauseID); err != nil {
		if errors.Is(err, store.ErrHasDependents) {
			return domainError(http.StatusConflict, "CONFLICT", "clause still has amendments", nil)
		}
		return err
	}
	s.invalidateContract(ctx, clause.ContractID)
	if s.search != nil {
		s.search.DeleteClause(clauseID)
	}
	return nil
}

// Export and revisions

func (s *Service) ExportContract(ctx context.Context, contractID, format string, includeAmendments bool) (*export.Result, error) {
	if s.export == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "export service not configured", nil)
	}
	var f export.Format
	switch format {
	case "pdf", "":
		f = export.FormatPDF
	case "docx":
		f = export.FormatDOCX
	default:
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be pdf or docx", nil)
	}

	result, err := s.export.Export(ctx, export.Request{
		ContractID:        contractID,
		Format:            f,
		IncludeAmendments: includeAmendments,
	})
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) || errors.Is(err, export.ErrDOCXDependencyMissing) {
			return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "export renderer not installed", nil)
		}
		return nil, err
	}

	if s.archive != nil {
		go func() {
			archiveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, err := s.archive.Store(archiveCtx, contractID, result.Filename, result.MimeType, result.Data); err != nil {
				log.Printf("archive: store export for %s: %v", contractID, err)
			}
		}()
	}
	return result, nil
}

func (s *Service) ContractRevisions(ctx context.Context, contractID string, limit int) (map[string]any, error) {
	if _, err := s.store.GetContract(ctx, contractID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	history, err := s.revlog.History(contractID, limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"revisions": history}, nil
}

func (s *Service) ContractRevisionSnapshot(ctx context.Context, contractID, hash string) (map[string]any, error) {
	if _, err := s.store.GetContract(ctx, contractID); err != nil {
		return nil, err
	}
	snapshot, err := s.revlog.SnapshotAt(contractID, hash)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "revision not found", nil)
	}
	return map[string]any{"hash": hash, "clauses": snapshot}, nil
}

func (s *Service) invalidateContract(ctx context.Context, contractID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, contractID); err != nil {
		log.Printf("cache: invalidate contract %s: %v", contractID, err)
	}
}

func contractPayload(c store.Contract) map[string]any {
	return map[string]any{
		"id":        c.ID,
		"cohortId":  c.CohortID,
		"title":     c.Title,
		"createdAt": c.CreatedAt.Format(time.RFC3339),
		"updatedAt": c.UpdatedAt.Format(time.RFC3339),
	}
}

func clausePayload(c store.Clause) map[string]any {
	return map[string]any{
		"id":         c.ID,
		"contractId": c.ContractID,
		"authorId":   c.AuthorID,
		"authorName": c.AuthorName,
		"content":    c.Content,
		"sortOrder":  c.SortOrder,
		"createdAt":  c.CreatedAt.Format(time.RFC3339),
		"updatedAt":  c.UpdatedAt.Format(time.RFC3339),
	}
}

func treePayload(tree store.ContractTree) map[string]any {
	clauses := make([]map[string]any, 0, len(tree.Clauses))
	for _, ct := range tree.Clauses {
		clause := clausePayload(ct.Clause)
		amendments := make([]map[string]any, 0, len(ct.Amendments))
		for _, a := range ct.Amendments {
			amendments = append(amendments, amendmentPayload(a))
		}
		clause["amendments"] = amendments
		clauses = append(clauses, clause)
	}
	payload := contractPayload(tree.Contract)
	payload["clauses"] = clauses
	return payload
}
