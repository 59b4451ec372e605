package export

import (
	"context"
	"fmt"
	"html/template"
)

// DataStore defines the data access the export service needs.
type DataStore interface {
	GetContractInfo(ctx context.Context, id string) (ContractInfo, error)
	GetCohortInfo(ctx context.Context, id string) (CohortInfo, error)
	ListClauseInfos(ctx context.Context, contractID string) ([]ClauseInfo, error)
	ListAmendmentInfos(ctx context.Context, clauseID string) ([]AmendmentInfo, error)
}

// Service renders contracts into downloadable documents.
type Service struct {
	store DataStore
}

func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates the contract in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	contract, err := s.store.GetContractInfo(ctx, req.ContractID)
	if err != nil {
		return nil, fmt.Errorf("get contract: %w", err)
	}

	cohort, err := s.store.GetCohortInfo(ctx, contract.CohortID)
	if err != nil {
		return nil, fmt.Errorf("get cohort: %w", err)
	}

	clauses, err := s.store.ListClauseInfos(ctx, req.ContractID)
	if err != nil {
		return nil, fmt.Errorf("list clauses: %w", err)
	}

	data := TemplateData{
		Title:      contract.Title,
		CohortName: cohort.Name,
		UpdatedAt:  contract.UpdatedAt,
		Clauses:    make([]TemplateClause, 0, len(clauses)),
	}

	for _, cl := range clauses {
		tc := TemplateClause{
			Number:  cl.SortOrder + 1,
			Content: template.HTML(template.HTMLEscapeString(cl.Content)),
			Author:  cl.Author,
		}

		if req.IncludeAmendments {
			amendments, err := s.store.ListAmendmentInfos(ctx, cl.ID)
			if err != nil {
				return nil, fmt.Errorf("list amendments: %w", err)
			}
			for _, a := range amendments {
				tc.Amendments = append(tc.Amendments, TemplateAmendment{
					ProposedContent: a.ProposedContent,
					Author:          a.Author,
					Status:          a.Status,
					CreatedAt:       a.CreatedAt,
				})
			}
		}

		data.Clauses = append(data.Clauses, tc)
	}

	html, err := RenderContractHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(html, contract.Title)
	case FormatDOCX:
		return exportDOCX(html, contract.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
