package app

import (
	"context"

	"covenant/api/internal/export"
	"covenant/api/internal/store"
)

// ExportAdapter bridges the relational store to the export renderer's data
// needs.
type ExportAdapter struct {
	Store *store.PostgresStore
}

func NewExportAdapter(dataStore *store.PostgresStore) ExportAdapter {
	return ExportAdapter{Store: dataStore}
}

func (a ExportAdapter) GetContractInfo(ctx context.Context, id string) (export.ContractInfo, error) {
	contract, err := a.Store.GetContract(ctx, id)
	if err != nil {
		return export.ContractInfo{}, err
	}
	return export.ContractInfo{
		ID:        contract.ID,
		Title:     contract.Title,
		CohortID:  contract.CohortID,
		CreatedAt: contract.CreatedAt,
		UpdatedAt: contract.UpdatedAt,
	}, nil
}

func (a ExportAdapter) GetCohortInfo(ctx context.Context, id string) (export.CohortInfo, error) {
	cohort, err := a.Store.GetCohort(ctx, id)
	if err != nil {
		return export.CohortInfo{}, err
	}
	return export.CohortInfo{ID: cohort.ID, Name: cohort.Name}, nil
}

func (a ExportAdapter) ListClauseInfos(ctx context.Context, contractID string) ([]export.ClauseInfo, error) {
	clauses, err := a.Store.ListClauses(ctx, contractID)
	if err != nil {
		return nil, err
	}
	items := make([]export.ClauseInfo, 0, len(clauses))
	for _, cl := range clauses {
		items = append(items, export.ClauseInfo{
			ID:        cl.ID,
			Content:   cl.Content,
			Author:    cl.AuthorName,
			SortOrder: cl.SortOrder,
			UpdatedAt: cl.UpdatedAt,
		})
	}
	return items, nil
}

func (a ExportAdapter) ListAmendmentInfos(ctx context.Context, clauseID string) ([]export.AmendmentInfo, error) {
	amendments, err := a.Store.ListAmendments(ctx, clauseID)
	if err != nil {
		return nil, err
	}
	items := make([]export.AmendmentInfo, 0, len(amendments))
	for _, am := range amendments {
		items = append(items, export.AmendmentInfo{
			ID:              am.ID,
			ClauseID:        am.ClauseID,
			ProposedContent: am.Content,
			Author:          am.AuthorName,
			Status:          am.Status,
			CreatedAt:       am.CreatedAt,
			DecidedAt:       am.DecidedAt,
		})
	}
	return items, nil
}
