package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *PostgresStore) ListContracts(ctx context.Context, cohortID string) ([]Contract, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cohort_id, title, created_at, updated_at
		FROM contracts
		WHERE ($1='' OR cohort_id=$1)
		ORDER BY updated_at DESC
	`, cohortID)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	defer rows.Close()

	items := make([]Contract, 0)
	for rows.Next() {
		var item Contract
		if err := rows.Scan(&item.ID, &item.CohortID, &item.Title, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan contract: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contracts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetContract(ctx context.Context, contractID string) (Contract, error) {
	var item Contract
	err := s.db.QueryRowContext(ctx, `
		SELECT id, cohort_id, title, created_at, updated_at
		FROM contracts
		WHERE id=$1
	`, contractID).Scan(&item.ID, &item.CohortID, &item.Title, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Contract{}, err
	}
	return item, nil
}

// GetContractTree loads the full aggregate: the contract, its clauses in
// sort order, and each clause's amendments oldest-first. Two queries plus
// the contract read; amendments are grouped in memory.
func (s *PostgresStore) GetContractTree(ctx context.Context, contractID string) (ContractTree, error) {
	contract, err := s.GetContract(ctx, contractID)
	if err != nil {
		return ContractTree{}, err
	}

	clauses, err := s.ListClauses(ctx, contractID)
	if err != nil {
		return ContractTree{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.clause_id, a.author_id, u.display_name, a.content, a.status, a.decided_by, a.decided_at, a.created_at
		FROM amendments a
		JOIN clauses c ON c.id = a.clause_id
		JOIN users u ON u.id = a.author_id
		WHERE c.contract_id=$1
		ORDER BY a.created_at ASC
	`, contractID)
	if err != nil {
		return ContractTree{}, fmt.Errorf("list contract amendments: %w", err)
	}
	defer rows.Close()

	byClause := make(map[string][]Amendment)
	for rows.Next() {
		var item Amendment
		if err := rows.Scan(&item.ID, &item.ClauseID, &item.AuthorID, &item.AuthorName, &item.Content, &item.Status, &item.DecidedBy, &item.DecidedAt, &item.CreatedAt); err != nil {
			return ContractTree{}, fmt.Errorf("scan amendment: %w", err)
		}
		byClause[item.ClauseID] = append(byClause[item.ClauseID], item)
	}
	if err := rows.Err(); err != nil {
		return ContractTree{}, fmt.Errorf("iterate amendments: %w", err)
	}

	tree := ContractTree{Contract: contract, Clauses: make([]ClauseTree, 0, len(clauses))}
	for _, clause := range clauses {
		amendments := byClause[clause.ID]
		if amendments == nil {
			amendments = []Amendment{}
		}
		tree.Clauses = append(tree.Clauses, ClauseTree{Clause: clause, Amendments: amendments})
	}
	return tree, nil
}

func (s *PostgresStore) InsertContract(ctx context.Context, item Contract) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts (id, cohort_id, title)
		VALUES ($1, $2, $3)
	`, item.ID, item.CohortID, item.Title)
	if err != nil {
		return fmt.Errorf("insert contract: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateContractTitle(ctx context.Context, contractID, title string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE contracts SET title=$2, updated_at=NOW()
		WHERE id=$1
	`, contractID, title)
	if err != nil {
		return fmt.Errorf("update contract title: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update contract rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteContract(ctx context.Context, contractID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete contract: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var dependents int
	err = tx.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM clauses WHERE contract_id=$1)
			+ (SELECT COUNT(*) FROM tension_measurements WHERE contract_id=$1)
			+ (SELECT COUNT(*) FROM journal_entries WHERE contract_id=$1)
			+ (SELECT COUNT(*) FROM failure_entries WHERE contract_id=$1)
	`, contractID).Scan(&dependents)
	if err != nil {
		return fmt.Errorf("count contract dependents: %w", err)
	}
	if dependents > 0 {
		return ErrHasDependents
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM contracts WHERE id=$1`, contractID)
	if err != nil {
		return fmt.Errorf("delete contract: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete contract rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

func (s *PostgresStore) ListClauses(ctx context.Context, contractID string) ([]Clause, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.contract_id, c.author_id, u.display_name, c.content, c.sort_order, c.created_at, c.updated_at
		FROM clauses c
		JOIN users u ON u.id = c.author_id
		WHERE c.contract_id=$1
		ORDER BY c.sort_order ASC, c.created_at ASC
	`, contractID)
	if err != nil {
		return nil, fmt.Errorf("list clauses: %w", err)
	}
	defer rows.Close()

	items := make([]Clause, 0)
	for rows.Next() {
		var item Clause
		if err := rows.Scan(&item.ID, &item.ContractID, &item.AuthorID, &item.AuthorName, &item.Content, &item.SortOrder, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan clause: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clauses: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetClause(ctx context.Context, clauseID string) (Clause, error) {
	var item Clause
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.contract_id, c.author_id, u.display_name, c.content, c.sort_order, c.created_at, c.updated_at
		FROM clauses c
		JOIN users u ON u.id = c.author_id
		WHERE c.id=$1
	`, clauseID).Scan(&item.ID, &item.ContractID, &item.AuthorID, &item.AuthorName, &item.Content, &item.SortOrder, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Clause{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertClause(ctx context.Context, item Clause) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clauses (id, contract_id, author_id, content, sort_order)
		VALUES ($1, $2, $3, $4,
			COALESCE((SELECT MAX(sort_order)+1 FROM clauses WHERE contract_id=$2), 0))
	`, item.ID, item.ContractID, item.AuthorID, item.Content)
	if err != nil {
		return fmt.Errorf("insert clause: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteClause(ctx context.Context, clauseID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete clause: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var dependents int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM amendments WHERE clause_id=$1`, clauseID,
	).Scan(&dependents)
	if err != nil {
		return fmt.Errorf("count clause dependents: %w", err)
	}
	if dependents > 0 {
		return ErrHasDependents
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM clauses WHERE id=$1`, clauseID)
	if err != nil {
		return fmt.Errorf("delete clause: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete clause rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}
