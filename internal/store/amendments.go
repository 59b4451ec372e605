package store

import (
	"context"
	"fmt"
)

const (
	AmendmentPending  = "PENDING"
	AmendmentAccepted = "ACCEPTED"
	AmendmentRejected = "REJECTED"
)

func (s *PostgresStore) GetAmendment(ctx context.Context, amendmentID string) (Amendment, error) {
	var item Amendment
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.clause_id, a.author_id, u.display_name, a.content, a.status, a.decided_by, a.decided_at, a.created_at
		FROM amendments a
		JOIN users u ON u.id = a.author_id
		WHERE a.id=$1
	`, amendmentID).Scan(&item.ID, &item.ClauseID, &item.AuthorID, &item.AuthorName, &item.Content, &item.Status, &item.DecidedBy, &item.DecidedAt, &item.CreatedAt)
	if err != nil {
		return Amendment{}, err
	}
	return item, nil
}

// ListAmendments returns a clause's amendment history, oldest first.
func (s *PostgresStore) ListAmendments(ctx context.Context, clauseID string) ([]Amendment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.clause_id, a.author_id, u.display_name, a.content, a.status, a.decided_by, a.decided_at, a.created_at
		FROM amendments a
		JOIN users u ON u.id = a.author_id
		WHERE a.clause_id=$1
		ORDER BY a.created_at ASC
	`, clauseID)
	if err != nil {
		return nil, fmt.Errorf("list amendments: %w", err)
	}
	defer rows.Close()

	items := make([]Amendment, 0)
	for rows.Next() {
		var item Amendment
		if err := rows.Scan(&item.ID, &item.ClauseID, &item.AuthorID, &item.AuthorName, &item.Content, &item.Status, &item.DecidedBy, &item.DecidedAt, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan amendment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate amendments: %w", err)
	}
	return items, nil
}

// InsertAmendment records a new proposal. Status is always PENDING on
// creation and the target clause is not touched.
func (s *PostgresStore) InsertAmendment(ctx context.Context, item Amendment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO amendments (id, clause_id, author_id, content, status)
		VALUES ($1, $2, $3, $4, 'PENDING')
	`, item.ID, item.ClauseID, item.AuthorID, item.Content)
	if err != nil {
		return fmt.Errorf("insert amendment: %w", err)
	}
	return nil
}

// DecideAmendment transitions a PENDING amendment to ACCEPTED or REJECTED in
// a single transaction. The amendment row and, for an accept, the clause row
// are locked with SELECT ... FOR UPDATE, so concurrent accepts against the
// same clause serialize: the status re-check under the lock makes a second
// decide of the same amendment fail with ErrAlreadyDecided, and the clause
// content is only ever overwritten whole, never interleaved.
func (s *PostgresStore) DecideAmendment(ctx context.Context, amendmentID, status, deciderID string) (Amendment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Amendment{}, fmt.Errorf("begin decide amendment: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var item Amendment
	err = tx.QueryRowContext(ctx, `
		SELECT id, clause_id, author_id, content, status, created_at
		FROM amendments
		WHERE id=$1
		FOR UPDATE
	`, amendmentID).Scan(&item.ID, &item.ClauseID, &item.AuthorID, &item.Content, &item.Status, &item.CreatedAt)
	if err != nil {
		return Amendment{}, err
	}
	if item.Status != AmendmentPending {
		return Amendment{}, ErrAlreadyDecided
	}

	if status == AmendmentAccepted {
		var clauseID string
		if err := tx.QueryRowContext(ctx,
			`SELECT id FROM clauses WHERE id=$1 FOR UPDATE`, item.ClauseID,
		).Scan(&clauseID); err != nil {
			return Amendment{}, fmt.Errorf("lock clause: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE clauses SET content=$2, updated_at=NOW()
			WHERE id=$1
		`, item.ClauseID, item.Content); err != nil {
			return Amendment{}, fmt.Errorf("apply amendment: %w", err)
		}
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE amendments
		SET status=$2, decided_by=$3, decided_at=NOW()
		WHERE id=$1
		RETURNING status, decided_by, decided_at
	`, amendmentID, status, deciderID).Scan(&item.Status, &item.DecidedBy, &item.DecidedAt)
	if err != nil {
		return Amendment{}, fmt.Errorf("record decision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Amendment{}, fmt.Errorf("commit decide amendment: %w", err)
	}
	return item, nil
}
