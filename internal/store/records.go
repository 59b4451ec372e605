package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *PostgresStore) ListTensionMeasurements(ctx context.Context, contractID string) ([]TensionMeasurement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contract_id, user_id, value, context, created_at
		FROM tension_measurements
		WHERE contract_id=$1
		ORDER BY created_at ASC
	`, contractID)
	if err != nil {
		return nil, fmt.Errorf("list tension measurements: %w", err)
	}
	defer rows.Close()

	items := make([]TensionMeasurement, 0)
	for rows.Next() {
		var item TensionMeasurement
		if err := rows.Scan(&item.ID, &item.ContractID, &item.UserID, &item.Value, &item.Context, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tension measurement: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tension measurements: %w", err)
	}
	return items, nil
}

// InsertTensionMeasurement appends one measurement. Measurements are never
// updated or deleted.
func (s *PostgresStore) InsertTensionMeasurement(ctx context.Context, item TensionMeasurement) (TensionMeasurement, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tension_measurements (id, contract_id, user_id, value, context)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, item.ID, item.ContractID, item.UserID, item.Value, item.Context).Scan(&item.CreatedAt)
	if err != nil {
		return TensionMeasurement{}, fmt.Errorf("insert tension measurement: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) ListJournalEntries(ctx context.Context, contractID string) ([]JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contract_id, user_id, title, content, created_at, updated_at
		FROM journal_entries
		WHERE contract_id=$1
		ORDER BY created_at ASC
	`, contractID)
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	defer rows.Close()

	items := make([]JournalEntry, 0)
	for rows.Next() {
		var item JournalEntry
		if err := rows.Scan(&item.ID, &item.ContractID, &item.UserID, &item.Title, &item.Content, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal entries: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetJournalEntry(ctx context.Context, entryID string) (JournalEntry, error) {
	var item JournalEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT id, contract_id, user_id, title, content, created_at, updated_at
		FROM journal_entries
		WHERE id=$1
	`, entryID).Scan(&item.ID, &item.ContractID, &item.UserID, &item.Title, &item.Content, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return JournalEntry{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertJournalEntry(ctx context.Context, item JournalEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journal_entries (id, contract_id, user_id, title, content)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.ContractID, item.UserID, item.Title, item.Content)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateJournalEntry(ctx context.Context, entryID, title, content string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE journal_entries SET title=$2, content=$3, updated_at=NOW()
		WHERE id=$1
	`, entryID, title, content)
	if err != nil {
		return fmt.Errorf("update journal entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update journal entry rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ListFailureEntries(ctx context.Context, contractID string) ([]FailureEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contract_id, user_id, title, content, created_at, updated_at
		FROM failure_entries
		WHERE contract_id=$1
		ORDER BY created_at ASC
	`, contractID)
	if err != nil {
		return nil, fmt.Errorf("list failure entries: %w", err)
	}
	defer rows.Close()

	items := make([]FailureEntry, 0)
	for rows.Next() {
		var item FailureEntry
		if err := rows.Scan(&item.ID, &item.ContractID, &item.UserID, &item.Title, &item.Content, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan failure entry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failure entries: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetFailureEntry(ctx context.Context, failureID string) (FailureEntry, error) {
	var item FailureEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT id, contract_id, user_id, title, content, created_at, updated_at
		FROM failure_entries
		WHERE id=$1
	`, failureID).Scan(&item.ID, &item.ContractID, &item.UserID, &item.Title, &item.Content, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return FailureEntry{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertFailureEntry(ctx context.Context, item FailureEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO failure_entries (id, contract_id, user_id, title, content)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.ContractID, item.UserID, item.Title, item.Content)
	if err != nil {
		return fmt.Errorf("insert failure entry: %w", err)
	}
	return nil
}

// UpdateFailureEntry edits title/content, but only while no iteration
// references the entry. The entry row is locked with SELECT ... FOR UPDATE
// before the iteration count, and InsertIteration takes the same lock, so a
// concurrent iteration insert cannot slip between check and write.
func (s *PostgresStore) UpdateFailureEntry(ctx context.Context, failureID, title, content string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update failure entry: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var lockedID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM failure_entries WHERE id=$1 FOR UPDATE`, failureID,
	).Scan(&lockedID)
	if err != nil {
		return err
	}

	var iterations int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM iterations WHERE failure_id=$1`, failureID,
	).Scan(&iterations)
	if err != nil {
		return fmt.Errorf("count iterations: %w", err)
	}
	if iterations > 0 {
		return ErrHasIterations
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE failure_entries SET title=$2, content=$3, updated_at=NOW()
		WHERE id=$1
	`, failureID, title, content); err != nil {
		return fmt.Errorf("update failure entry: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) ListIterations(ctx context.Context, failureID string) ([]Iteration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, failure_id, content, created_at
		FROM iterations
		WHERE failure_id=$1
		ORDER BY created_at ASC
	`, failureID)
	if err != nil {
		return nil, fmt.Errorf("list iterations: %w", err)
	}
	defer rows.Close()

	items := make([]Iteration, 0)
	for rows.Next() {
		var item Iteration
		if err := rows.Scan(&item.ID, &item.FailureID, &item.Content, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan iteration: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate iterations: %w", err)
	}
	return items, nil
}

// InsertIteration appends an iteration under the same failure-entry row lock
// UpdateFailureEntry takes, so an insert cannot race a frozen-check edit.
func (s *PostgresStore) InsertIteration(ctx context.Context, item Iteration) (Iteration, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Iteration{}, fmt.Errorf("begin insert iteration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var lockedID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM failure_entries WHERE id=$1 FOR UPDATE`, item.FailureID,
	).Scan(&lockedID)
	if err != nil {
		return Iteration{}, err
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO iterations (id, failure_id, content)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, item.ID, item.FailureID, item.Content).Scan(&item.CreatedAt)
	if err != nil {
		return Iteration{}, fmt.Errorf("insert iteration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Iteration{}, fmt.Errorf("commit insert iteration: %w", err)
	}
	return item, nil
}
