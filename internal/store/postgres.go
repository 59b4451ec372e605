package store

import (
	"context"
	"database/sql"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, display_name, role, created_at, updated_at
		FROM users
		ORDER BY display_name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		var item User
		if err := rows.Scan(&item.ID, &item.Email, &item.DisplayName, &item.Role, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (User, error) {
	var item User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, role, created_at, updated_at
		FROM users
		WHERE id=$1
	`, userID).Scan(&item.ID, &item.Email, &item.DisplayName, &item.Role, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertUser(ctx context.Context, item User) error {
	var taken bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email=$1)`, item.Email,
	).Scan(&taken); err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if taken {
		return ErrDuplicateEmail
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, role)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.Email, item.DisplayName, item.Role)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, userID, displayName, role string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET display_name=$2, role=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, displayName, role)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete user: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var dependents int
	err = tx.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM clauses WHERE author_id=$1)
			+ (SELECT COUNT(*) FROM amendments WHERE author_id=$1 OR decided_by=$1)
			+ (SELECT COUNT(*) FROM cohort_members WHERE user_id=$1)
			+ (SELECT COUNT(*) FROM tension_measurements WHERE user_id=$1)
			+ (SELECT COUNT(*) FROM journal_entries WHERE user_id=$1)
			+ (SELECT COUNT(*) FROM failure_entries WHERE user_id=$1)
	`, userID).Scan(&dependents)
	if err != nil {
		return fmt.Errorf("count user dependents: %w", err)
	}
	if dependents > 0 {
		return ErrHasDependents
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

func (s *PostgresStore) ListCohorts(ctx context.Context) ([]Cohort, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, updated_at
		FROM cohorts
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list cohorts: %w", err)
	}
	defer rows.Close()

	items := make([]Cohort, 0)
	for rows.Next() {
		var item Cohort
		if err := rows.Scan(&item.ID, &item.Name, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cohort: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cohorts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetCohort(ctx context.Context, cohortID string) (Cohort, error) {
	var item Cohort
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at
		FROM cohorts
		WHERE id=$1
	`, cohortID).Scan(&item.ID, &item.Name, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Cohort{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertCohort(ctx context.Context, item Cohort) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cohorts (id, name)
		VALUES ($1, $2)
	`, item.ID, item.Name)
	if err != nil {
		return fmt.Errorf("insert cohort: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCohort(ctx context.Context, cohortID, name string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE cohorts SET name=$2, updated_at=NOW()
		WHERE id=$1
	`, cohortID, name)
	if err != nil {
		return fmt.Errorf("update cohort: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update cohort rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteCohort(ctx context.Context, cohortID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete cohort: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var dependents int
	err = tx.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM contracts WHERE cohort_id=$1)
			+ (SELECT COUNT(*) FROM cohort_members WHERE cohort_id=$1)
	`, cohortID).Scan(&dependents)
	if err != nil {
		return fmt.Errorf("count cohort dependents: %w", err)
	}
	if dependents > 0 {
		return ErrHasDependents
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM cohorts WHERE id=$1`, cohortID)
	if err != nil {
		return fmt.Errorf("delete cohort: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete cohort rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

func (s *PostgresStore) ListCohortMembers(ctx context.Context, cohortID string) ([]CohortMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cm.cohort_id, cm.user_id, u.email, u.display_name, u.role, cm.joined_at
		FROM cohort_members cm
		JOIN users u ON u.id = cm.user_id
		WHERE cm.cohort_id=$1
		ORDER BY cm.joined_at ASC
	`, cohortID)
	if err != nil {
		return nil, fmt.Errorf("list cohort members: %w", err)
	}
	defer rows.Close()

	items := make([]CohortMember, 0)
	for rows.Next() {
		var item CohortMember
		if err := rows.Scan(&item.CohortID, &item.UserID, &item.Email, &item.DisplayName, &item.Role, &item.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan cohort member: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cohort members: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) AddCohortMember(ctx context.Context, cohortID, userID string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM cohort_members WHERE cohort_id=$1 AND user_id=$2)`,
		cohortID, userID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check cohort member: %w", err)
	}
	if exists {
		return ErrDuplicateMember
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cohort_members (cohort_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (cohort_id, user_id) DO NOTHING
	`, cohortID, userID)
	if err != nil {
		return fmt.Errorf("add cohort member: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveCohortMember(ctx context.Context, cohortID, userID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM cohort_members WHERE cohort_id=$1 AND user_id=$2
	`, cohortID, userID)
	if err != nil {
		return fmt.Errorf("remove cohort member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove cohort member rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) SummaryCounts(ctx context.Context) (contracts int, pendingAmendments int, acceptedAmendments int, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contracts`).Scan(&contracts); err != nil {
		err = fmt.Errorf("count contracts: %w", err)
		return
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM amendments WHERE status='PENDING'`).Scan(&pendingAmendments); err != nil {
		err = fmt.Errorf("count pending amendments: %w", err)
		return
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM amendments WHERE status='ACCEPTED'`).Scan(&acceptedAmendments); err != nil {
		err = fmt.Errorf("count accepted amendments: %w", err)
		return
	}
	return
}
