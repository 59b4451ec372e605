package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across contracts, clauses, and
// journal_entries using plainto_tsquery and ts_rank, with ts_headline for
// snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultContract {
		where := "ct.fts @@ " + tsQuery
		if q.FilterCohortID != "" {
			where += fmt.Sprintf(" AND ct.cohort_id = $%d", argN)
			args = append(args, q.FilterCohortID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'contract'::text AS type, ct.id, ct.title,
				ts_headline('english', coalesce(ct.title, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				ct.id AS contract_id, ct.cohort_id,
				ts_rank(ct.fts, %s) AS rank
			FROM contracts ct
			WHERE %s`, tsQuery, tsQuery, where))
	}

	if q.FilterType == "" || q.FilterType == ResultClause {
		where := "cl.fts @@ " + tsQuery
		if q.FilterCohortID != "" {
			where += fmt.Sprintf(" AND ct.cohort_id = $%d", argN)
			args = append(args, q.FilterCohortID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'clause'::text AS type, cl.id, ct.title,
				ts_headline('english', coalesce(cl.content, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				cl.contract_id, ct.cohort_id,
				ts_rank(cl.fts, %s) AS rank
			FROM clauses cl
			JOIN contracts ct ON ct.id = cl.contract_id
			WHERE %s`, tsQuery, tsQuery, where))
	}

	if q.FilterType == "" || q.FilterType == ResultJournal {
		where := "je.fts @@ " + tsQuery
		if q.FilterCohortID != "" {
			where += fmt.Sprintf(" AND ct.cohort_id = $%d", argN)
			args = append(args, q.FilterCohortID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'journal'::text AS type, je.id, je.title,
				ts_headline('english', coalesce(je.content, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				je.contract_id, ct.cohort_id,
				ts_rank(je.fts, %s) AS rank
			FROM journal_entries je
			JOIN contracts ct ON ct.id = je.contract_id
			WHERE %s`, tsQuery, tsQuery, where))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, contract_id, cohort_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ContractID, &r.CohortID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ContractRecord, []ClauseRecord, []JournalRecord, error) {
	contractRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, cohort_id
		FROM contracts
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load contracts: %w", err)
	}
	defer contractRows.Close()

	contracts := make([]ContractRecord, 0)
	for contractRows.Next() {
		var c ContractRecord
		if err := contractRows.Scan(&c.ID, &c.Title, &c.CohortID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan contract: %w", err)
		}
		contracts = append(contracts, c)
	}
	if err := contractRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate contracts: %w", err)
	}

	clauseRows, err := p.db.QueryContext(ctx, `
		SELECT cl.id, cl.content, cl.contract_id, ct.cohort_id, u.display_name
		FROM clauses cl
		JOIN contracts ct ON ct.id = cl.contract_id
		JOIN users u ON u.id = cl.author_id
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load clauses: %w", err)
	}
	defer clauseRows.Close()

	clauses := make([]ClauseRecord, 0)
	for clauseRows.Next() {
		var c ClauseRecord
		if err := clauseRows.Scan(&c.ID, &c.Content, &c.ContractID, &c.CohortID, &c.Author); err != nil {
			return nil, nil, nil, fmt.Errorf("scan clause: %w", err)
		}
		clauses = append(clauses, c)
	}
	if err := clauseRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate clauses: %w", err)
	}

	journalRows, err := p.db.QueryContext(ctx, `
		SELECT je.id, je.title, je.content, je.contract_id, ct.cohort_id
		FROM journal_entries je
		JOIN contracts ct ON ct.id = je.contract_id
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load journal entries: %w", err)
	}
	defer journalRows.Close()

	journals := make([]JournalRecord, 0)
	for journalRows.Next() {
		var j JournalRecord
		if err := journalRows.Scan(&j.ID, &j.Title, &j.Content, &j.ContractID, &j.CohortID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan journal entry: %w", err)
		}
		journals = append(journals, j)
	}
	if err := journalRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate journal entries: %w", err)
	}

	return contracts, clauses, journals, nil
}
