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

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a full-text query over the caller's abc_schemas rows
// using plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || q.UserID == "" {
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

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM abc_schemas
		WHERE user_id = $2 AND fts @@ plainto_tsquery('english', $1)
	`, q.Text, q.UserID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, user_id, activating_event,
			ts_headline('english', beliefs, plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			ts_rank(fts, plainto_tsquery('english', $1)) AS rank
		FROM abc_schemas
		WHERE user_id = $2 AND fts @@ plainto_tsquery('english', $1)
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`, limit, offset), q.Text, q.UserID)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var rank float64
		if err := rows.Scan(&r.ID, &r.UserID, &r.Title, &r.Snippet, &rank); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all thought records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]RecordDoc, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, activating_event, beliefs, consequences
		FROM abc_schemas
	`)
	if err != nil {
		return nil, fmt.Errorf("load thought records: %w", err)
	}
	defer rows.Close()

	docs := make([]RecordDoc, 0)
	for rows.Next() {
		var d RecordDoc
		if err := rows.Scan(&d.ID, &d.UserID, &d.ActivatingEvent, &d.Beliefs, &d.Consequences); err != nil {
			return nil, fmt.Errorf("scan thought record: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thought records: %w", err)
	}
	return docs, nil
}
