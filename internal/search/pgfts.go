package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search queries posts.search_tsv with plainto_tsquery and ts_rank,
// using ts_headline for snippets.
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

	where := "p.search_tsv @@ plainto_tsquery('english', $1)"
	if q.PublishedOnly {
		where += " AND p.status = 'PUBLISHED'"
	}

	ctx := context.Background()

	var total int
	countSQL := "SELECT count(*) FROM posts p WHERE " + where
	if err := p.db.QueryRowContext(ctx, countSQL, q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT p.id, p.title, p.slug,
			ts_headline('english', coalesce(p.excerpt, p.content), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			COALESCE(p.image, ''), p.status,
			COALESCE((SELECT array_agg(t.name ORDER BY t.name) FROM post_tags pt JOIN tags t ON t.id = pt.tag_id WHERE pt.post_id = p.id), '{}')
		FROM posts p
		WHERE %s
		ORDER BY ts_rank(p.search_tsv, plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, q.Text)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Slug, &r.Snippet, &r.Image, &r.Status, pq.Array(&r.Tags)); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable posts for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]PostRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT p.id, p.title, p.slug, COALESCE(p.excerpt, ''), p.content, COALESCE(p.image, ''), p.status,
			COALESCE((SELECT array_agg(t.name ORDER BY t.name) FROM post_tags pt JOIN tags t ON t.id = pt.tag_id WHERE pt.post_id = p.id), '{}')
		FROM posts p
	`)
	if err != nil {
		return nil, fmt.Errorf("load posts: %w", err)
	}
	defer rows.Close()

	posts := make([]PostRecord, 0)
	for rows.Next() {
		var r PostRecord
		if err := rows.Scan(&r.ID, &r.Title, &r.Slug, &r.Excerpt, &r.Content, &r.Image, &r.Status, pq.Array(&r.Tags)); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}

	return posts, nil
}
