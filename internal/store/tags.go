package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// EnsureTag finds or creates a tag by name. Names are normalized to
// lowercase at write time so "Finance" and "finance" are one tag.
func (s *PostgresStore) EnsureTag(ctx context.Context, id, name string) (Tag, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return Tag{}, errors.New("empty tag name")
	}

	var tag Tag
	err := s.db.QueryRowContext(ctx, `SELECT id, name, slug FROM tags WHERE name=$1`, normalized).
		Scan(&tag.ID, &tag.Name, &tag.Slug)
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Tag{}, fmt.Errorf("lookup tag: %w", err)
	}

	// Concurrent creators race to the unique index; the loser reads the
	// winner's row.
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO tags (id, name, slug)
		VALUES ($1, $2, $2)
		ON CONFLICT (name) DO UPDATE SET name=EXCLUDED.name
		RETURNING id, name, slug
	`, id, normalized).Scan(&tag.ID, &tag.Name, &tag.Slug)
	if err != nil {
		return Tag{}, fmt.Errorf("insert tag: %w", err)
	}
	return tag, nil
}

func (s *PostgresStore) ListTags(ctx context.Context) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, slug FROM tags ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	tags := make([]Tag, 0)
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.Slug); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}
