package store

import (
	"context"
	"database/sql"
	"fmt"
)

const commentColumns = `
	c.id, c.content, c.author_id, c.post_id, c.parent_id,
	u.name, u.email, COALESCE(u.avatar, ''), c.created_at, c.updated_at`

func scanComment(row interface{ Scan(...any) error }) (Comment, error) {
	var comment Comment
	err := row.Scan(
		&comment.ID, &comment.Content, &comment.AuthorID, &comment.PostID, &comment.ParentID,
		&comment.AuthorName, &comment.AuthorEmail, &comment.AuthorAvatar, &comment.CreatedAt, &comment.UpdatedAt,
	)
	if err != nil {
		return Comment{}, err
	}
	return comment, nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) (Comment, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, content, author_id, post_id, parent_id)
		VALUES ($1, $2, $3, $4, $5)
	`, comment.ID, comment.Content, comment.AuthorID, comment.PostID, comment.ParentID)
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return s.GetComment(ctx, comment.ID)
}

func (s *PostgresStore) GetComment(ctx context.Context, id string) (Comment, error) {
	return scanComment(s.db.QueryRowContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.id = $1
	`, id))
}

// UpdateCommentContent patches the content only; all other fields are
// immutable after creation. A vanished id surfaces as sql.ErrNoRows —
// an edit racing a delete resolves to not-found, never a silent no-op.
func (s *PostgresStore) UpdateCommentContent(ctx context.Context, id, content string) (Comment, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE comments SET content=$2, updated_at=NOW() WHERE id=$1
	`, id, content)
	if err != nil {
		return Comment{}, fmt.Errorf("update comment: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return Comment{}, sql.ErrNoRows
	}
	return s.GetComment(ctx, id)
}

// DeleteComment removes the comment; the self-referencing FK cascades
// the delete through the entire reply subtree.
func (s *PostgresStore) DeleteComment(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListCommentsByPost returns the flat comment rows for a post in
// creation order; the caller rebuilds the forest.
func (s *PostgresStore) ListCommentsByPost(ctx context.Context, postID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.post_id = $1
		ORDER BY c.created_at ASC, c.id ASC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := make([]Comment, 0)
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, comment)
	}
	return comments, rows.Err()
}

// CommentDepth walks the parent chain of a comment and returns its
// nesting level (1 = root). Used to enforce the reply depth cap on the
// server, not just in the client.
func (s *PostgresStore) CommentDepth(ctx context.Context, id string) (int, error) {
	var depth int
	err := s.db.QueryRowContext(ctx, `
		WITH RECURSIVE chain AS (
			SELECT id, parent_id, 1 AS depth FROM comments WHERE id = $1
			UNION ALL
			SELECT c.id, c.parent_id, chain.depth + 1
			FROM comments c
			JOIN chain ON c.id = chain.parent_id
		)
		SELECT MAX(depth) FROM chain
	`, id).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("comment depth: %w", err)
	}
	return depth, nil
}

// CountCommentsByPost is used for listing payloads.
func (s *PostgresStore) CountCommentsByPost(ctx context.Context, postID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments WHERE post_id=$1`, postID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return count, nil
}
