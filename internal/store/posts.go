package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

func (s *PostgresStore) InsertPost(ctx context.Context, post Post, tagIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert post: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO posts (id, title, slug, content, excerpt, image, status, author_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8)
	`, post.ID, post.Title, post.Slug, post.Content, post.Excerpt, post.Image, post.Status, post.AuthorID)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}

	if err := replacePostTags(ctx, tx, post.ID, tagIDs); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdatePost rewrites the post row and its tag links. Last write wins;
// there is no version check.
func (s *PostgresStore) UpdatePost(ctx context.Context, post Post, tagIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update post: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE posts
		SET title=$2, slug=$3, content=$4, excerpt=NULLIF($5, ''), image=NULLIF($6, ''), status=$7, updated_at=NOW()
		WHERE id=$1
	`, post.ID, post.Title, post.Slug, post.Content, post.Excerpt, post.Image, post.Status)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}

	if err := replacePostTags(ctx, tx, post.ID, tagIDs); err != nil {
		return err
	}
	return tx.Commit()
}

func replacePostTags(ctx context.Context, tx *sql.Tx, postID string, tagIDs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM post_tags WHERE post_id=$1`, postID); err != nil {
		return fmt.Errorf("clear post tags: %w", err)
	}
	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO post_tags (post_id, tag_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, postID, tagID); err != nil {
			return fmt.Errorf("link post tag: %w", err)
		}
	}
	return nil
}

// DeletePost removes the post; comments and tag links go with it via
// ON DELETE CASCADE.
func (s *PostgresStore) DeletePost(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const postColumns = `
	p.id, p.title, p.slug, p.content, COALESCE(p.excerpt, ''), COALESCE(p.image, ''),
	p.status, p.author_id, u.name, u.email, p.created_at, p.updated_at`

func (s *PostgresStore) GetPostBySlug(ctx context.Context, slug string) (Post, error) {
	var post Post
	err := s.db.QueryRowContext(ctx, `
		SELECT `+postColumns+`
		FROM posts p
		JOIN users u ON u.id = p.author_id
		WHERE p.slug = $1
	`, slug).Scan(
		&post.ID, &post.Title, &post.Slug, &post.Content, &post.Excerpt, &post.Image,
		&post.Status, &post.AuthorID, &post.AuthorName, &post.AuthorEmail, &post.CreatedAt, &post.UpdatedAt,
	)
	if err != nil {
		return Post{}, err
	}
	tags, err := s.tagsForPost(ctx, post.ID)
	if err != nil {
		return Post{}, err
	}
	post.Tags = tags
	return post, nil
}

func (s *PostgresStore) GetPostByID(ctx context.Context, id string) (Post, error) {
	var post Post
	err := s.db.QueryRowContext(ctx, `
		SELECT `+postColumns+`
		FROM posts p
		JOIN users u ON u.id = p.author_id
		WHERE p.id = $1
	`, id).Scan(
		&post.ID, &post.Title, &post.Slug, &post.Content, &post.Excerpt, &post.Image,
		&post.Status, &post.AuthorID, &post.AuthorName, &post.AuthorEmail, &post.CreatedAt, &post.UpdatedAt,
	)
	if err != nil {
		return Post{}, err
	}
	tags, err := s.tagsForPost(ctx, post.ID)
	if err != nil {
		return Post{}, err
	}
	post.Tags = tags
	return post, nil
}

// SlugExists reports whether a slug is taken, optionally ignoring one
// post id (the post being updated).
func (s *PostgresStore) SlugExists(ctx context.Context, slug, excludePostID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM posts WHERE LOWER(slug)=LOWER($1) AND id <> $2)
	`, slug, excludePostID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return exists, nil
}

// ListPosts returns one page of posts plus the total match count.
// Title search is a case-insensitive substring; tags use OR semantics
// via EXISTS over the join table.
func (s *PostgresStore) ListPosts(ctx context.Context, filter PostFilter) ([]Post, int, error) {
	var conditions []string
	var args []any

	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		conditions = append(conditions, "p.status = "+arg(filter.Status))
	}
	if filter.AuthorID != "" {
		conditions = append(conditions, "p.author_id = "+arg(filter.AuthorID))
	}
	if filter.Search != "" {
		conditions = append(conditions, "p.title ILIKE '%' || "+arg(filter.Search)+" || '%'")
	}
	if len(filter.Tags) > 0 {
		placeholders := make([]string, 0, len(filter.Tags))
		for _, tag := range filter.Tags {
			placeholders = append(placeholders, arg(strings.ToLower(tag)))
		}
		conditions = append(conditions, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM post_tags pt
			JOIN tags t ON t.id = pt.tag_id
			WHERE pt.post_id = p.id AND t.name IN (%s)
		)`, strings.Join(placeholders, ", ")))
	}

	where := "TRUE"
	if len(conditions) > 0 {
		where = strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts p WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	direction := "DESC"
	if filter.Oldest {
		direction = "ASC"
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM posts p
		JOIN users u ON u.id = p.author_id
		WHERE %s
		ORDER BY p.created_at %s
		LIMIT %s OFFSET %s
	`, postColumns, where, direction, arg(filter.Limit), arg(filter.Offset))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	posts := make([]Post, 0)
	for rows.Next() {
		var post Post
		if err := rows.Scan(
			&post.ID, &post.Title, &post.Slug, &post.Content, &post.Excerpt, &post.Image,
			&post.Status, &post.AuthorID, &post.AuthorName, &post.AuthorEmail, &post.CreatedAt, &post.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate posts: %w", err)
	}

	for i := range posts {
		tags, err := s.tagsForPost(ctx, posts[i].ID)
		if err != nil {
			return nil, 0, err
		}
		posts[i].Tags = tags
	}
	return posts, total, nil
}

func (s *PostgresStore) tagsForPost(ctx context.Context, postID string) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.slug
		FROM post_tags pt
		JOIN tags t ON t.id = pt.tag_id
		WHERE pt.post_id = $1
		ORDER BY t.name ASC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("post tags: %w", err)
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
