package store

import (
	"context"
	"database/sql"
	"fmt"
)

const userColumns = `id, name, email, COALESCE(avatar, ''), COALESCE(password_hash, ''), role, created_at, updated_at`

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, avatar, password_hash, role)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
	`, user.ID, user.Name, user.Email, user.Avatar, user.PasswordHash, user.Role)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id).
		Scan(&user.ID, &user.Name, &user.Email, &user.Avatar, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)`, email).
		Scan(&user.ID, &user.Name, &user.Email, &user.Avatar, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// UpdateUser writes the mutable profile fields. An empty PasswordHash
// keeps the stored hash; role changes are the service's responsibility
// to gate, the store writes whatever it is handed.
func (s *PostgresStore) UpdateUser(ctx context.Context, user User) (User, error) {
	var updated User
	err := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET name=$2,
			email=$3,
			avatar=NULLIF($4, ''),
			password_hash=CASE WHEN $5 <> '' THEN $5 ELSE password_hash END,
			role=$6,
			updated_at=NOW()
		WHERE id=$1
		RETURNING `+userColumns+`
	`, user.ID, user.Name, user.Email, user.Avatar, user.PasswordHash, user.Role).
		Scan(&updated.ID, &updated.Name, &updated.Email, &updated.Avatar, &updated.PasswordHash, &updated.Role, &updated.CreatedAt, &updated.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return updated, nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListUsers returns one page of users plus the total match count for
// the admin listing. Search matches name or email, case-insensitive.
func (s *PostgresStore) ListUsers(ctx context.Context, filter UserFilter) ([]User, int, error) {
	where := `TRUE`
	args := []any{}
	if filter.Search != "" {
		where = `(name ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%')`
		args = append(args, filter.Search)
	}

	orderBy := "created_at ASC"
	switch filter.Sort {
	case "name":
		orderBy = "name ASC"
	case "email":
		orderBy = "email ASC"
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		userColumns, where, orderBy, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.Avatar, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate users: %w", err)
	}
	return users, total, nil
}
