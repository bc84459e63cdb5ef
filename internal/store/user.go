package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/memoist-io/idserver/types"
)

const uniqueViolation = "23505"

const userColumns = `id, email, username, full_name, is_active, password_hash, created_at, updated_at, last_login`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE username = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, username))
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	const query = `
		INSERT INTO users (id, email, username, full_name, is_active, password_hash, created_at, updated_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Email,
		user.Username,
		user.FullName,
		user.IsActive,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
		user.LastLogin,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrConflict
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	const query = `
		UPDATE users
		SET email = $1,
			username = $2,
			full_name = $3,
			is_active = $4,
			password_hash = $5,
			updated_at = $6
		WHERE id = $7`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Email,
		user.Username,
		user.FullName,
		user.IsActive,
		user.PasswordHash,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrConflict
		}
		return types.User{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns users ordered by creation time, newest first, plus the
// total size of the filtered set regardless of pagination.
func (r *UserRepository) List(ctx context.Context, isActive *bool, offset, limit int) ([]types.User, int, error) {
	var total int
	if isActive != nil {
		const countQuery = `SELECT COUNT(*) FROM users WHERE is_active = $1`
		if err := r.db.QueryRowContext(ctx, countQuery, *isActive).Scan(&total); err != nil {
			return nil, 0, err
		}
	} else {
		const countQuery = `SELECT COUNT(*) FROM users`
		if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
			return nil, 0, err
		}
	}

	var (
		rows *sql.Rows
		err  error
	)
	if isActive != nil {
		const query = `
			SELECT ` + userColumns + `
			FROM users
			WHERE is_active = $1
			ORDER BY created_at DESC
			OFFSET $2 LIMIT $3`
		rows, err = r.db.QueryContext(ctx, query, *isActive, offset, limit)
	} else {
		const query = `
			SELECT ` + userColumns + `
			FROM users
			ORDER BY created_at DESC
			OFFSET $1 LIMIT $2`
		rows, err = r.db.QueryContext(ctx, query, offset, limit)
	}
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := []types.User{}
	for rows.Next() {
		var user types.User
		if err := rows.Scan(
			&user.ID,
			&user.Email,
			&user.Username,
			&user.FullName,
			&user.IsActive,
			&user.PasswordHash,
			&user.CreatedAt,
			&user.UpdatedAt,
			&user.LastLogin,
		); err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// ExistsEmailOrUsername reports whether any user other than excludeID
// holds either the given email or username. Empty strings never match.
func (r *UserRepository) ExistsEmailOrUsername(ctx context.Context, email, username string, excludeID uuid.UUID) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM users
			WHERE (email = $1 OR username = $2) AND id <> $3
		)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, email, username, excludeID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	const query = `UPDATE users SET last_login = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Counts returns the total and active user counts in one round trip.
func (r *UserRepository) Counts(ctx context.Context) (total, active int, err error) {
	const query = `SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active) FROM users`
	if err := r.db.QueryRowContext(ctx, query).Scan(&total, &active); err != nil {
		return 0, 0, err
	}
	return total, active, nil
}

func (r *UserRepository) scanOne(row *sql.Row) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.FullName,
		&user.IsActive,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.LastLogin,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
