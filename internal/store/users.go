package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// User is a platform administrator account.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Invite is a single-use registration token, stored hashed.
type Invite struct {
	ID        uuid.UUID  `json:"id"`
	TokenHash string     `json:"-"`
	Role      string     `json:"role"`
	CreatedBy *uuid.UUID `json:"created_by,omitempty"`
	UsedBy    *uuid.UUID `json:"used_by,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

const userColumns = `id, email, password_hash, display_name, role, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// CreateUser inserts a user row.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash, displayName, role string) (User, error) {
	query := `INSERT INTO users (email, password_hash, display_name, role)
	VALUES ($1, $2, $3, $4)
	RETURNING ` + userColumns

	u, err := scanUser(s.db.QueryRow(ctx, query, email, passwordHash, displayName, role))
	if err != nil {
		return User{}, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// GetUser returns a user by ID.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.db.QueryRow(ctx, query, id))
}

// GetUserByEmail returns a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(s.db.QueryRow(ctx, query, email))
}

// ListUsers returns all users.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var items []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		items = append(items, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}
	return items, nil
}

// CountUsers returns the number of user accounts.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// DeleteUser removes a user account.
func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// CreateInvite inserts an invite row with the hashed token.
func (s *Store) CreateInvite(ctx context.Context, tokenHash, role string, createdBy *uuid.UUID, expiresAt time.Time) (Invite, error) {
	query := `INSERT INTO invites (token_hash, role, created_by, expires_at)
	VALUES ($1, $2, $3, $4)
	RETURNING id, token_hash, role, created_by, used_by, expires_at, used_at, created_at`

	var i Invite
	err := s.db.QueryRow(ctx, query, tokenHash, role, createdBy, expiresAt).Scan(
		&i.ID, &i.TokenHash, &i.Role, &i.CreatedBy, &i.UsedBy, &i.ExpiresAt, &i.UsedAt, &i.CreatedAt,
	)
	if err != nil {
		return Invite{}, fmt.Errorf("creating invite: %w", err)
	}
	return i, nil
}

// GetInviteByTokenHash returns an unused, unexpired invite matching the hash.
func (s *Store) GetInviteByTokenHash(ctx context.Context, tokenHash string) (Invite, error) {
	query := `SELECT id, token_hash, role, created_by, used_by, expires_at, used_at, created_at
	FROM invites WHERE token_hash = $1 AND used_at IS NULL AND expires_at > now()`

	var i Invite
	err := s.db.QueryRow(ctx, query, tokenHash).Scan(
		&i.ID, &i.TokenHash, &i.Role, &i.CreatedBy, &i.UsedBy, &i.ExpiresAt, &i.UsedAt, &i.CreatedAt,
	)
	return i, err
}

// MarkInviteUsed consumes an invite for the given user.
func (s *Store) MarkInviteUsed(ctx context.Context, id, usedBy uuid.UUID) error {
	query := `UPDATE invites SET used_by = $2, used_at = now() WHERE id = $1 AND used_at IS NULL`
	tag, err := s.db.Exec(ctx, query, id, usedBy)
	if err != nil {
		return fmt.Errorf("marking invite used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListInvites returns all invites newest first.
func (s *Store) ListInvites(ctx context.Context) ([]Invite, error) {
	query := `SELECT id, token_hash, role, created_by, used_by, expires_at, used_at, created_at
	FROM invites ORDER BY created_at DESC`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing invites: %w", err)
	}
	defer rows.Close()

	var items []Invite
	for rows.Next() {
		var i Invite
		if err := rows.Scan(&i.ID, &i.TokenHash, &i.Role, &i.CreatedBy, &i.UsedBy, &i.ExpiresAt, &i.UsedAt, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning invite row: %w", err)
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invite rows: %w", err)
	}
	return items, nil
}
