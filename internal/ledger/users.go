package ledger

import (
	"context"
	"fmt"
	"time"
)

// UserRole is one of the roles an account may hold.
type UserRole string

const (
	RoleUser  UserRole = "USER"
	RoleAdmin UserRole = "ADMIN"
)

// User mirrors the users table.
type User struct {
	ID        int64
	Email     string
	Role      UserRole
	CreatedAt time.Time
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, role, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting user %d: %w", id, err)
	}
	return &u, nil
}

// GetUserByEmail fetches a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, role, created_at FROM users WHERE email = $1`, email,
	).Scan(&u.ID, &u.Email, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting user by email %q: %w", email, err)
	}
	return &u, nil
}

// CreateUser inserts a new user row.
func (s *Store) CreateUser(ctx context.Context, email string, role UserRole) (*User, error) {
	u := &User{Email: email, Role: role}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (email, role) VALUES ($1, $2) RETURNING id, created_at`,
		email, role,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating user %q: %w", email, err)
	}
	return u, nil
}
