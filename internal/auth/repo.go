package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/achievehub/achievehub/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (User, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	const query = `SELECT id, email, password_hash, authorities, is_active, created_at, updated_at
FROM users WHERE lower(email) = lower($1)`
	var u User
	err := r.pool.QueryRow(ctx, query, strings.TrimSpace(email)).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Authorities, &u.IsActive, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("auth: find user: %w", err)
	}
	return u, nil
}

// MemoryRepository keeps users in memory for development and tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryRepository seeds a MemoryRepository with users.
func NewMemoryRepository(users ...User) *MemoryRepository {
	repo := &MemoryRepository{users: make(map[string]User, len(users))}
	for _, u := range users {
		repo.Add(u)
	}
	return repo
}

// Add stores or replaces u.
func (r *MemoryRepository) Add(u User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[strings.ToLower(strings.TrimSpace(u.Email))] = u
}

// FindByEmail implements Repository.
func (r *MemoryRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

var (
	_ Repository = (*PGRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)
