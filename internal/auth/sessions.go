package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"

	"github.com/achievehub/achievehub/internal/rbac"
)

// ErrSessionNotFound is returned for unknown, expired or revoked tokens.
var ErrSessionNotFound = errors.New("auth: session not found")

// SessionStore keeps bearer sessions in Redis. Only a hash of each token is
// stored, so a Redis dump does not leak usable credentials.
type SessionStore struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
}

type sessionPayload struct {
	UserID      int64     `json:"user_id"`
	Authorities []string  `json:"authorities"`
	IssuedAt    time.Time `json:"issued_at"`
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(client redis.Cmdable, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &SessionStore{client: client, ttl: ttl, prefix: "achievehub:session:"}
}

// TTL exposes the configured session lifetime.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

// Issue creates a session for the user and returns its bearer token.
func (s *SessionStore) Issue(ctx context.Context, userID int64, authorities []string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("auth: generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	payload, err := json.Marshal(sessionPayload{UserID: userID, Authorities: authorities, IssuedAt: time.Now().UTC()})
	if err != nil {
		return "", fmt.Errorf("auth: encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(token), payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("auth: store session: %w", err)
	}
	return token, nil
}

// Resolve returns the actor bound to token.
func (s *SessionStore) Resolve(ctx context.Context, token string) (rbac.Actor, error) {
	if token == "" {
		return rbac.Actor{}, ErrSessionNotFound
	}
	data, err := s.client.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return rbac.Actor{}, ErrSessionNotFound
	}
	if err != nil {
		return rbac.Actor{}, fmt.Errorf("auth: load session: %w", err)
	}
	var payload sessionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return rbac.Actor{}, fmt.Errorf("auth: decode session: %w", err)
	}
	return actorFor(payload.UserID, payload.Authorities), nil
}

// Revoke deletes the session bound to token.
func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("auth: revoke session: %w", err)
	}
	return nil
}

func (s *SessionStore) key(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return s.prefix + hex.EncodeToString(sum[:])
}
