// Package auth verifies admin credentials and tracks login sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/aflyhorse/kmstat/internal/adapters/repository"
	"github.com/aflyhorse/kmstat/internal/domain/model"
	"github.com/aflyhorse/kmstat/pkg/logger"
)

const defaultSessionTTL = 12 * time.Hour

// UserStore is the slice of the repository the manager needs.
type UserStore interface {
	UserByUsername(ctx context.Context, username string) (model.User, error)
	UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error
}

type session struct {
	username string
	expires  time.Time
}

// Manager authenticates users and hands out bearer tokens.
type Manager struct {
	store UserStore
	ttl   time.Duration
	log   logger.Logger

	mu       sync.RWMutex
	sessions map[string]session
}

// NewManager creates a session manager backed by store.
func NewManager(store UserStore, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		ttl:      defaultSessionTTL,
		log:      logger.Named("auth"),
		sessions: make(map[string]session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// HashPassword produces a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(h), nil
}

// Login checks credentials and returns a session token.
func (m *Manager) Login(ctx context.Context, username, password string) (string, error) {
	u, err := m.store.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		m.log.Warn(ctx, "rejected login", logger.String("username", username))
		return "", ErrInvalidCredentials
	}

	token := uuid.NewString()
	m.mu.Lock()
	m.sessions[token] = session{username: username, expires: time.Now().Add(m.ttl)}
	m.mu.Unlock()

	m.log.Info(ctx, "user logged in", logger.String("username", username))
	return token, nil
}

// Logout invalidates a token. Unknown tokens are a no-op.
func (m *Manager) Logout(token string) {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
}

// Validate resolves a token to its username.
func (m *Manager) Validate(token string) (string, bool) {
	m.mu.RLock()
	s, ok := m.sessions[token]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}
	if time.Now().After(s.expires) {
		m.Logout(token)
		return "", false
	}
	return s.username, true
}

// ChangePassword rotates a user's password after verifying the old one.
// All existing sessions of that user are invalidated.
func (m *Manager) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	u, err := m.store.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(oldPassword)) != nil {
		return ErrInvalidCredentials
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := m.store.UpdateUserPassword(ctx, u.ID, hash); err != nil {
		return fmt.Errorf("storing new password: %w", err)
	}

	m.mu.Lock()
	for token, s := range m.sessions {
		if s.username == username {
			delete(m.sessions, token)
		}
	}
	m.mu.Unlock()
	return nil
}

// Prune drops expired sessions. Called periodically by the service.
func (m *Manager) Prune() {
	now := time.Now()
	m.mu.Lock()
	for token, s := range m.sessions {
		if now.After(s.expires) {
			delete(m.sessions, token)
		}
	}
	m.mu.Unlock()
}
