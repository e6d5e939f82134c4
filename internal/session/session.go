// Package session holds the signed-in operator's token and profile, cached
// in memory and mirrored to a persistent KV.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"marketbaza/internal/domain"
)

const (
	KeyToken = "marketbaza:auth_token"
	KeyUser  = "marketbaza:user"
)

// LegacyOrdersKey names the per-market order cache older clients kept.
func LegacyOrdersKey(marketID int64) string {
	return fmt.Sprintf("orders_%d", marketID)
}

type Session struct {
	kv KV

	mu    sync.RWMutex
	token string
	user  *domain.User
}

func New(kv KV) *Session {
	if kv == nil {
		kv = NewMemoryKV()
	}
	return &Session{kv: kv}
}

// Load pulls the persisted token and profile into memory. A missing entry is
// not an error; a profile that no longer decodes is dropped.
func (s *Session) Load(ctx context.Context) error {
	token, _, err := s.kv.Get(ctx, KeyToken)
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}
	raw, ok, err := s.kv.Get(ctx, KeyUser)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	var user *domain.User
	if ok && raw != "" {
		var u domain.User
		if err := json.Unmarshal([]byte(raw), &u); err == nil {
			user = &u
		}
	}

	s.mu.Lock()
	s.token = token
	s.user = user
	s.mu.Unlock()
	return nil
}

// Save stores token and profile together. If the profile cannot be written
// the token is rolled back.
func (s *Session) Save(ctx context.Context, token string, user domain.User) error {
	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := s.kv.Set(ctx, KeyToken, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	if err := s.kv.Set(ctx, KeyUser, string(payload)); err != nil {
		rollbackErr := s.kv.Delete(ctx, KeyToken)
		return errors.Join(fmt.Errorf("store user: %w", err), rollbackErr)
	}

	s.mu.Lock()
	s.token = token
	s.user = &user
	s.mu.Unlock()
	return nil
}

// Token returns the in-memory token, falling back to the persistent store.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()
	if token != "" {
		return token, nil
	}

	stored, ok, err := s.kv.Get(ctx, KeyToken)
	if err != nil || !ok {
		return "", err
	}
	s.mu.Lock()
	s.token = stored
	s.mu.Unlock()
	return stored, nil
}

func (s *Session) User(ctx context.Context) (domain.User, bool, error) {
	s.mu.RLock()
	user := s.user
	s.mu.RUnlock()
	if user != nil {
		return *user, true, nil
	}

	raw, ok, err := s.kv.Get(ctx, KeyUser)
	if err != nil || !ok || raw == "" {
		return domain.User{}, false, err
	}
	var u domain.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return domain.User{}, false, fmt.Errorf("decode user: %w", err)
	}
	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()
	return u, true, nil
}

// Clear forgets token and profile. Memory is always cleared; the returned
// error only reports the persistent store.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()
	return s.kv.Delete(ctx, KeyToken, KeyUser)
}

// Delete removes an auxiliary key such as a legacy order cache.
func (s *Session) Delete(ctx context.Context, key string) error {
	return s.kv.Delete(ctx, key)
}
