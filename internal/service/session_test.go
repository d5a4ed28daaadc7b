package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"otp-auth-service/internal/config"
	"otp-auth-service/internal/identifier"
	"otp-auth-service/internal/models"
	"otp-auth-service/internal/status"
)

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	saveErr  error
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]*models.Session)}
}

func (s *fakeSessionStore) Save(ctx context.Context, session *models.Session) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return "", s.saveErr
	}
	s.sessions[session.Token] = session
	return session.Token, nil
}

func (s *fakeSessionStore) Load(ctx context.Context, token string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok || session.IsExpired(time.Now().UTC()) {
		return nil, nil
	}
	return session, nil
}

func (s *fakeSessionStore) Destroy(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[token]
	delete(s.sessions, token)
	return ok, nil
}

func (s *fakeSessionStore) Cleanup(ctx context.Context) error { return nil }

func newSessionHandlerForTest(t *testing.T, store SessionStore) *SessionHandler {
	t.Helper()
	h, err := NewSessionHandler(store, identifier.NewCryptoProvider(),
		config.SessionConfig{TokenLength: 48, TTL: 72 * time.Hour, CookieName: "session_token"}, zap.NewNop())
	require.NoError(t, err)
	return h
}

func TestIssueSession(t *testing.T) {
	store := newFakeSessionStore()
	h := newSessionHandlerForTest(t, store)

	session, err := h.Handle(context.Background(), IssueSessionCommand{UserID: "user-1"})
	require.NoError(t, err)

	assert.Equal(t, "user-1", session.UserID)
	assert.Len(t, session.Token, 48)
	for _, c := range session.Token {
		assert.True(t, strings.ContainsRune(identifier.TokenAlphabet, c))
	}
	assert.True(t, session.ExpiresAt.After(session.CreatedAt))

	stored, err := store.Load(context.Background(), session.Token)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "user-1", stored.UserID)
}

func TestIssueSessionDistinctTokens(t *testing.T) {
	store := newFakeSessionStore()
	h := newSessionHandlerForTest(t, store)

	first, err := h.Handle(context.Background(), IssueSessionCommand{UserID: "user-1"})
	require.NoError(t, err)
	second, err := h.Handle(context.Background(), IssueSessionCommand{UserID: "user-1"})
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)
}

func TestIssueSessionEmptyUserID(t *testing.T) {
	h := newSessionHandlerForTest(t, newFakeSessionStore())

	_, err := h.Handle(context.Background(), IssueSessionCommand{})
	require.Error(t, err)
	assert.Equal(t, status.KindBadRequest, status.KindOf(err))
}

func TestIssueSessionStoreFailure(t *testing.T) {
	store := newFakeSessionStore()
	store.saveErr = errors.New("redis down")
	h := newSessionHandlerForTest(t, store)

	_, err := h.Handle(context.Background(), IssueSessionCommand{UserID: "user-1"})
	require.Error(t, err)
	assert.Equal(t, status.KindInternal, status.KindOf(err))
	assert.Contains(t, err.Error(), "failed to save session")
}
