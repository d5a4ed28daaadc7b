package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"otp-auth-service/internal/command"
	"otp-auth-service/internal/config"
	"otp-auth-service/internal/models"
	"otp-auth-service/internal/service"
	"otp-auth-service/internal/status"
)

type sessionStoreStub struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func newSessionStoreStub() *sessionStoreStub {
	return &sessionStoreStub{sessions: make(map[string]*models.Session)}
}

func (s *sessionStoreStub) Save(ctx context.Context, session *models.Session) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.Token] = session
	return session.Token, nil
}

func (s *sessionStoreStub) Load(ctx context.Context, token string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[token], nil
}

func (s *sessionStoreStub) Destroy(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[token]
	delete(s.sessions, token)
	return ok, nil
}

func (s *sessionStoreStub) Cleanup(ctx context.Context) error { return nil }

type fixture struct {
	router   http.Handler
	sessions *sessionStoreStub
}

func newFixture(t *testing.T, login func(ctx context.Context, cmd service.LoginUserCommand) (service.LoginResult, error)) *fixture {
	t.Helper()

	bus := command.New()
	command.Register[service.LoginUserCommand, service.LoginResult](bus,
		command.HandlerFunc[service.LoginUserCommand, service.LoginResult](login))
	command.Register[service.IssueSessionCommand, *models.Session](bus,
		command.HandlerFunc[service.IssueSessionCommand, *models.Session](
			func(ctx context.Context, cmd service.IssueSessionCommand) (*models.Session, error) {
				return models.NewSession("test-token", cmd.UserID, time.Hour), nil
			}))

	cfg := &config.Config{
		Session: config.SessionConfig{CookieName: "session_token", TTL: time.Hour, TokenLength: 48},
	}
	sessions := newSessionStoreStub()
	authHandler := NewAuthHandler(bus, sessions, cfg, zap.NewNop())

	return &fixture{
		router:   NewRouter(authHandler, false, zap.NewNop()),
		sessions: sessions,
	}
}

func postLogin(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestLoginOTPSent(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, cmd service.LoginUserCommand) (service.LoginResult, error) {
		assert.Equal(t, "alice@example.com", cmd.Login)
		assert.Empty(t, cmd.OTP)
		return service.LoginResult{State: service.StateAwaitingOTP, Message: "OTP sent to email"}, nil
	})

	rec := postLogin(t, f.router, `{"username":"alice@example.com"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "otp_sent", resp["status"])
	assert.Equal(t, "OTP sent to email", resp["message"])
	assert.Empty(t, rec.Result().Cookies())
}

func TestLoginAuthenticatedSetsCookie(t *testing.T) {
	user := &models.User{UserID: "user-1", Username: "alice@example.com"}
	f := newFixture(t, func(ctx context.Context, cmd service.LoginUserCommand) (service.LoginResult, error) {
		return service.LoginResult{State: service.StateAuthenticated, User: user, Message: "login successful"}, nil
	})

	rec := postLogin(t, f.router, `{"username":"alice@example.com","otp":"12345678"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "authenticated", resp["status"])
	assert.Equal(t, "user-1", resp["user_id"])

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	cookie := cookies[0]
	assert.Equal(t, "session_token", cookie.Name)
	assert.Equal(t, "test-token", cookie.Value)
	assert.True(t, cookie.HttpOnly)
}

func TestLoginErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"bad request", status.BadRequest("username is required"), http.StatusBadRequest, "username is required"},
		{"auth error", status.AuthError("invalid OTP"), http.StatusUnauthorized, "invalid OTP"},
		{"not found", status.NotFound("handler not found"), http.StatusNotFound, "handler not found"},
		{"internal detail is hidden", status.InternalWrap("failed to save OTP", assert.AnError), http.StatusInternalServerError, "internal error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, func(ctx context.Context, cmd service.LoginUserCommand) (service.LoginResult, error) {
				return service.LoginResult{}, tc.err
			})

			rec := postLogin(t, f.router, `{"username":"alice@example.com"}`)

			assert.Equal(t, tc.wantCode, rec.Code)
			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.wantMsg, resp["error"])
		})
	}
}

func TestLoginRejectsInvalidJSON(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, cmd service.LoginUserCommand) (service.LoginResult, error) {
		t.Fatal("handler should not be reached")
		return service.LoginResult{}, nil
	})

	rec := postLogin(t, f.router, `{"username":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMe(t *testing.T) {
	f := newFixture(t, nil)
	session := models.NewSession("tok-abc", "user-1", time.Hour)
	_, err := f.sessions.Save(context.Background(), session)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "session_token", Value: "tok-abc"})
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "user-1", resp["user_id"])
}

func TestMeWithoutSession(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "session_token", Value: "unknown"})
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.sessions.Save(context.Background(), models.NewSession("tok-abc", "user-1", time.Hour))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session_token", Value: "tok-abc"})
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)

	remaining, err := f.sessions.Load(context.Background(), "tok-abc")
	require.NoError(t, err)
	assert.Nil(t, remaining)
}

func TestLogoutWithoutSessionIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}
