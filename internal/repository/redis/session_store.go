package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"otp-auth-service/internal/client"
	"otp-auth-service/internal/models"
	"otp-auth-service/internal/util"
)

const (
	sessionPrefix      = "session:"
	userSessionsPrefix = "user_sessions:"
)

// SessionStore keeps sessions in Redis keyed by token, with a per-user
// token set so all of a user's sessions can be enumerated.
type SessionStore struct {
	client *client.RedisClient
}

func NewSessionStore(client *client.RedisClient) *SessionStore {
	return &SessionStore{client: client}
}

func (s *SessionStore) Save(ctx context.Context, session *models.Session) (string, error) {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return "", fmt.Errorf("refusing to save already-expired session for user %s", session.UserID)
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.Pipeline()
	key := sessionPrefix + session.Token
	pipe.Set(ctx, key, payload, ttl)
	userKey := userSessionsPrefix + session.UserID
	pipe.SAdd(ctx, userKey, session.Token)
	pipe.Expire(ctx, userKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to save session",
			zap.String("user_id", session.UserID),
			zap.Duration("ttl", ttl),
			zap.Error(err))
		return "", fmt.Errorf("failed to save session: %w", err)
	}

	util.Debug("Session saved",
		zap.String("user_id", session.UserID),
		zap.Duration("ttl", ttl))
	return session.Token, nil
}

// Load returns nil, nil for unknown or expired tokens.
func (s *SessionStore) Load(ctx context.Context, token string) (*models.Session, error) {
	payload, err := s.client.Get(ctx, sessionPrefix+token)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, nil
		}
		util.Error("Failed to load session", zap.Error(err))
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(payload), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	if session.IsExpired(time.Now().UTC()) {
		return nil, nil
	}

	return &session, nil
}

// Destroy removes a session and reports whether one existed.
func (s *SessionStore) Destroy(ctx context.Context, token string) (bool, error) {
	session, err := s.Load(ctx, token)
	if err != nil {
		return false, err
	}

	removed, err := s.client.Del(ctx, sessionPrefix+token)
	if err != nil {
		util.Error("Failed to destroy session", zap.Error(err))
		return false, fmt.Errorf("failed to destroy session: %w", err)
	}

	if session != nil {
		_ = s.client.SRem(ctx, userSessionsPrefix+session.UserID, token)
		util.Info("Session destroyed", zap.String("user_id", session.UserID))
	}

	return removed > 0, nil
}

// Cleanup prunes user session sets whose tokens have lapsed. Redis TTL
// already evicts the session records themselves; this keeps the
// per-user sets from accumulating dead members.
func (s *SessionStore) Cleanup(ctx context.Context) error {
	userKeys, err := s.client.ScanAll(ctx, userSessionsPrefix+"*", 100)
	if err != nil {
		return fmt.Errorf("failed to scan user session sets: %w", err)
	}

	pruned := 0
	for _, userKey := range userKeys {
		tokens, err := s.client.SMembers(ctx, userKey)
		if err != nil {
			util.Warn("Failed to read user session set",
				zap.String("key", userKey), zap.Error(err))
			continue
		}

		for _, token := range tokens {
			exists, err := s.client.Exists(ctx, sessionPrefix+token)
			if err != nil {
				continue
			}
			if !exists {
				if err := s.client.SRem(ctx, userKey, token); err == nil {
					pruned++
				}
			}
		}
	}

	util.Info("Session cleanup completed",
		zap.Int("sets_checked", len(userKeys)),
		zap.Int("tokens_pruned", pruned))
	return nil
}

// UserSessions returns the live tokens for a user.
func (s *SessionStore) UserSessions(ctx context.Context, userID string) ([]string, error) {
	tokens, err := s.client.SMembers(ctx, userSessionsPrefix+userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user sessions: %w", err)
	}

	live := tokens[:0]
	for _, token := range tokens {
		if exists, err := s.client.Exists(ctx, sessionPrefix+token); err == nil && exists {
			live = append(live, token)
		}
	}
	return live, nil
}
