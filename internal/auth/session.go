package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// SessionTTL is the fixed lifetime of a session. Sessions are renewed by
// rotation once they pass the halfway point, so an active client never hits
// the hard expiry.
const SessionTTL = 24 * time.Hour

func newSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CreateSession mints a new opaque session for the user.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Session{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	token, err := newSessionToken()
	if err != nil {
		return Session{}, err
	}
	sess := Session{ID: token, UserID: userID, ExpiresAt: s.now().Add(SessionTTL)}
	if err := s.store.Sessions().Create(ctx, &sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// SessionValidation is the result of validating a session token.
type SessionValidation struct {
	User    *User
	Session Session
	// Rotated reports that a replacement token was minted; the caller must
	// propagate the new cookie to the client.
	Rotated bool
}

// ValidateSession resolves a session token to its user. An absent or expired
// token yields ErrNotFound; expired rows are reaped on discovery. A session
// with less than half its lifetime remaining is rotated to a fresh id and a
// full TTL as a side effect of validation.
//
// Two requests racing on the same stale token may both rotate; only one
// replacement survives in the store and the loser's next request simply
// re-authenticates.
func (s *Service) ValidateSession(ctx context.Context, token string) (SessionValidation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return SessionValidation{}, ErrNotFound
	}
	sessions := s.store.Sessions()
	sess, err := sessions.Find(ctx, token)
	if err != nil {
		return SessionValidation{}, err
	}
	now := s.now()
	if !now.Before(sess.ExpiresAt) {
		_ = sessions.Delete(ctx, sess.ID)
		return SessionValidation{}, ErrNotFound
	}

	result := SessionValidation{Session: *sess}
	if fresh := sess.ExpiresAt.Sub(now) > SessionTTL/2; !fresh {
		id, err := newSessionToken()
		if err != nil {
			return SessionValidation{}, err
		}
		next := Session{ID: id, UserID: sess.UserID, ExpiresAt: now.Add(SessionTTL)}
		if err := sessions.Replace(ctx, sess.ID, &next); err != nil {
			return SessionValidation{}, err
		}
		result.Session = next
		result.Rotated = true
	}

	user, err := s.store.Users().Find(ctx, sess.UserID)
	if err != nil {
		return SessionValidation{}, err
	}
	result.User = user
	return result, nil
}

// InvalidateSession deletes the session row. Unknown ids are a no-op.
func (s *Service) InvalidateSession(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	return s.store.Sessions().Delete(ctx, id)
}
