package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/MDx-Vision/nicehr-realtime/src/types"
)

// ErrUnauthenticated is returned for every handshake failure: missing or
// malformed cookie, bad signature, unknown session, or a session without the
// expected attributes. The handshake layer turns it into a hard rejection.
var ErrUnauthenticated = errors.New("unauthenticated")

// Session is the result of a successful handshake resolution.
type Session struct {
	UserID string
	Role   types.Role
}

// Record is a raw session as returned by the session store.
type Record struct {
	UserID string
	Role   string
}

// Store looks up sessions by id. Implementations return an error when the
// session does not exist.
type Store interface {
	LookupSession(ctx context.Context, sessionID string) (Record, error)
}

type claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Resolver authenticates inbound connections against the session store.
// It holds no mutable state; Resolve is safe for concurrent use.
type Resolver struct {
	secret     []byte
	cookieName string
	store      Store
	logger     zerolog.Logger
}

// NewResolver creates a resolver verifying cookies signed with secret.
func NewResolver(secret, cookieName string, store Store, logger zerolog.Logger) *Resolver {
	return &Resolver{
		secret:     []byte(secret),
		cookieName: cookieName,
		store:      store,
		logger:     logger.With().Str("component", "session-resolver").Logger(),
	}
}

// Resolve extracts the session cookie from a raw Cookie header, verifies its
// signature, and looks the session up in the store. All failure paths
// collapse to ErrUnauthenticated; no anonymous sessions are returned.
func (r *Resolver) Resolve(ctx context.Context, cookieHeader string) (Session, error) {
	token, err := r.cookieToken(cookieHeader)
	if err != nil {
		r.logger.Debug().Err(err).Msg("session cookie missing or malformed")
		return Session{}, ErrUnauthenticated
	}

	sid, err := r.verify(token)
	if err != nil {
		r.logger.Debug().Err(err).Msg("session token rejected")
		return Session{}, ErrUnauthenticated
	}

	rec, err := r.store.LookupSession(ctx, sid)
	if err != nil {
		r.logger.Debug().Err(err).Str("session_id", sid).Msg("session lookup failed")
		return Session{}, ErrUnauthenticated
	}
	if rec.UserID == "" {
		r.logger.Debug().Str("session_id", sid).Msg("session has no user")
		return Session{}, ErrUnauthenticated
	}

	role, err := types.ParseRole(rec.Role)
	if err != nil {
		r.logger.Debug().Err(err).Str("session_id", sid).Msg("session has no usable role")
		return Session{}, ErrUnauthenticated
	}

	return Session{UserID: rec.UserID, Role: role}, nil
}

func (r *Resolver) cookieToken(cookieHeader string) (string, error) {
	cookies, err := http.ParseCookie(cookieHeader)
	if err != nil {
		return "", fmt.Errorf("parse cookie header: %w", err)
	}
	for _, c := range cookies {
		if c.Name == r.cookieName && c.Value != "" {
			return c.Value, nil
		}
	}
	return "", fmt.Errorf("cookie %q not present", r.cookieName)
}

// verify checks the token signature and returns the session id claim.
func (r *Resolver) verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil {
		return "", err
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return "", jwt.ErrSignatureInvalid
	}
	if c.SessionID == "" {
		return "", errors.New("token carries no session id")
	}
	return c.SessionID, nil
}
