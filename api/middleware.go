package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shaj13/go-guardian/auth"
	"github.com/shaj13/go-guardian/auth/strategies/bearer"
	"github.com/shaj13/go-guardian/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/linesmerrill/adr-report-api/config"
	"github.com/linesmerrill/adr-report-api/databases"
	"github.com/linesmerrill/adr-report-api/models"
)

var (
	errInactiveSession = errors.New("session expired or revoked")
	errBadToken        = errors.New("invalid token")
)

// GateConfig holds what the auth gate needs
type GateConfig struct {
	Secret         []byte
	TTL            time.Duration
	PassphraseHash string
	Now            func() time.Time
	// OnLogout runs after a session is revoked
	OnLogout func(sessionID string)
}

// Gate issues and checks bearer tokens. Tokens are HS256 JWTs naming a
// session in the store; verified tokens are cached by go-guardian.
type Gate struct {
	sessions      databases.SessionDatabase
	cfg           GateConfig
	authenticator auth.Authenticator
	strategy      auth.Strategy
}

// NewGate sets up the go-guardian authenticator with the cached bearer strategy
func NewGate(ctx context.Context, sessions databases.SessionDatabase, cfg GateConfig) *Gate {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	g := &Gate{sessions: sessions, cfg: cfg}

	cache := store.NewFIFO(ctx, cfg.TTL)
	g.strategy = bearer.New(g.verifyToken, cache)
	g.authenticator = auth.New()
	g.authenticator.EnableStrategy(bearer.CachedStrategyKey, g.strategy)
	return g
}

// SessionInfo is the authenticated caller attached to a request context
type SessionInfo struct {
	SessionID string
	Username  string
	Token     string
}

type sessionContextKey struct{}

// WithSession stores the caller in ctx
func WithSession(ctx context.Context, s SessionInfo) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// SessionFromContext returns the caller stored by the middleware
func SessionFromContext(ctx context.Context) (SessionInfo, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(SessionInfo)
	return s, ok
}

// Middleware rejects requests without a valid bearer token
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		user, err := g.authenticator.Authenticate(r)
		if err != nil {
			zap.S().Errorw("unauthorized",
				"url", r.URL, "error", err)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "unauthorized"}`))
			return
		}
		zap.S().Debugf("User %s Authenticated", user.UserName())
		ctx := WithSession(r.Context(), SessionInfo{
			SessionID: user.ID(),
			Username:  user.UserName(),
			Token:     bearerToken(r),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// verifyToken runs on a cache miss, e.g. after a restart
func (g *Gate) verifyToken(ctx context.Context, r *http.Request, token string) (auth.Info, error) {
	parsed, err := jwt.Parse(token, func(*jwt.Token) (interface{}, error) {
		return g.cfg.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(g.cfg.Now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadToken, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errBadToken
	}
	username, _ := claims.GetSubject()
	sid, _ := claims["sid"].(string)
	if username == "" || sid == "" {
		return nil, errBadToken
	}

	ctx, cancel := WithStoreTimeout(ctx)
	defer cancel()
	session, err := g.sessions.FindByID(ctx, sid)
	if err != nil {
		return nil, err
	}
	if !session.Active(g.cfg.Now()) || session.Username != username {
		return nil, errInactiveSession
	}
	return auth.NewDefaultUser(username, sid, nil, nil), nil
}

// Login creates a session and returns its bearer token
func (g *Gate) Login(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode login request", http.StatusBadRequest, w, err)
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		config.ErrorStatus("username is required", http.StatusBadRequest, w, errors.New("empty username"))
		return
	}
	if g.cfg.PassphraseHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(g.cfg.PassphraseHash), []byte(req.Passphrase)); err != nil {
			config.ErrorStatus("invalid credentials", http.StatusUnauthorized, w, err)
			return
		}
	}

	now := g.cfg.Now().UTC()
	session := models.Session{
		ID:        uuid.New().String(),
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(g.cfg.TTL),
	}
	ctx, cancel := WithStoreTimeout(r.Context())
	defer cancel()
	if err := g.sessions.Create(ctx, session); err != nil {
		config.ErrorStatus("failed to create session", http.StatusInternalServerError, w, err)
		return
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": username,
		"sid": session.ID,
		"iat": now.Unix(),
		"exp": session.ExpiresAt.Unix(),
	}).SignedString(g.cfg.Secret)
	if err != nil {
		config.ErrorStatus("failed to sign token", http.StatusInternalServerError, w, err)
		return
	}

	if err := auth.Append(g.strategy, token, auth.NewDefaultUser(username, session.ID, nil, nil), r); err != nil {
		zap.S().Warnw("failed to cache token", "error", err)
	}

	zap.S().Infow("user logged in", "user", username, "sessionId", session.ID)
	json.NewEncoder(w).Encode(models.LoginResponse{
		Token:       token,
		ExpiresAt:   session.ExpiresAt,
		CurrentUser: username,
	})
}

// EndSession revokes the token and the stored session. r may be nil when
// the session ends outside a request.
func (g *Gate) EndSession(ctx context.Context, s SessionInfo, r *http.Request) error {
	if s.Token != "" {
		if r == nil {
			r, _ = http.NewRequestWithContext(ctx, http.MethodDelete, "/", nil)
		}
		if err := auth.Revoke(g.strategy, s.Token, r); err != nil {
			zap.S().Warnw("failed to revoke cached token", "error", err)
		}
	}
	ctx, cancel := WithStoreTimeout(ctx)
	defer cancel()
	if err := g.sessions.Revoke(ctx, s.SessionID, g.cfg.Now().UTC()); err != nil && !errors.Is(err, databases.ErrSessionNotFound) {
		return err
	}
	if g.cfg.OnLogout != nil {
		g.cfg.OnLogout(s.SessionID)
	}
	zap.S().Infow("user logged out", "user", s.Username, "sessionId", s.SessionID)
	return nil
}

// QueryToken lets clients that cannot set headers, such as browser
// websockets, pass the bearer token as ?access_token=
func QueryToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			if token := r.URL.Query().Get("access_token"); token != "" {
				r.Header.Set("Authorization", "Bearer "+token)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
