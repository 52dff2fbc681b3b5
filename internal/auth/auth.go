package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/joao-fontenele/botmarket/internal/httpx"
)

const RoleAdmin = "admin"

// Identity is the authenticated caller, taken from bearer token claims.
type Identity struct {
	UserID           string
	Username         string
	TelegramUsername string
	TelegramChatID   int64
	Role             string
}

func (i Identity) Admin() bool { return i.Role == RoleAdmin }

// Handle is the name the caller goes by on Telegram, or the best fallback.
func (i Identity) Handle() string {
	switch {
	case i.TelegramUsername != "":
		return i.TelegramUsername
	case i.Username != "":
		return i.Username
	}
	return i.UserID
}

type claims struct {
	jwt.RegisteredClaims
	Username         string `json:"username,omitempty"`
	TelegramUsername string `json:"tg_username,omitempty"`
	TelegramChatID   int64  `json:"tg_chat_id,omitempty"`
	Role             string `json:"role,omitempty"`
}

type contextKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

type Authenticator struct {
	secret []byte
	logger *slog.Logger
}

func NewAuthenticator(secret string, logger *slog.Logger) *Authenticator {
	return &Authenticator{secret: []byte(secret), logger: logger}
}

// Issue signs an HS256 token for id valid for ttl.
func (a *Authenticator) Issue(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username:         id.Username,
		TelegramUsername: id.TelegramUsername,
		TelegramChatID:   id.TelegramChatID,
		Role:             id.Role,
	})
	return token.SignedString(a.secret)
}

func (a *Authenticator) Parse(tokenString string) (Identity, error) {
	var c claims
	_, err := jwt.ParseWithClaims(tokenString, &c, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}
	if c.Subject == "" {
		return Identity{}, errors.New("token has no subject")
	}

	return Identity{
		UserID:           c.Subject,
		Username:         c.Username,
		TelegramUsername: c.TelegramUsername,
		TelegramChatID:   c.TelegramChatID,
		Role:             c.Role,
	}, nil
}

// Require rejects requests without a valid bearer token.
func (a *Authenticator) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			httpx.WriteError(w, a.logger, http.StatusUnauthorized, "missing bearer token")
			return
		}

		id, err := a.Parse(tokenString)
		if err != nil {
			a.logger.Info("rejected bearer token", "error", err, "path", r.URL.Path)
			httpx.WriteError(w, a.logger, http.StatusUnauthorized, "invalid bearer token")
			return
		}

		next(w, r.WithContext(WithIdentity(r.Context(), id)))
	}
}

// RequireAdmin is Require plus the admin role.
func (a *Authenticator) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return a.Require(func(w http.ResponseWriter, r *http.Request) {
		id, _ := FromContext(r.Context())
		if !id.Admin() {
			httpx.WriteError(w, a.logger, http.StatusForbidden, "admin role required")
			return
		}
		next(w, r)
	})
}
