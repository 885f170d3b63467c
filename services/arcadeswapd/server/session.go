package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
)

// MinSessionSecretLength is the shortest HMAC secret accepted for player
// sessions.
const MinSessionSecretLength = 32

// SessionConfig controls verification of player session tokens. Tokens are
// HS256 JWTs whose sub claim is the player's account address.
type SessionConfig struct {
	HMACSecret string
	Issuer     string
	Audience   string
	Leeway     time.Duration
}

// SessionVerifier authenticates swap callers from their session token.
type SessionVerifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewSessionVerifier validates cfg.
func NewSessionVerifier(cfg SessionConfig, logger *slog.Logger) (*SessionVerifier, error) {
	secret := strings.TrimSpace(cfg.HMACSecret)
	if len(secret) < MinSessionSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", MinSessionSecretLength)
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, errors.New("session issuer required")
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		return nil, errors.New("session audience required")
	}
	if cfg.Leeway < 0 {
		return nil, errors.New("session leeway must not be negative")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionVerifier{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		leeway:   cfg.Leeway,
		now:      time.Now,
		logger:   logger,
	}, nil
}

// Verify checks the token signature and registered claims and returns the
// account named by sub.
func (v *SessionVerifier) Verify(token string) (common.Address, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return common.Address{}, err
	}
	if !parsed.Valid {
		return common.Address{}, errors.New("token invalid")
	}
	subject, err := claims.GetSubject()
	if err != nil {
		return common.Address{}, err
	}
	subject = strings.TrimSpace(subject)
	if !common.IsHexAddress(subject) {
		return common.Address{}, fmt.Errorf("subject %q is not an account", subject)
	}
	account := common.HexToAddress(subject)
	if account == (common.Address{}) {
		return common.Address{}, errors.New("subject is the zero account")
	}
	return account, nil
}

// Middleware attaches the session principal or answers 401.
func (v *SessionVerifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := parseBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "authentication_required", "session token required")
			return
		}
		account, err := v.Verify(token)
		if err != nil {
			v.logger.Debug("session rejected", slog.String("route", r.URL.Path), slog.Any("error", err))
			writeError(w, http.StatusUnauthorized, "authentication_required", "invalid session token")
			return
		}
		principal := &Principal{Method: MethodSession, Account: account, Subject: account.Hex()}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
	})
}
