package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Authentication methods recorded on a Principal.
const (
	MethodBearer  = "bearer"
	MethodMTLS    = "mtls"
	MethodSession = "session"
)

// AuthConfig maps admin credentials to the operator accounts they act as.
type AuthConfig struct {
	// Tokens maps bearer tokens to accounts.
	Tokens map[string]common.Address
	// Subjects maps verified client certificate common names to accounts.
	Subjects  map[string]common.Address
	AllowMTLS bool
}

type tokenGrant struct {
	token   []byte
	account common.Address
}

// Authenticator resolves admin requests to an account before they reach
// handlers.
type Authenticator struct {
	tokens    []tokenGrant
	subjects  map[string]common.Address
	allowMTLS bool
}

// Principal is the authenticated account behind a request.
type Principal struct {
	Method  string
	Account common.Address
	// Subject is the certificate common name or session subject, if any.
	Subject string
}

type principalContextKey struct{}

func withPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// PrincipalFromContext returns the principal attached by an authentication
// middleware.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	principal, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || principal == nil {
		return nil, false
	}
	return principal, true
}

// NewAuthenticator validates cfg. Every credential must map to a non-zero
// account.
func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	auth := &Authenticator{allowMTLS: cfg.AllowMTLS, subjects: make(map[string]common.Address, len(cfg.Subjects))}
	for token, account := range cfg.Tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			return nil, fmt.Errorf("admin token must not be empty")
		}
		if account == (common.Address{}) {
			return nil, fmt.Errorf("admin token has no account")
		}
		auth.tokens = append(auth.tokens, tokenGrant{token: []byte(token), account: account})
	}
	for subject, account := range cfg.Subjects {
		subject = strings.TrimSpace(subject)
		if subject == "" || account == (common.Address{}) {
			return nil, fmt.Errorf("admin certificate subject %q needs an account", subject)
		}
		auth.subjects[subject] = account
	}
	if cfg.AllowMTLS && len(auth.subjects) == 0 {
		return nil, fmt.Errorf("mtls enabled without certificate subjects")
	}
	if len(auth.tokens) == 0 && !cfg.AllowMTLS {
		return nil, fmt.Errorf("at least one authentication mechanism must be configured")
	}
	return auth, nil
}

// Middleware rejects admin requests without a recognised credential.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := a.authenticate(r)
		if principal == nil {
			writeError(w, http.StatusUnauthorized, "authentication_required", "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
	})
}

func (a *Authenticator) authenticate(r *http.Request) *Principal {
	if principal := a.byBearer(r); principal != nil {
		return principal
	}
	if a.allowMTLS {
		return a.byCertificate(r)
	}
	return nil
}

// byBearer compares against every grant so the time taken does not depend on
// which token matched.
func (a *Authenticator) byBearer(r *http.Request) *Principal {
	presented := parseBearerToken(r.Header.Get("Authorization"))
	if presented == "" {
		return nil
	}
	var matched *Principal
	for _, grant := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(presented), grant.token) == 1 && matched == nil {
			matched = &Principal{Method: MethodBearer, Account: grant.account}
		}
	}
	return matched
}

func (a *Authenticator) byCertificate(r *http.Request) *Principal {
	if r.TLS == nil || len(r.TLS.VerifiedChains) == 0 || len(r.TLS.VerifiedChains[0]) == 0 {
		return nil
	}
	subject := r.TLS.VerifiedChains[0][0].Subject.CommonName
	account, ok := a.subjects[subject]
	if !ok {
		return nil
	}
	return &Principal{Method: MethodMTLS, Account: account, Subject: subject}
}

func parseBearerToken(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
