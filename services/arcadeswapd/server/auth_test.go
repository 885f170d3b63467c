package server

import (
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestParseBearerToken(t *testing.T) {
	cases := map[string]string{
		"":                 "",
		"Bearer":           "",
		"Basic abc":        "",
		"Bearer token":     "token",
		"bearer  token  ":  "token",
		"  BEARER token-2": "token-2",
	}
	for header, want := range cases {
		if got := parseBearerToken(header); got != want {
			t.Fatalf("parseBearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestNewAuthenticatorValidation(t *testing.T) {
	account := common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
	cases := map[string]AuthConfig{
		"no mechanism":       {},
		"blank token":        {Tokens: map[string]common.Address{"  ": account}},
		"token no account":   {Tokens: map[string]common.Address{"secret": {}}},
		"mtls no subjects":   {AllowMTLS: true},
		"subject no account": {AllowMTLS: true, Subjects: map[string]common.Address{"ops": {}}},
	}
	for name, cfg := range cases {
		if _, err := NewAuthenticator(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestAuthenticatorMiddleware(t *testing.T) {
	operator := common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
	deputy := common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	auth, err := NewAuthenticator(AuthConfig{
		Tokens:    map[string]common.Address{"secret": operator, "deputy-secret": deputy},
		Subjects:  map[string]common.Address{"ops.arcade": deputy},
		AllowMTLS: true,
	})
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	var got Principal
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			t.Fatalf("principal missing")
		}
		got = *principal
	}))
	serve := func(req *http.Request) int {
		got = Principal{}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := serve(httptest.NewRequest(http.MethodGet, "/", nil)); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer secret")
	if code := serve(req); code != http.StatusOK || got.Method != MethodBearer || got.Account != operator {
		t.Fatalf("bearer auth failed: %d %+v", code, got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer deputy-secret")
	if code := serve(req); code != http.StatusOK || got.Account != deputy {
		t.Fatalf("second token resolved to %s (%d)", got.Account.Hex(), code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer secre")
	if code := serve(req); code != http.StatusUnauthorized {
		t.Fatalf("token prefix accepted: %d", code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{VerifiedChains: [][]*x509.Certificate{{{Subject: pkix.Name{CommonName: "ops.arcade"}}}}}
	if code := serve(req); code != http.StatusOK || got.Method != MethodMTLS || got.Account != deputy || got.Subject != "ops.arcade" {
		t.Fatalf("mtls auth failed: %d %+v", code, got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{VerifiedChains: [][]*x509.Certificate{{{Subject: pkix.Name{CommonName: "intruder"}}}}}
	if code := serve(req); code != http.StatusUnauthorized {
		t.Fatalf("unknown certificate subject accepted: %d", code)
	}
}
