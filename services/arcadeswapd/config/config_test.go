package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleConfig = `
listen: ":9000"
state: /tmp/arcade/state
engine:
  chain_id: 31337
  address: "0x00000000000000000000000000000000000a4c01"
  factory_address: "0x00000000000000000000000000000000000fac70"
  operator: "0x90F79bf6EB2c4f870365E785982E1f101E93b906"
  backend_signer: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
  reserve_asset: znhb
admin:
  bearer_token: " secret "
  tls:
    disable: true
sessions:
  hmac_secret: "arcade-session-secret-0123456789abcdef"
  issuer: arcade-auth
oracle:
  interval: 10s
sources:
  - name: fixed
    type: static
    prices:
      ZNHB: "0.05"
genesis:
  allocations:
    "0x70997970C51812dc3A010C7d01b50e0d17dc79C8": "1000000"
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig), WithAllowInsecureBearerWithoutTLS())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.ListenAddress != ":9000" || cfg.Engine.ReserveAsset != "ZNHB" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Oracle.Interval.Duration != 10*time.Second || cfg.Oracle.MaxAge.Duration != 2*time.Minute {
		t.Fatalf("unexpected oracle timings: %+v", cfg.Oracle)
	}
	if cfg.Admin.BearerToken != "secret" {
		t.Fatalf("bearer token not trimmed: %q", cfg.Admin.BearerToken)
	}
	if cfg.AuditPath == "" || cfg.RateLimit.Burst != 20 || cfg.Logging.Level != "info" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if Address(cfg.Engine.Operator).Hex() != "0x90F79bf6EB2c4f870365E785982E1f101E93b906" {
		t.Fatalf("unexpected operator %s", cfg.Engine.Operator)
	}
	tokens := cfg.Admin.TokenAccounts()
	if len(tokens) != 1 || tokens["secret"] != Address(cfg.Engine.Operator) {
		t.Fatalf("bearer token should act as the operator: %v", tokens)
	}
	if cfg.Sessions.Audience != "arcadeswapd" || cfg.Sessions.Leeway.Duration != 30*time.Second {
		t.Fatalf("session defaults not applied: %+v", cfg.Sessions)
	}
}

func TestSessionConfig(t *testing.T) {
	env := map[string]string{"ARCADE_SESSION_SECRET": " arcade-session-secret-from-the-environment "}
	getenv := func(k string) string { return env[k] }

	cfg := SessionConfig{HMACSecretEnv: "ARCADE_SESSION_SECRET", Issuer: " arcade-auth "}
	if err := cfg.normalise(getenv); err != nil {
		t.Fatalf("normalise: %v", err)
	}
	if cfg.HMACSecret != "arcade-session-secret-from-the-environment" || cfg.Issuer != "arcade-auth" {
		t.Fatalf("unexpected session config: %+v", cfg)
	}

	cfg = SessionConfig{HMACSecret: "too-short", Issuer: "arcade-auth"}
	if err := cfg.normalise(getenv); err == nil {
		t.Fatalf("expected short secret error")
	}
	cfg = SessionConfig{HMACSecret: "arcade-session-secret-0123456789abcdef"}
	if err := cfg.normalise(getenv); err == nil {
		t.Fatalf("expected missing issuer error")
	}

	withoutSessions := strings.Replace(sampleConfig, `hmac_secret: "arcade-session-secret-0123456789abcdef"`, `hmac_secret_env: ARCADE_SESSION_SECRET`, 1)
	if _, err := Parse([]byte(withoutSessions), WithAllowInsecureBearerWithoutTLS(), WithEnv(func(string) string { return "" })); err == nil {
		t.Fatalf("expected error when the secret variable is unset")
	}
	if _, err := Parse([]byte(withoutSessions), WithAllowInsecureBearerWithoutTLS(), WithEnv(getenv)); err != nil {
		t.Fatalf("parse with env secret: %v", err)
	}
}

func TestAdminAccounts(t *testing.T) {
	deputy := "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
	data := strings.Replace(sampleConfig, `  bearer_token: " secret "`, `  bearer_token: " secret "
  bearer_account: "`+deputy+`"`, 1)
	cfg, err := Parse([]byte(data), WithAllowInsecureBearerWithoutTLS())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := cfg.Admin.TokenAccounts()["secret"]; got.Hex() != deputy {
		t.Fatalf("bearer token acts as %s, want %s", got.Hex(), deputy)
	}
	if cfg.Admin.SubjectAccounts() != nil {
		t.Fatalf("subjects must be ignored without mtls")
	}

	cfg.Admin.BearerAccount = "deputy"
	if err := validate(cfg); err == nil {
		t.Fatalf("expected bearer_account validation error")
	}
	cfg.Admin.BearerAccount = deputy
	cfg.Admin.MTLS = AdminMTLSConfig{Enabled: true, Subjects: map[string]string{"ops.arcade": "nope"}}
	if err := validate(cfg); err == nil {
		t.Fatalf("expected subject account validation error")
	}
	cfg.Admin.MTLS.Subjects["ops.arcade"] = deputy
	if err := validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got := cfg.Admin.SubjectAccounts()["ops.arcade"]; got.Hex() != deputy {
		t.Fatalf("subject maps to %s", got.Hex())
	}
}

func TestAdminConfigNormaliseRequiresTLSEnabledForBearer(t *testing.T) {
	cfg := AdminConfig{BearerToken: "secret", TLS: AdminTLSConfig{Disable: true}}
	err := cfg.normalise(false)
	if err == nil {
		t.Fatalf("expected error when bearer token is set without TLS")
	}
	if got, want := err.Error(), "admin bearer_token requires TLS to be enabled"; got != want {
		t.Fatalf("unexpected error: got %q, want %q", got, want)
	}
}

func TestAdminConfigNormaliseRequiresCertificate(t *testing.T) {
	cfg := AdminConfig{BearerToken: "secret", TLS: AdminTLSConfig{CertPath: "cert.pem"}}
	if err := cfg.normalise(false); err == nil {
		t.Fatalf("expected missing key error")
	}
	cfg.TLS.KeyPath = "key.pem"
	if err := cfg.normalise(false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsBadAddresses(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig), WithAllowInsecureBearerWithoutTLS())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg.Engine.Operator = "operator"
	if err := validate(cfg); err == nil {
		t.Fatalf("expected address validation error")
	}
	cfg.Engine.Operator = "0x90F79bf6EB2c4f870365E785982E1f101E93b906"
	cfg.Oracle.MinFeeds = 3
	if err := validate(cfg); err == nil {
		t.Fatalf("expected min feeds error")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arcadeswapd.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("plaintext bearer must be rejected without the override")
	}
	if _, err := Load(path, WithAllowInsecureBearerWithoutTLS()); err != nil {
		t.Fatalf("load: %v", err)
	}
}

func TestAdminConfigNormaliseMTLS(t *testing.T) {
	cfg := AdminConfig{MTLS: AdminMTLSConfig{Enabled: true}, TLS: AdminTLSConfig{CertPath: "cert.pem", KeyPath: "key.pem"}}
	if err := cfg.normalise(false); err == nil {
		t.Fatalf("expected client_ca error")
	}
	cfg.MTLS.ClientCAPath = "ca.pem"
	if err := cfg.normalise(false); err == nil {
		t.Fatalf("expected subjects error")
	}
	cfg.MTLS.Subjects = map[string]string{"ops.arcade": "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"}
	if err := cfg.normalise(false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg = AdminConfig{}
	if err := cfg.normalise(true); err == nil {
		t.Fatalf("expected missing mechanism error")
	}
}
