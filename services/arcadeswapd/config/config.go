package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"arcadeswap/observability/logging"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for arcadeswapd.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	StatePath     string          `yaml:"state"`
	AuditPath     string          `yaml:"audit"`
	Engine        EngineConfig    `yaml:"engine"`
	Admin         AdminConfig     `yaml:"admin"`
	Sessions      SessionConfig   `yaml:"sessions"`
	Oracle        OracleConfig    `yaml:"oracle"`
	Sources       []Source        `yaml:"sources"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	Genesis       GenesisConfig   `yaml:"genesis"`
	Logging       LoggingConfig   `yaml:"logging"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
}

// EngineConfig identifies the deployment and its privileged identities.
type EngineConfig struct {
	ChainID        uint64 `yaml:"chain_id"`
	Address        string `yaml:"address"`
	FactoryAddress string `yaml:"factory_address"`
	ReserveAsset   string `yaml:"reserve_asset"`
	Operator       string `yaml:"operator"`
	BackendSigner  string `yaml:"backend_signer"`
}

// AdminConfig secures the operator endpoints. Every credential acts as a
// configured account; BearerAccount defaults to engine.operator.
type AdminConfig struct {
	BearerToken   string          `yaml:"bearer_token"`
	BearerAccount string          `yaml:"bearer_account"`
	TLS           AdminTLSConfig  `yaml:"tls"`
	MTLS          AdminMTLSConfig `yaml:"mtls"`
}

// AdminMTLSConfig enables client certificate authentication. Subjects maps
// certificate common names to accounts.
type AdminMTLSConfig struct {
	Enabled      bool              `yaml:"enabled"`
	ClientCAPath string            `yaml:"client_ca"`
	Subjects     map[string]string `yaml:"subjects"`
}

// MinSessionSecretLength matches the server's minimum HMAC key size.
const MinSessionSecretLength = 32

// SessionConfig verifies the HS256 session tokens players present on swap
// routes. HMACSecretEnv names an environment variable read when HMACSecret is
// empty.
type SessionConfig struct {
	HMACSecret    string   `yaml:"hmac_secret"`
	HMACSecretEnv string   `yaml:"hmac_secret_env"`
	Issuer        string   `yaml:"issuer"`
	Audience      string   `yaml:"audience"`
	Leeway        Duration `yaml:"leeway"`
}

// AdminTLSConfig configures the listener certificate.
type AdminTLSConfig struct {
	Disable  bool   `yaml:"disable"`
	CertPath string `yaml:"cert"`
	KeyPath  string `yaml:"key"`
}

// OracleConfig tunes the aggregation loop.
type OracleConfig struct {
	Interval Duration `yaml:"interval"`
	MaxAge   Duration `yaml:"max_age"`
	MinFeeds int      `yaml:"min_feeds"`
}

// Source describes an upstream price feed.
type Source struct {
	Name     string            `yaml:"name"`
	Type     string            `yaml:"type"`
	Endpoint string            `yaml:"endpoint"`
	Quote    string            `yaml:"quote"`
	Assets   map[string]string `yaml:"assets"`
	Prices   map[string]string `yaml:"prices"`
}

// RateLimitConfig bounds per-client request rates.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// GenesisConfig seeds reserve balances on first boot.
type GenesisConfig struct {
	Allocations map[string]string `yaml:"allocations"`
}

// LoggingConfig selects the level and optional rotated file.
type LoggingConfig struct {
	Level string              `yaml:"level"`
	File  logging.FileOptions `yaml:"file"`
}

// TelemetryConfig toggles OTLP export.
type TelemetryConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	Traces      bool    `yaml:"traces"`
	Metrics     bool    `yaml:"metrics"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Option adjusts how configuration is loaded.
type Option func(*loadOptions)

type loadOptions struct {
	allowInsecureBearerWithoutTLS bool
	getenv                        func(string) string
}

// WithAllowInsecureBearerWithoutTLS permits a bearer token on a plaintext
// listener. Development only.
func WithAllowInsecureBearerWithoutTLS() Option {
	return func(o *loadOptions) { o.allowInsecureBearerWithoutTLS = true }
}

// WithEnv overrides the environment lookup used for secrets.
func WithEnv(getenv func(string) string) Option {
	return func(o *loadOptions) { o.getenv = getenv }
}

// Load reads configuration from the supplied path.
func Load(path string, opts ...Option) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	cfg := Config{}
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return finalise(cfg, opts...)
}

// Parse decodes configuration from memory.
func Parse(data []byte, opts ...Option) (Config, error) {
	cfg := Config{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return finalise(cfg, opts...)
}

func finalise(cfg Config, opts ...Option) (Config, error) {
	options := loadOptions{getenv: os.Getenv}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	applyDefaults(&cfg)
	if err := cfg.Admin.normalise(options.allowInsecureBearerWithoutTLS); err != nil {
		return cfg, err
	}
	if err := cfg.Sessions.normalise(options.getenv); err != nil {
		return cfg, err
	}
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7081"
	}
	if cfg.StatePath == "" {
		cfg.StatePath = "/var/data/arcadeswapd/state"
	}
	if cfg.AuditPath == "" {
		cfg.AuditPath = "/var/data/arcadeswapd/audit.sqlite"
	}
	if cfg.Engine.ReserveAsset == "" {
		cfg.Engine.ReserveAsset = "ZNHB"
	}
	cfg.Engine.ReserveAsset = strings.ToUpper(strings.TrimSpace(cfg.Engine.ReserveAsset))
	if cfg.Oracle.Interval.Duration == 0 {
		cfg.Oracle.Interval.Duration = 30 * time.Second
	}
	if cfg.Oracle.MaxAge.Duration == 0 {
		cfg.Oracle.MaxAge.Duration = 2 * time.Minute
	}
	if cfg.Oracle.MinFeeds <= 0 {
		cfg.Oracle.MinFeeds = 1
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 120
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 20
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if strings.TrimSpace(cfg.Admin.BearerAccount) == "" {
		cfg.Admin.BearerAccount = cfg.Engine.Operator
	}
	if cfg.Sessions.Audience == "" {
		cfg.Sessions.Audience = "arcadeswapd"
	}
	if cfg.Sessions.Leeway.Duration == 0 {
		cfg.Sessions.Leeway.Duration = 30 * time.Second
	}
}

func (a *AdminConfig) normalise(allowInsecure bool) error {
	a.BearerToken = strings.TrimSpace(a.BearerToken)
	a.TLS.CertPath = strings.TrimSpace(a.TLS.CertPath)
	a.TLS.KeyPath = strings.TrimSpace(a.TLS.KeyPath)
	a.MTLS.ClientCAPath = strings.TrimSpace(a.MTLS.ClientCAPath)
	if a.BearerToken == "" && !a.MTLS.Enabled {
		return fmt.Errorf("admin bearer_token or mtls must be configured")
	}
	if a.MTLS.Enabled {
		if a.TLS.Disable {
			return fmt.Errorf("admin mtls requires TLS to be enabled")
		}
		if a.MTLS.ClientCAPath == "" {
			return fmt.Errorf("admin mtls requires client_ca to be configured")
		}
		if len(a.MTLS.Subjects) == 0 {
			return fmt.Errorf("admin mtls requires subjects to be configured")
		}
	}
	if a.TLS.Disable {
		if !allowInsecure {
			return fmt.Errorf("admin bearer_token requires TLS to be enabled")
		}
		return nil
	}
	if a.TLS.CertPath == "" || a.TLS.KeyPath == "" {
		return fmt.Errorf("admin tls cert and key must be configured")
	}
	return nil
}

func (s *SessionConfig) normalise(getenv func(string) string) error {
	s.HMACSecret = strings.TrimSpace(s.HMACSecret)
	s.HMACSecretEnv = strings.TrimSpace(s.HMACSecretEnv)
	s.Issuer = strings.TrimSpace(s.Issuer)
	s.Audience = strings.TrimSpace(s.Audience)
	if s.HMACSecret == "" && s.HMACSecretEnv != "" && getenv != nil {
		s.HMACSecret = strings.TrimSpace(getenv(s.HMACSecretEnv))
	}
	if len(s.HMACSecret) < MinSessionSecretLength {
		return fmt.Errorf("sessions.hmac_secret must be at least %d bytes", MinSessionSecretLength)
	}
	if s.Issuer == "" {
		return fmt.Errorf("sessions.issuer must be set")
	}
	if s.Leeway.Duration < 0 {
		return fmt.Errorf("sessions.leeway must not be negative")
	}
	return nil
}

func validate(cfg Config) error {
	for field, value := range map[string]string{
		"engine.address":         cfg.Engine.Address,
		"engine.factory_address": cfg.Engine.FactoryAddress,
		"engine.operator":        cfg.Engine.Operator,
		"engine.backend_signer":  cfg.Engine.BackendSigner,
		"admin.bearer_account":   cfg.Admin.BearerAccount,
	} {
		if !common.IsHexAddress(strings.TrimSpace(value)) {
			return fmt.Errorf("%s must be a hex address", field)
		}
	}
	for subject, account := range cfg.Admin.MTLS.Subjects {
		if strings.TrimSpace(subject) == "" {
			return fmt.Errorf("admin.mtls.subjects contains an empty subject")
		}
		if !common.IsHexAddress(strings.TrimSpace(account)) {
			return fmt.Errorf("admin.mtls.subjects[%s] must be a hex address", subject)
		}
	}
	if cfg.Engine.ChainID == 0 {
		return fmt.Errorf("engine.chain_id must be set")
	}
	if len(cfg.Sources) == 0 {
		return fmt.Errorf("at least one oracle source must be configured")
	}
	if cfg.Oracle.MinFeeds > len(cfg.Sources) {
		return fmt.Errorf("oracle.min_feeds exceeds configured sources")
	}
	for account := range cfg.Genesis.Allocations {
		if !common.IsHexAddress(strings.TrimSpace(account)) {
			return fmt.Errorf("genesis allocation %q is not a hex address", account)
		}
	}
	return nil
}

// TokenAccounts maps the admin bearer token to the account it acts as.
func (a AdminConfig) TokenAccounts() map[string]common.Address {
	if a.BearerToken == "" {
		return nil
	}
	return map[string]common.Address{a.BearerToken: Address(a.BearerAccount)}
}

// SubjectAccounts maps certificate common names to accounts.
func (a AdminConfig) SubjectAccounts() map[string]common.Address {
	if !a.MTLS.Enabled {
		return nil
	}
	out := make(map[string]common.Address, len(a.MTLS.Subjects))
	for subject, account := range a.MTLS.Subjects {
		out[strings.TrimSpace(subject)] = Address(account)
	}
	return out
}

// Address parses one of the validated address fields.
func Address(raw string) common.Address {
	return common.HexToAddress(strings.TrimSpace(raw))
}
