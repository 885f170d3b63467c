package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"arcadeswap/core/events"
	"arcadeswap/core/state"
	"arcadeswap/native/arcade"
	"arcadeswap/native/token"
	"arcadeswap/observability"
	"arcadeswap/observability/logging"
	telemetry "arcadeswap/observability/otel"
	kvstore "arcadeswap/storage"
	"arcadeswap/services/arcadeswapd/adapters"
	"arcadeswap/services/arcadeswapd/config"
	"arcadeswap/services/arcadeswapd/oracle"
	"arcadeswap/services/arcadeswapd/server"
	"arcadeswap/services/arcadeswapd/storage"
)

func main() {
	var (
		cfgPath                       string
		allowInsecureBearerWithoutTLS bool
	)
	flag.StringVar(&cfgPath, "config", "services/arcadeswapd/config.yaml", "path to arcadeswapd configuration file")
	flag.BoolVar(&allowInsecureBearerWithoutTLS, "allow-insecure-bearer-without-tls", false, "allow admin bearer authentication without TLS (dev only)")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("NHB_ENV"))
	logger := logging.Setup("arcadeswapd", env)

	var loadOptions []config.Option
	if allowInsecureBearerWithoutTLS {
		if env != "dev" {
			fatal(logger, "--allow-insecure-bearer-without-tls requires NHB_ENV=dev", nil)
		}
		logger.Warn("allowing admin bearer token without TLS (development override)")
		loadOptions = append(loadOptions, config.WithAllowInsecureBearerWithoutTLS())
	}
	cfg, err := config.Load(cfgPath, loadOptions...)
	if err != nil {
		fatal(logger, "load config", err)
	}
	logger = logging.SetupWithOptions("arcadeswapd", env, logging.Options{Level: cfg.Logging.Level, File: cfg.Logging.File})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetryConfig(env, cfg.Telemetry))
	if err != nil {
		fatal(logger, "init telemetry", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	db, err := kvstore.NewLevelDB(cfg.StatePath)
	if err != nil {
		fatal(logger, "open state", err)
	}
	defer db.Close()
	st := state.NewManager(db)

	dsn, err := storage.FileDSN(cfg.AuditPath)
	if err != nil {
		fatal(logger, "resolve audit DSN", err)
	}
	audit, err := storage.Open(dsn)
	if err != nil {
		fatal(logger, "open audit journal", err)
	}
	defer audit.Close()
	audit.SetLogger(logger)

	registry := adapters.NewRegistry()
	sources := make([]oracle.Source, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		built, err := registry.Build(adapters.Definition{
			Name:     src.Name,
			Type:     src.Type,
			Endpoint: src.Endpoint,
			Quote:    src.Quote,
			Assets:   src.Assets,
			Prices:   src.Prices,
		})
		if err != nil {
			fatal(logger, "build oracle source "+src.Name, err)
		}
		sources = append(sources, built)
	}
	mgr, err := oracle.New(sources, []string{cfg.Engine.ReserveAsset},
		cfg.Oracle.Interval.Duration, cfg.Oracle.MaxAge.Duration, cfg.Oracle.MinFeeds,
		oracle.WithLogger(logger), oracle.WithRecorder(audit), oracle.WithObserver(observability.Swap()))
	if err != nil {
		fatal(logger, "oracle manager", err)
	}

	engineAddr := config.Address(cfg.Engine.Address)
	reserve := token.NewReserve(st, cfg.Engine.ReserveAsset)
	engine, err := arcade.NewEngine(arcade.Config{
		Address:      engineAddr,
		ReserveAsset: cfg.Engine.ReserveAsset,
		ChainID:      cfg.Engine.ChainID,
	}, st, mgr, arcade.TokenFactory(token.NewFactory(st, config.Address(cfg.Engine.FactoryAddress))), reserve)
	if err != nil {
		fatal(logger, "engine", err)
	}
	eventBuffer := events.NewBuffer(events.Fanout{observability.Events(), audit})
	engine.SetEmitter(eventBuffer)

	if err := bootstrap(engine, reserve, st, eventBuffer, cfg, logger); err != nil {
		fatal(logger, "bootstrap", err)
	}

	authenticator, err := server.NewAuthenticator(server.AuthConfig{
		Tokens:    cfg.Admin.TokenAccounts(),
		Subjects:  cfg.Admin.SubjectAccounts(),
		AllowMTLS: cfg.Admin.MTLS.Enabled,
	})
	if err != nil {
		fatal(logger, "configure admin auth", err)
	}
	logger.Info("admin auth configured",
		logging.MaskField("bearerToken", cfg.Admin.BearerToken),
		slog.String("account", config.Address(cfg.Admin.BearerAccount).Hex()),
		slog.Int("certificateSubjects", len(cfg.Admin.MTLS.Subjects)),
		slog.Bool("mtls", cfg.Admin.MTLS.Enabled),
		slog.Bool("tls", !cfg.Admin.TLS.Disable))
	sessions, err := server.NewSessionVerifier(server.SessionConfig{
		HMACSecret: cfg.Sessions.HMACSecret,
		Issuer:     cfg.Sessions.Issuer,
		Audience:   cfg.Sessions.Audience,
		Leeway:     cfg.Sessions.Leeway.Duration,
	}, logger)
	if err != nil {
		fatal(logger, "configure sessions", err)
	}
	tlsConfig, err := buildTLSConfig(cfg.Admin)
	if err != nil {
		fatal(logger, "configure TLS", err)
	}
	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		TLS: server.TLSConfig{
			Disabled: cfg.Admin.TLS.Disable,
			CertFile: cfg.Admin.TLS.CertPath,
			KeyFile:  cfg.Admin.TLS.KeyPath,
			Config:   tlsConfig,
		},
	}, server.Deps{
		Engine:   engine,
		State:    st,
		Reserve:  reserve,
		Oracle:   mgr,
		Audit:    audit,
		Auth:     authenticator,
		Sessions: sessions,
		Events:   eventBuffer,
		Limiter: server.NewRateLimiter(server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		}, logger),
		Logger: logger,
	})
	if err != nil {
		fatal(logger, "server", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := mgr.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("oracle manager exited", slog.Any("error", err))
			stop()
		}
	}()

	if err := srv.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("http server error", slog.Any("error", err))
		os.Exit(1)
	}
}

// bootstrap installs the admin record and genesis reserve balances on first
// boot. Later boots leave runtime changes untouched.
func bootstrap(engine *arcade.Engine, reserve *token.Reserve, st *state.Manager, pending *events.Buffer, cfg config.Config, logger *slog.Logger) error {
	current, err := engine.AdminConfig()
	if err != nil {
		return err
	}
	if current.Operator != (common.Address{}) {
		logger.Info("engine state loaded", slog.String("operator", current.Operator.Hex()), slog.String("backendSigner", current.BackendSigner.Hex()))
		return nil
	}
	if _, err := engine.Bootstrap(config.Address(cfg.Engine.Operator), config.Address(cfg.Engine.BackendSigner)); err != nil {
		st.Discard()
		pending.Drop()
		return err
	}
	accounts := make([]string, 0, len(cfg.Genesis.Allocations))
	for account := range cfg.Genesis.Allocations {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	for _, account := range accounts {
		raw := cfg.Genesis.Allocations[account]
		amount, err := arcade.ParseAmount(raw)
		if err != nil {
			st.Discard()
			pending.Drop()
			return fmt.Errorf("genesis allocation %s: %w", account, err)
		}
		if err := reserve.Issue(config.Address(account), amount); err != nil {
			st.Discard()
			pending.Drop()
			return fmt.Errorf("genesis allocation %s: %w", account, err)
		}
	}
	if err := st.Commit(); err != nil {
		pending.Drop()
		return fmt.Errorf("commit genesis: %w", err)
	}
	pending.Flush()
	logger.Info("engine bootstrapped", slog.String("operator", cfg.Engine.Operator), slog.Int("allocations", len(accounts)), slog.String("supply", totalSupply(reserve)))
	return nil
}

func totalSupply(reserve *token.Reserve) string {
	supply, err := reserve.TotalSupply()
	if err != nil || supply == nil {
		return new(uint256.Int).Dec()
	}
	return supply.Dec()
}

func buildTLSConfig(admin config.AdminConfig) (*tls.Config, error) {
	if admin.TLS.Disable {
		return nil, nil
	}
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if admin.MTLS.Enabled {
		caData, err := os.ReadFile(admin.MTLS.ClientCAPath)
		if err != nil {
			return nil, fmt.Errorf("load admin client CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caData) {
			return nil, fmt.Errorf("parse admin client CA: %s", admin.MTLS.ClientCAPath)
		}
		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	}
	return tlsConfig, nil
}

func telemetryConfig(env string, cfg config.TelemetryConfig) telemetry.Config {
	return telemetry.Config{
		ServiceName: "arcadeswapd",
		Environment: env,
		Endpoint:    strings.TrimSpace(cfg.Endpoint),
		Insecure:    cfg.Insecure,
		Metrics:     cfg.Metrics,
		Traces:      cfg.Traces,
		SampleRatio: cfg.SampleRatio,
	}.ApplyEnv(os.Getenv)
}

func fatal(logger *slog.Logger, msg string, err error) {
	if err != nil {
		logger.Error(msg, slog.Any("error", err))
	} else {
		logger.Error(msg)
	}
	os.Exit(1)
}
