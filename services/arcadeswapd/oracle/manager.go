package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
)

var (
	// ErrNoPrice is returned when no aggregated price exists for an asset.
	ErrNoPrice = errors.New("oracle: no price available")
	// ErrStalePrice is returned when the latest aggregate exceeds the max age.
	ErrStalePrice = errors.New("oracle: price is stale")
)

var priceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Quote is a single upstream observation of an asset's USD price.
type Quote struct {
	Rate      *big.Rat
	Timestamp time.Time
}

// Source resolves a price quote for an asset.
type Source interface {
	Name() string
	Fetch(ctx context.Context, asset string) (Quote, error)
}

// Recorder persists aggregated snapshots.
type Recorder interface {
	RecordOracleSnapshot(ctx context.Context, asset, price string, feeders []string, proofID string, observed time.Time) error
}

// PriceObserver receives every accepted aggregate.
type PriceObserver interface {
	RecordOraclePrice(asset string, price *uint256.Int, age time.Duration)
}

type aggregate struct {
	price    *uint256.Int
	observed time.Time
	feeders  []string
}

// Snapshot reports the cached aggregate of an asset.
type Snapshot struct {
	Asset    string
	Price    *uint256.Int
	Observed time.Time
	Feeders  []string
}

// Manager polls the configured sources, takes the median of fresh quotes and
// serves the result to the engine as an 18-decimal fixed-point price.
type Manager struct {
	logger   *slog.Logger
	recorder Recorder
	observer PriceObserver
	sources  []Source
	assets   []string
	minFeeds int
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
	once     sync.Once

	mu     sync.RWMutex
	prices map[string]aggregate
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger installs a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithRecorder persists every aggregate.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		m.recorder = r
	}
}

// WithObserver reports every aggregate, typically to metrics.
func WithObserver(o PriceObserver) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// New constructs a manager instance.
func New(sources []Source, assets []string, interval, maxAge time.Duration, minFeeds int, opts ...Option) (*Manager, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("at least one source required")
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("at least one asset required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	if maxAge <= 0 {
		maxAge = time.Minute
	}
	if minFeeds <= 0 {
		minFeeds = 1
	}
	normalised := make([]string, 0, len(assets))
	for _, asset := range assets {
		if trimmed := normaliseAsset(asset); trimmed != "" {
			normalised = append(normalised, trimmed)
		}
	}
	mgr := &Manager{
		logger:   slog.Default(),
		sources:  append([]Source{}, sources...),
		assets:   normalised,
		interval: interval,
		maxAge:   maxAge,
		minFeeds: minFeeds,
		now:      time.Now,
		prices:   make(map[string]aggregate),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(mgr)
		}
	}
	if mgr.logger == nil {
		mgr.logger = slog.Default()
	}
	return mgr, nil
}

// Run blocks, periodically polling upstream feeds until the context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("manager not configured")
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.once.Do(func() {
		m.logger.Info("oracle manager started", slog.Int("sources", len(m.sources)), slog.Any("assets", m.assets))
	})
	for {
		if err := m.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Warn("oracle tick failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs a single aggregation cycle across all configured assets. An
// asset that fails keeps its previous aggregate, which ages out on its own.
func (m *Manager) Tick(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("manager not configured")
	}
	var errs []error
	for _, asset := range m.assets {
		if err := m.processAsset(ctx, asset); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) processAsset(ctx context.Context, asset string) error {
	now := m.now()
	quotes := make([]Quote, 0, len(m.sources))
	feeders := make([]string, 0, len(m.sources))
	var newest time.Time
	for _, src := range m.sources {
		if src == nil {
			continue
		}
		quote, err := src.Fetch(ctx, asset)
		if err != nil {
			m.logger.Warn("oracle source failed", slog.String("source", src.Name()), slog.String("asset", asset), slog.Any("error", err))
			continue
		}
		if quote.Rate == nil || quote.Rate.Sign() <= 0 {
			m.logger.Warn("oracle source returned invalid rate", slog.String("source", src.Name()))
			continue
		}
		if quote.Timestamp.After(now.Add(5 * time.Second)) {
			m.logger.Warn("oracle source produced future timestamp", slog.String("source", src.Name()))
			continue
		}
		if quote.Timestamp.Before(now.Add(-m.maxAge)) {
			m.logger.Warn("oracle source quote expired", slog.String("source", src.Name()))
			continue
		}
		if quote.Timestamp.After(newest) {
			newest = quote.Timestamp
		}
		feeders = append(feeders, src.Name())
		quotes = append(quotes, quote)
	}
	if len(quotes) < m.minFeeds {
		return fmt.Errorf("insufficient oracle feeds for %s: %d of %d", asset, len(quotes), m.minFeeds)
	}
	median := computeMedian(quotes)
	if median == nil || median.Sign() <= 0 {
		return fmt.Errorf("median computation failed for %s", asset)
	}
	price, err := toFixedPoint(median)
	if err != nil {
		return fmt.Errorf("%s: %w", asset, err)
	}
	m.mu.Lock()
	m.prices[asset] = aggregate{price: price, observed: newest, feeders: feeders}
	m.mu.Unlock()

	if m.observer != nil {
		m.observer.RecordOraclePrice(asset, price, now.Sub(newest))
	}
	if m.recorder != nil {
		proof := proofID(asset, feeders, newest)
		if err := m.recorder.RecordOracleSnapshot(ctx, asset, median.FloatString(18), feeders, proof, newest); err != nil {
			return fmt.Errorf("record snapshot: %w", err)
		}
	}
	return nil
}

// Price implements the engine's price oracle.
func (m *Manager) Price(asset string) (*uint256.Int, error) {
	snap, err := m.Snapshot(asset)
	if err != nil {
		return nil, err
	}
	return snap.Price, nil
}

// Snapshot returns the cached aggregate when it is still fresh.
func (m *Manager) Snapshot(asset string) (Snapshot, error) {
	key := normaliseAsset(asset)
	m.mu.RLock()
	agg, ok := m.prices[key]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNoPrice, key)
	}
	if m.now().Sub(agg.observed) > m.maxAge {
		return Snapshot{}, fmt.Errorf("%w: %s observed %s", ErrStalePrice, key, agg.observed.UTC().Format(time.RFC3339))
	}
	return Snapshot{
		Asset:    key,
		Price:    new(uint256.Int).Set(agg.price),
		Observed: agg.observed,
		Feeders:  append([]string{}, agg.feeders...),
	}, nil
}

func computeMedian(quotes []Quote) *big.Rat {
	sorted := make([]*big.Rat, 0, len(quotes))
	for _, q := range quotes {
		if q.Rate == nil {
			continue
		}
		sorted = append(sorted, new(big.Rat).Set(q.Rate))
	}
	if len(sorted) == 0 {
		return nil
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Cmp(sorted[j]) < 0
	})
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return new(big.Rat).Set(sorted[mid])
	}
	sum := new(big.Rat).Add(sorted[mid-1], sorted[mid])
	return sum.Quo(sum, big.NewRat(2, 1))
}

// toFixedPoint truncates rate to 18 decimals.
func toFixedPoint(rate *big.Rat) (*uint256.Int, error) {
	scaled := new(big.Int).Mul(rate.Num(), priceScale)
	scaled.Quo(scaled, rate.Denom())
	if scaled.Sign() <= 0 {
		return nil, fmt.Errorf("price below fixed-point resolution")
	}
	out, overflow := uint256.FromBig(scaled)
	if overflow {
		return nil, fmt.Errorf("price overflows 256 bits")
	}
	return out, nil
}

func proofID(asset string, feeders []string, ts time.Time) string {
	digest := sha256.New()
	digest.Write([]byte(asset))
	digest.Write([]byte(ts.UTC().Format(time.RFC3339Nano)))
	sorted := append([]string{}, feeders...)
	sort.Strings(sorted)
	for _, f := range sorted {
		digest.Write([]byte(strings.ToLower(strings.TrimSpace(f))))
	}
	return hex.EncodeToString(digest.Sum(nil))
}

func normaliseAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}
