package oracle

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"arcadeswap/services/arcadeswapd/storage"
)

type fakeSource struct {
	name  string
	quote Quote
	err   error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context, asset string) (Quote, error) {
	_ = ctx
	if f.err != nil {
		return Quote{}, f.err
	}
	return f.quote, nil
}

type capturingObserver struct {
	prices []*uint256.Int
}

func (c *capturingObserver) RecordOraclePrice(asset string, price *uint256.Int, age time.Duration) {
	c.prices = append(c.prices, price)
}

func TestManagerTickAggregatesMedian(t *testing.T) {
	store, err := storage.Open(storage.MemoryDSN())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	srcA := &fakeSource{name: "alpha", quote: Quote{Rate: mustRat("0.01"), Timestamp: now}}
	srcB := &fakeSource{name: "beta", quote: Quote{Rate: mustRat("0.02"), Timestamp: now}}
	srcC := &fakeSource{name: "gamma", quote: Quote{Rate: mustRat("0.04"), Timestamp: now}}

	observer := &capturingObserver{}
	mgr, err := New([]Source{srcA, srcB, srcC}, []string{"znhb"}, time.Second, time.Minute, 2,
		WithRecorder(store), WithObserver(observer), WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := mgr.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	price, err := mgr.Price("ZNHB")
	require.NoError(t, err)
	require.Equal(t, "20000000000000000", price.Dec())
	require.Len(t, observer.prices, 1)

	snap, err := store.LatestOracleSnapshot(context.Background(), "ZNHB")
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.Equal(t, "0.020000000000000000", snap.Price)
	require.Equal(t, "alpha,beta,gamma", snap.Feeders)
}

func TestManagerEvenMedianAndFailedSources(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	sources := []Source{
		&fakeSource{name: "a", quote: Quote{Rate: mustRat("0.02"), Timestamp: now}},
		&fakeSource{name: "b", quote: Quote{Rate: mustRat("0.03"), Timestamp: now}},
		&fakeSource{name: "down", err: errors.New("unavailable")},
		&fakeSource{name: "old", quote: Quote{Rate: mustRat("9"), Timestamp: now.Add(-time.Hour)}},
		&fakeSource{name: "future", quote: Quote{Rate: mustRat("9"), Timestamp: now.Add(time.Minute)}},
	}
	mgr, err := New(sources, []string{"ZNHB"}, time.Second, time.Minute, 2, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	require.NoError(t, mgr.Tick(context.Background()))
	snap, err := mgr.Snapshot("znhb")
	require.NoError(t, err)
	require.Equal(t, "25000000000000000", snap.Price.Dec())
	require.Equal(t, []string{"a", "b"}, snap.Feeders)
}

func TestManagerInsufficientFeeds(t *testing.T) {
	now := time.Now()
	mgr, err := New([]Source{&fakeSource{name: "a", quote: Quote{Rate: mustRat("1"), Timestamp: now}}}, []string{"ZNHB"}, time.Second, time.Minute, 2)
	require.NoError(t, err)
	require.Error(t, mgr.Tick(context.Background()))
	_, err = mgr.Price("ZNHB")
	require.ErrorIs(t, err, ErrNoPrice)
}

func TestManagerPriceGoesStale(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := now
	src := &fakeSource{name: "a", quote: Quote{Rate: mustRat("0.05"), Timestamp: now}}
	mgr, err := New([]Source{src}, []string{"ZNHB"}, time.Second, time.Minute, 1, WithClock(func() time.Time { return clock }))
	require.NoError(t, err)
	require.NoError(t, mgr.Tick(context.Background()))
	_, err = mgr.Price("ZNHB")
	require.NoError(t, err)

	clock = now.Add(2 * time.Minute)
	_, err = mgr.Price("ZNHB")
	require.ErrorIs(t, err, ErrStalePrice)
}

func TestNewValidatesArguments(t *testing.T) {
	src := &fakeSource{name: "a"}
	if _, err := New(nil, []string{"ZNHB"}, time.Second, time.Minute, 1); err == nil {
		t.Fatalf("expected error without sources")
	}
	if _, err := New([]Source{src}, nil, time.Second, time.Minute, 1); err == nil {
		t.Fatalf("expected error without assets")
	}
	if _, err := New([]Source{src}, []string{"ZNHB"}, 0, time.Minute, 1); err == nil {
		t.Fatalf("expected error for zero interval")
	}
}

func TestToFixedPointTruncates(t *testing.T) {
	price, err := toFixedPoint(big.NewRat(1, 3))
	require.NoError(t, err)
	require.Equal(t, "333333333333333333", price.Dec())
	_, err = toFixedPoint(new(big.Rat).SetFrac(big.NewInt(1), new(big.Int).Exp(big.NewInt(10), big.NewInt(19), nil)))
	require.Error(t, err)
}

func mustRat(value string) *big.Rat {
	rat, ok := new(big.Rat).SetString(value)
	if !ok {
		panic("invalid rat")
	}
	return rat
}
