package observability

import (
	"math/big"
	"strconv"
	"strings"
	"sync"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"arcadeswap/core/events"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
	volume  *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking engine events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "arcade",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of engine events segmented by type.",
			}, []string{"type"}),
			volume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "arcade",
				Subsystem: "events",
				Name:      "reserve_volume_total",
				Help:      "Reserve units moved by swaps segmented by game and direction.",
			}, []string{"game", "direction"}),
		}
		prometheus.MustRegister(eventRegistry.emitted, eventRegistry.volume)
	})
	return eventRegistry
}

// Emit implements events.Emitter so the registry can sit in an emitter fanout.
func (m *eventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	kind := strings.TrimSpace(evt.EventType())
	if kind == "" {
		kind = "unknown"
	}
	m.emitted.WithLabelValues(kind).Inc()
	switch e := evt.(type) {
	case events.CurrencyBought:
		if e.ReserveIn != nil {
			m.volume.WithLabelValues(strconv.FormatUint(e.GameID, 10), "in").Add(amountToFloat(e.ReserveIn))
		}
	case events.CurrencySold:
		if e.ReserveOut != nil {
			m.volume.WithLabelValues(strconv.FormatUint(e.GameID, 10), "out").Add(amountToFloat(e.ReserveOut))
		}
	}
}

func amountToFloat(v *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
