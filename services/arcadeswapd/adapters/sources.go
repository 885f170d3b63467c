package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"arcadeswap/services/arcadeswapd/oracle"
)

const defaultCoinGeckoEndpoint = "https://api.coingecko.com/api/v3/simple/price"

// HTTPDoer is the subset of http.Client used by the HTTP sources.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Registry constructs oracle sources based on configuration.
type Registry struct {
	HTTPClient HTTPDoer
	Now        func() time.Time
}

// NewRegistry builds a registry with sane defaults.
func NewRegistry() *Registry {
	return &Registry{HTTPClient: &http.Client{Timeout: 10 * time.Second}, Now: time.Now}
}

// Definition describes one configured source.
type Definition struct {
	Name     string
	Type     string
	Endpoint string
	Quote    string
	Assets   map[string]string
	Prices   map[string]string
}

// Build creates a source from the supplied configuration.
func (r *Registry) Build(def Definition) (oracle.Source, error) {
	switch strings.ToLower(strings.TrimSpace(def.Type)) {
	case "coingecko":
		return newCoinGeckoSource(r.client(), label(def.Name, "coingecko"), def.Endpoint, def.Quote, def.Assets, r.clock()), nil
	case "static":
		return NewStaticSource(label(def.Name, "static"), def.Prices, r.clock())
	default:
		return nil, fmt.Errorf("unknown oracle type %q", def.Type)
	}
}

func (r *Registry) client() HTTPDoer {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (r *Registry) clock() func() time.Time {
	if r.Now != nil {
		return r.Now
	}
	return time.Now
}

// StaticSource serves fixed prices stamped with the current time. It backs
// development deployments without an upstream feed.
type StaticSource struct {
	name   string
	prices map[string]*big.Rat
	now    func() time.Time
}

// NewStaticSource parses decimal prices keyed by asset symbol.
func NewStaticSource(name string, prices map[string]string, now func() time.Time) (*StaticSource, error) {
	if now == nil {
		now = time.Now
	}
	parsed := make(map[string]*big.Rat, len(prices))
	for asset, raw := range prices {
		rat, ok := new(big.Rat).SetString(strings.TrimSpace(raw))
		if !ok || rat.Sign() <= 0 {
			return nil, fmt.Errorf("static oracle %s: invalid price %q for %s", name, raw, asset)
		}
		parsed[normaliseSymbol(asset)] = rat
	}
	return &StaticSource{name: name, prices: parsed, now: now}, nil
}

func (s *StaticSource) Name() string { return s.name }

func (s *StaticSource) Fetch(ctx context.Context, asset string) (oracle.Quote, error) {
	_ = ctx
	rate, ok := s.prices[normaliseSymbol(asset)]
	if !ok {
		return oracle.Quote{}, fmt.Errorf("static oracle %s: no price for %s", s.name, asset)
	}
	return oracle.Quote{Rate: new(big.Rat).Set(rate), Timestamp: s.now()}, nil
}

type coinGeckoSource struct {
	name     string
	client   HTTPDoer
	endpoint string
	quote    string
	idMap    map[string]string
	now      func() time.Time
}

func newCoinGeckoSource(client HTTPDoer, name, endpoint, quote string, idMap map[string]string, now func() time.Time) *coinGeckoSource {
	ep := strings.TrimSpace(endpoint)
	if ep == "" {
		ep = defaultCoinGeckoEndpoint
	}
	q := strings.ToLower(strings.TrimSpace(quote))
	if q == "" {
		q = "usd"
	}
	mapped := make(map[string]string, len(idMap))
	for k, v := range idMap {
		mapped[normaliseSymbol(k)] = strings.TrimSpace(v)
	}
	return &coinGeckoSource{name: name, client: client, endpoint: ep, quote: q, idMap: mapped, now: now}
}

func (s *coinGeckoSource) Name() string { return s.name }

func (s *coinGeckoSource) assetID(symbol string) string {
	if id, ok := s.idMap[normaliseSymbol(symbol)]; ok && id != "" {
		return id
	}
	return strings.ToLower(strings.TrimSpace(symbol))
}

func (s *coinGeckoSource) Fetch(ctx context.Context, asset string) (oracle.Quote, error) {
	id := s.assetID(asset)
	if id == "" {
		return oracle.Quote{}, fmt.Errorf("coingecko oracle: unmapped asset %s", asset)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return oracle.Quote{}, err
	}
	values := url.Values{}
	values.Set("ids", id)
	values.Set("vs_currencies", s.quote)
	values.Set("include_last_updated_at", "true")
	req.URL.RawQuery = values.Encode()
	resp, err := s.client.Do(req)
	if err != nil {
		return oracle.Quote{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return oracle.Quote{}, fmt.Errorf("coingecko oracle: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	var payload map[string]map[string]interface{}
	if err := decoder.Decode(&payload); err != nil {
		return oracle.Quote{}, fmt.Errorf("coingecko oracle: decode: %w", err)
	}
	entry, ok := payload[id]
	if !ok {
		return oracle.Quote{}, fmt.Errorf("coingecko oracle: quote missing for %s", asset)
	}
	priceStr := ""
	if raw, exists := entry[s.quote]; exists {
		switch v := raw.(type) {
		case json.Number:
			priceStr = v.String()
		case string:
			priceStr = v
		default:
			priceStr = fmt.Sprintf("%v", v)
		}
	}
	priceStr = strings.TrimSpace(priceStr)
	if priceStr == "" {
		return oracle.Quote{}, fmt.Errorf("coingecko oracle: empty price")
	}
	rat, ok := new(big.Rat).SetString(priceStr)
	if !ok || rat.Sign() <= 0 {
		return oracle.Quote{}, fmt.Errorf("coingecko oracle: invalid rate %q", priceStr)
	}
	var ts time.Time
	if rawTs, exists := entry["last_updated_at"]; exists {
		switch v := rawTs.(type) {
		case json.Number:
			if parsed, err := v.Int64(); err == nil && parsed > 0 {
				ts = time.Unix(parsed, 0)
			}
		case string:
			if parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && parsed > 0 {
				ts = time.Unix(parsed, 0)
			}
		}
	}
	if ts.IsZero() {
		ts = s.now().UTC()
	}
	return oracle.Quote{Rate: rat, Timestamp: ts}, nil
}

func normaliseSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func label(name, fallback string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed != "" {
		return trimmed
	}
	return fallback
}
