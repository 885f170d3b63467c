package arcade

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"arcadeswap/native/token"
)

// Store is the state surface the engine reads and writes. Snapshot and
// RevertToSnapshot give every operation all-or-nothing semantics.
type Store interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	Snapshot() int
	RevertToSnapshot(id int)
}

// PriceOracle supplies the normalised price (18 decimals) of an asset.
type PriceOracle interface {
	Price(asset string) (*uint256.Int, error)
}

// CurrencyLedger is a per-game currency. The minter argument is the
// capability check: only the owner recorded at deploy time may mint or burn.
type CurrencyLedger interface {
	Mint(minter, to common.Address, amount *uint256.Int) error
	Burn(minter, from common.Address, amount *uint256.Int) error
	BalanceOf(account common.Address) (*uint256.Int, error)
}

// CurrencyFactory provisions one currency ledger per game.
type CurrencyFactory interface {
	Deploy(name, symbol string, owner common.Address) (common.Address, error)
	Open(ref common.Address) (CurrencyLedger, error)
}

// ReserveLedger is the reserve asset token.
type ReserveLedger interface {
	Transfer(from, to common.Address, amount *uint256.Int) error
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
	BalanceOf(account common.Address) (*uint256.Int, error)
}

// TokenFactory adapts a token.Factory to the CurrencyFactory interface.
func TokenFactory(f *token.Factory) CurrencyFactory {
	return tokenFactory{f}
}

type tokenFactory struct {
	*token.Factory
}

func (f tokenFactory) Open(ref common.Address) (CurrencyLedger, error) {
	c, err := f.Currency(ref)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// StaticOracle serves operator-set prices. It backs tests and single-node
// development setups where no external feed is configured.
type StaticOracle struct {
	mu     sync.RWMutex
	prices map[string]*uint256.Int
}

// NewStaticOracle constructs an empty oracle.
func NewStaticOracle() *StaticOracle {
	return &StaticOracle{prices: make(map[string]*uint256.Int)}
}

// SetPrice records the price for asset.
func (o *StaticOracle) SetPrice(asset string, price *uint256.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[strings.ToUpper(strings.TrimSpace(asset))] = new(uint256.Int).Set(price)
}

// Price implements PriceOracle.
func (o *StaticOracle) Price(asset string) (*uint256.Int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	price, ok := o.prices[strings.ToUpper(strings.TrimSpace(asset))]
	if !ok {
		return nil, fmt.Errorf("arcade: no price for %s", asset)
	}
	return new(uint256.Int).Set(price), nil
}
