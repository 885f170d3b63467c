package arcade

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Registry owns the game table.
type Registry struct {
	store   Store
	admin   *Admin
	factory CurrencyFactory
	minter  common.Address
	now     func() time.Time
}

// NewRegistry constructs a registry. Currencies it deploys are owned by
// minter, the engine address.
func NewRegistry(store Store, admin *Admin, factory CurrencyFactory, minter common.Address, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{store: store, admin: admin, factory: factory, minter: minter, now: now}
}

// CreateGame configures a new game and deploys its currency.
func (r *Registry) CreateGame(caller common.Address, id uint64, rate *uint256.Int, name, symbol string) (*Game, error) {
	if err := r.admin.RequireOperator(caller); err != nil {
		return nil, err
	}
	if rate == nil || rate.IsZero() {
		return nil, ErrInvalidRate
	}
	name = strings.TrimSpace(name)
	symbol = strings.TrimSpace(symbol)
	if name == "" || symbol == "" {
		return nil, fmt.Errorf("arcade: currency name and symbol required")
	}
	existing, err := r.load(id)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Active {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateGame, id)
	}
	ref, err := r.factory.Deploy(name, symbol, r.minter)
	if err != nil {
		return nil, fmt.Errorf("arcade: deploy currency: %w", err)
	}
	now := r.now()
	game := &Game{
		ID:          id,
		Rate:        new(uint256.Int).Set(rate),
		CurrencyRef: ref,
		Name:        name,
		Symbol:      symbol,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.store.KVPut(gameKey(id), toStoredGame(game)); err != nil {
		return nil, err
	}
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], id)
	if err := r.store.KVAppend(gameIndexKey, idx[:]); err != nil {
		return nil, err
	}
	return game, nil
}

// SetRate updates the conversion rate of an existing game.
func (r *Registry) SetRate(caller common.Address, id uint64, rate *uint256.Int) (*Game, error) {
	if err := r.admin.RequireOperator(caller); err != nil {
		return nil, err
	}
	game, err := r.Game(id)
	if err != nil {
		return nil, err
	}
	if rate == nil || rate.IsZero() {
		return nil, ErrInvalidRate
	}
	game.Rate = new(uint256.Int).Set(rate)
	game.UpdatedAt = r.now()
	if err := r.store.KVPut(gameKey(id), toStoredGame(game)); err != nil {
		return nil, err
	}
	return game, nil
}

// Game returns the configured game or ErrGameNotInitialized.
func (r *Registry) Game(id uint64) (*Game, error) {
	game, err := r.load(id)
	if err != nil {
		return nil, err
	}
	if game == nil || !game.Active {
		return nil, fmt.Errorf("%w: %d", ErrGameNotInitialized, id)
	}
	return game, nil
}

// Games lists every configured game ordered by identifier.
func (r *Registry) Games() ([]*Game, error) {
	var index [][]byte
	if err := r.store.KVGetList(gameIndexKey, &index); err != nil {
		return nil, err
	}
	games := make([]*Game, 0, len(index))
	for _, raw := range index {
		if len(raw) != 8 {
			return nil, fmt.Errorf("arcade: corrupt game index entry %x", raw)
		}
		game, err := r.Game(binary.BigEndian.Uint64(raw))
		if err != nil {
			return nil, err
		}
		games = append(games, game)
	}
	sort.Slice(games, func(i, j int) bool { return games[i].ID < games[j].ID })
	return games, nil
}

func (r *Registry) load(id uint64) (*Game, error) {
	var stored storedGame
	ok, err := r.store.KVGet(gameKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return fromStoredGame(&stored), nil
}
