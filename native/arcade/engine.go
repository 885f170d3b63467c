package arcade

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"arcadeswap/core/events"
)

// Config identifies one engine deployment.
type Config struct {
	// Address is the engine's own account. It owns every game currency and
	// holds the reserve deposited by buyers.
	Address common.Address
	// ReserveAsset is the asset id quoted by the price oracle.
	ReserveAsset string
	// ChainID is bound into the request signing domain.
	ChainID uint64
}

// BuyResult summarises a completed buy.
type BuyResult struct {
	Game        *Game
	Position    *Position
	ReserveIn   *uint256.Int
	CurrencyOut *uint256.Int
	Price       *uint256.Int
	Digest      common.Hash
}

// SellResult summarises a completed sell.
type SellResult struct {
	Game       *Game
	Position   *Position
	CurrencyIn *uint256.Int
	ReserveOut *uint256.Int
	Digest     common.Hash
}

// MintResult summarises a completed privileged mint.
type MintResult struct {
	Game      *Game
	Recipient common.Address
	Amount    *uint256.Int
	Digest    common.Hash
}

// Engine exchanges the reserve asset for per-game currencies. It takes no
// locks: the host serialises calls. Every operation runs inside a state
// snapshot and is reverted in full on error, including state written by
// nested calls made from ledger callbacks.
type Engine struct {
	cfg        Config
	store      Store
	oracle     PriceOracle
	currencies CurrencyFactory
	reserve    ReserveLedger
	emitter    events.Emitter
	now        func() time.Time

	admin    *Admin
	registry *Registry
	auth     *Authorizer
	replay   *ReplayGuard

	depth   int
	pending []events.Event
}

// NewEngine wires an engine over the supplied state and collaborators.
func NewEngine(cfg Config, store Store, oracle PriceOracle, currencies CurrencyFactory, reserve ReserveLedger) (*Engine, error) {
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("arcade: engine address required")
	}
	cfg.ReserveAsset = strings.ToUpper(strings.TrimSpace(cfg.ReserveAsset))
	if cfg.ReserveAsset == "" {
		return nil, fmt.Errorf("arcade: reserve asset required")
	}
	if store == nil || oracle == nil || currencies == nil || reserve == nil {
		return nil, fmt.Errorf("arcade: store, oracle, currency factory and reserve ledger required")
	}
	e := &Engine{
		cfg:        cfg,
		store:      store,
		oracle:     oracle,
		currencies: currencies,
		reserve:    reserve,
		emitter:    events.NoopEmitter{},
	}
	e.now = func() time.Time { return time.Now().UTC() }
	clock := func() time.Time { return e.now() }
	e.admin = NewAdmin(store, clock)
	e.registry = NewRegistry(store, e.admin, currencies, cfg.Address, clock)
	e.auth = NewAuthorizer(NewDomain(cfg.ChainID, cfg.Address), e.admin)
	e.replay = NewReplayGuard(store, clock)
	return e, nil
}

// SetEmitter configures the event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetClock overrides the engine clock, primarily for deterministic testing.
func (e *Engine) SetClock(now func() time.Time) {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	e.now = now
}

// Address returns the engine account.
func (e *Engine) Address() common.Address { return e.cfg.Address }

// Domain returns the signing domain requests must be signed under.
func (e *Engine) Domain() Domain { return e.auth.Domain() }

// ReserveAsset returns the oracle asset id of the reserve.
func (e *Engine) ReserveAsset() string { return e.cfg.ReserveAsset }

func (e *Engine) emit(evt events.Event) {
	e.pending = append(e.pending, evt)
}

// atomic runs fn inside a snapshot. Events are released only when the
// outermost operation succeeds.
func (e *Engine) atomic(fn func() error) (err error) {
	snapshot := e.store.Snapshot()
	mark := len(e.pending)
	e.depth++
	defer func() {
		e.depth--
		if err != nil {
			e.store.RevertToSnapshot(snapshot)
			e.pending = e.pending[:mark]
			return
		}
		if e.depth == 0 {
			released := e.pending
			e.pending = nil
			for _, evt := range released {
				e.emitter.Emit(evt)
			}
		}
	}()
	return fn()
}

// Bootstrap installs the initial operator and backend signer if none exist.
func (e *Engine) Bootstrap(operator, signer common.Address) (AdminConfig, error) {
	var cfg AdminConfig
	err := e.atomic(func() error {
		var (
			installed bool
			err       error
		)
		cfg, installed, err = e.admin.Bootstrap(operator, signer)
		if err != nil || !installed {
			return err
		}
		e.emit(events.OperatorTransferred{Operator: operator})
		if signer != (common.Address{}) {
			e.emit(events.BackendSignerUpdated{Signer: signer, UpdatedBy: operator})
		}
		return nil
	})
	return cfg, err
}

// AdminConfig returns the privileged configuration record.
func (e *Engine) AdminConfig() (AdminConfig, error) {
	return e.admin.Config()
}

// RequireOperator fails with ErrUnauthorized unless caller is the operator.
func (e *Engine) RequireOperator(caller common.Address) error {
	return e.admin.RequireOperator(caller)
}

// SetBackendSigner replaces the identity requests must be signed by.
func (e *Engine) SetBackendSigner(caller, signer common.Address) (AdminConfig, error) {
	var cfg AdminConfig
	err := e.atomic(func() error {
		var err error
		cfg, err = e.admin.SetBackendSigner(caller, signer)
		if err != nil {
			return err
		}
		e.emit(events.BackendSignerUpdated{Signer: signer, UpdatedBy: caller})
		return nil
	})
	return cfg, err
}

// TransferOperator hands the operator role to next.
func (e *Engine) TransferOperator(caller, next common.Address) (AdminConfig, error) {
	var cfg AdminConfig
	err := e.atomic(func() error {
		var err error
		cfg, err = e.admin.TransferOperator(caller, next)
		if err != nil {
			return err
		}
		e.emit(events.OperatorTransferred{Previous: caller, Operator: next})
		return nil
	})
	return cfg, err
}

// CreateGame configures a game and deploys its currency.
func (e *Engine) CreateGame(caller common.Address, id uint64, rate *uint256.Int, name, symbol string) (*Game, error) {
	var game *Game
	err := e.atomic(func() error {
		var err error
		game, err = e.registry.CreateGame(caller, id, rate, name, symbol)
		if err != nil {
			return err
		}
		e.emit(events.GameCreated{GameID: game.ID, CurrencyRef: game.CurrencyRef, Rate: game.Rate, Name: game.Name, Symbol: game.Symbol})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return game, nil
}

// SetRate updates a game's conversion rate.
func (e *Engine) SetRate(caller common.Address, id uint64, rate *uint256.Int) (*Game, error) {
	var game *Game
	err := e.atomic(func() error {
		var err error
		game, err = e.registry.SetRate(caller, id, rate)
		if err != nil {
			return err
		}
		e.emit(events.GameRateUpdated{GameID: game.ID, Rate: game.Rate})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return game, nil
}

// Game returns a configured game.
func (e *Engine) Game(id uint64) (*Game, error) {
	return e.registry.Game(id)
}

// Games lists every configured game.
func (e *Engine) Games() ([]*Game, error) {
	return e.registry.Games()
}

// Position returns the user's position in a game. Users that never bought
// see an empty position.
func (e *Engine) Position(gameID uint64, user common.Address) (*Position, error) {
	if _, err := e.registry.Game(gameID); err != nil {
		return nil, err
	}
	return e.loadPosition(gameID, user)
}

// CurrencyBalance returns the user's balance of a game's currency.
func (e *Engine) CurrencyBalance(gameID uint64, user common.Address) (*uint256.Int, error) {
	game, err := e.registry.Game(gameID)
	if err != nil {
		return nil, err
	}
	currency, err := e.currencies.Open(game.CurrencyRef)
	if err != nil {
		return nil, fmt.Errorf("arcade: open currency: %w", err)
	}
	return currency.BalanceOf(user)
}

// admit authenticates req for caller and op, resolves its game and consumes
// the request digest.
func (e *Engine) admit(caller common.Address, op Operation, req *SignedRequest) (*Game, common.Hash, error) {
	requester, digest, err := e.auth.Verify(req)
	if err != nil {
		return nil, common.Hash{}, err
	}
	if signed := req.Operation(); signed != op {
		return nil, common.Hash{}, fmt.Errorf("%w: request signed for %s, not %s", ErrRequestMismatch, signed, op)
	}
	if requester != caller {
		return nil, common.Hash{}, fmt.Errorf("%w: requester %s is not the caller", ErrRequestMismatch, requester.Hex())
	}
	if req.GameID == nil || !req.GameID.IsUint64() {
		return nil, common.Hash{}, fmt.Errorf("%w: %s", ErrGameNotInitialized, decimal(req.GameID))
	}
	game, err := e.registry.Game(req.GameID.Uint64())
	if err != nil {
		return nil, common.Hash{}, err
	}
	if game.CurrencyRef != req.CurrencyRef {
		return nil, common.Hash{}, fmt.Errorf("%w: currency %s does not belong to game %d", ErrRequestMismatch, req.CurrencyRef.Hex(), game.ID)
	}
	if req.Amount == nil || req.Amount.IsZero() {
		return nil, common.Hash{}, ErrInvalidAmount
	}
	if err := e.replay.Consume(digest); err != nil {
		return nil, common.Hash{}, err
	}
	return game, digest, nil
}

func (e *Engine) openCurrency(game *Game) (CurrencyLedger, error) {
	currency, err := e.currencies.Open(game.CurrencyRef)
	if err != nil {
		return nil, fmt.Errorf("arcade: open currency: %w", err)
	}
	return currency, nil
}

// Buy exchanges req.Amount of the reserve asset for game currency at the
// live oracle price and folds the purchase into the caller's cost basis.
func (e *Engine) Buy(caller common.Address, req *SignedRequest) (*BuyResult, error) {
	var result *BuyResult
	err := e.atomic(func() error {
		game, digest, err := e.admit(caller, OpBuy, req)
		if err != nil {
			return err
		}
		reserveIn := new(uint256.Int).Set(req.Amount)
		price, err := e.oracle.Price(e.cfg.ReserveAsset)
		if err != nil {
			return fmt.Errorf("arcade: price %s: %w", e.cfg.ReserveAsset, err)
		}
		if price == nil || price.IsZero() {
			return ErrInvalidPrice
		}
		currencyOut, err := currencyForReserve(reserveIn, price, game.Rate)
		if err != nil {
			return err
		}
		if currencyOut.IsZero() {
			return fmt.Errorf("%w: purchase yields no currency", ErrInvalidAmount)
		}
		position, err := e.loadPosition(game.ID, caller)
		if err != nil {
			return err
		}
		average, total, err := nextWeightedAverage(position.ReserveAmount, position.WeightedAverage, reserveIn, price)
		if err != nil {
			return err
		}
		position.ReserveAmount = total
		position.WeightedAverage = average
		position.UpdatedAt = e.now()
		if err := e.putPosition(position); err != nil {
			return err
		}
		currency, err := e.openCurrency(game)
		if err != nil {
			return err
		}
		if err := e.reserve.TransferFrom(e.cfg.Address, caller, e.cfg.Address, reserveIn); err != nil {
			return fmt.Errorf("arcade: collect reserve: %w", err)
		}
		if err := currency.Mint(e.cfg.Address, caller, currencyOut); err != nil {
			return fmt.Errorf("arcade: mint currency: %w", err)
		}
		e.emit(events.CurrencyBought{
			GameID:          game.ID,
			User:            caller,
			ReserveIn:       reserveIn,
			CurrencyOut:     currencyOut,
			Price:           price,
			WeightedAverage: average,
			ReserveAmount:   new(big.Int).Set(total),
		})
		result = &BuyResult{
			Game:        game,
			Position:    position.Clone(),
			ReserveIn:   reserveIn,
			CurrencyOut: currencyOut,
			Price:       price,
			Digest:      digest,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Sell redeems req.Amount of game currency for the reserve asset at the
// position's stored weighted average. The live price is never consulted.
func (e *Engine) Sell(caller common.Address, req *SignedRequest) (*SellResult, error) {
	var result *SellResult
	err := e.atomic(func() error {
		game, digest, err := e.admit(caller, OpSell, req)
		if err != nil {
			return err
		}
		currencyIn := new(uint256.Int).Set(req.Amount)
		currency, err := e.openCurrency(game)
		if err != nil {
			return err
		}
		balance, err := currency.BalanceOf(caller)
		if err != nil {
			return err
		}
		if balance.Lt(currencyIn) {
			return ErrInsufficientGameCurrency
		}
		position, err := e.loadPosition(game.ID, caller)
		if err != nil {
			return err
		}
		reserveOut, err := reserveForCurrency(currencyIn, game.Rate, position.WeightedAverage)
		if err != nil {
			return err
		}
		if reserveOut.IsZero() {
			return fmt.Errorf("%w: sale yields no reserve", ErrInvalidAmount)
		}
		position.ReserveAmount = new(big.Int).Sub(position.ReserveAmount, reserveOut.ToBig())
		position.UpdatedAt = e.now()
		if err := e.putPosition(position); err != nil {
			return err
		}
		if err := currency.Burn(e.cfg.Address, caller, currencyIn); err != nil {
			return fmt.Errorf("arcade: burn currency: %w", err)
		}
		if err := e.reserve.Transfer(e.cfg.Address, caller, reserveOut); err != nil {
			return fmt.Errorf("arcade: pay reserve: %w", err)
		}
		e.emit(events.CurrencySold{
			GameID:          game.ID,
			User:            caller,
			CurrencyIn:      currencyIn,
			ReserveOut:      reserveOut,
			WeightedAverage: position.WeightedAverage,
			ReserveAmount:   new(big.Int).Set(position.ReserveAmount),
		})
		result = &SellResult{
			Game:       game,
			Position:   position.Clone(),
			CurrencyIn: currencyIn,
			ReserveOut: reserveOut,
			Digest:     digest,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Mint credits game currency to the caller without moving reserve and
// without touching the caller's cost basis.
func (e *Engine) Mint(caller common.Address, req *SignedRequest) (*MintResult, error) {
	var result *MintResult
	err := e.atomic(func() error {
		game, digest, err := e.admit(caller, OpMint, req)
		if err != nil {
			return err
		}
		amount := new(uint256.Int).Set(req.Amount)
		currency, err := e.openCurrency(game)
		if err != nil {
			return err
		}
		if err := currency.Mint(e.cfg.Address, caller, amount); err != nil {
			return fmt.Errorf("arcade: mint currency: %w", err)
		}
		e.emit(events.CurrencyMinted{GameID: game.ID, Maker: req.Maker, Recipient: caller, Amount: amount})
		result = &MintResult{Game: game, Recipient: caller, Amount: amount, Digest: digest}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
