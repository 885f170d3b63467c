package arcade

import (
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"arcadeswap/core/events"
	"arcadeswap/core/state"
	"arcadeswap/native/token"
	"arcadeswap/storage"
)

const (
	signerKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testChainID  = 31337
	reserveAsset = "ZNHB"
)

var (
	engineAddr  = common.HexToAddress("0x00000000000000000000000000000000000a4c01")
	factoryAddr = common.HexToAddress("0x00000000000000000000000000000000000fac70")
	operator    = common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
	alice       = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bob         = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	fixedNow    = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

type harness struct {
	t       *testing.T
	state   *state.Manager
	engine  *Engine
	oracle  *StaticOracle
	reserve *token.Reserve
	signer  *ecdsa.PrivateKey
	events  *events.Recorder
	game    *Game
	nonce   uint64
}

func signerKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ethcrypto.HexToECDSA(signerKeyHex)
	if err != nil {
		t.Fatalf("load signer key: %v", err)
	}
	return key
}

// cents returns a fixed-point price of n/100.
func cents(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(10_000_000_000_000_000))
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithReserve(t, nil)
}

// newHarnessWithReserve builds an engine with one game (id 1, rate 200). wrap
// may decorate the reserve ledger handed to the engine.
func newHarnessWithReserve(t *testing.T, wrap func(ReserveLedger) ReserveLedger) *harness {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	oracle := NewStaticOracle()
	reserve := token.NewReserve(st, reserveAsset)
	var ledger ReserveLedger = reserve
	if wrap != nil {
		ledger = wrap(reserve)
	}
	engine, err := NewEngine(Config{Address: engineAddr, ReserveAsset: reserveAsset, ChainID: testChainID}, st, oracle, TokenFactory(token.NewFactory(st, factoryAddr)), ledger)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	engine.SetClock(func() time.Time { return fixedNow })
	key := signerKey(t)
	if _, err := engine.Bootstrap(operator, ethcrypto.PubkeyToAddress(key.PublicKey)); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	game, err := engine.CreateGame(operator, 1, uint256.NewInt(200), "Arcade Coin", "ARC")
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	liquidity := uint256.NewInt(1_000_000_000_000)
	for _, account := range []common.Address{alice, bob, engineAddr} {
		if err := reserve.Issue(account, liquidity); err != nil {
			t.Fatalf("issue reserve: %v", err)
		}
	}
	for _, account := range []common.Address{alice, bob} {
		if err := reserve.Approve(account, engineAddr, new(uint256.Int).SetAllOne()); err != nil {
			t.Fatalf("approve: %v", err)
		}
	}
	if err := st.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	rec := &events.Recorder{}
	engine.SetEmitter(rec)
	return &harness{t: t, state: st, engine: engine, oracle: oracle, reserve: reserve, signer: key, events: rec, game: game}
}

// request builds a signed request for op on behalf of user. Each call carries
// a fresh reserved1 value so repeated payloads stay distinct.
func (h *harness) request(op Operation, user common.Address, gameID uint64, amount uint64) *SignedRequest {
	h.t.Helper()
	h.nonce++
	currency := common.Address{}
	if game, err := h.engine.Game(gameID); err == nil {
		currency = game.CurrencyRef
	}
	req := &SignedRequest{
		Maker:       ethcrypto.PubkeyToAddress(h.signer.PublicKey),
		Requester:   user,
		CurrencyRef: currency,
		GameID:      uint256.NewInt(gameID),
		Amount:      uint256.NewInt(amount),
		Reserved1:   uint256.NewInt(h.nonce),
		Reserved2:   op.Word(),
	}
	if err := SignRequest(h.signer, h.engine.Domain(), req); err != nil {
		h.t.Fatalf("sign request: %v", err)
	}
	return req
}

func (h *harness) buy(user common.Address, reserveIn uint64, price *uint256.Int) *BuyResult {
	h.t.Helper()
	h.oracle.SetPrice(reserveAsset, price)
	res, err := h.engine.Buy(user, h.request(OpBuy, user, h.game.ID, reserveIn))
	if err != nil {
		h.t.Fatalf("buy %d: %v", reserveIn, err)
	}
	return res
}

func (h *harness) sell(user common.Address, currencyIn uint64) *SellResult {
	h.t.Helper()
	res, err := h.engine.Sell(user, h.request(OpSell, user, h.game.ID, currencyIn))
	if err != nil {
		h.t.Fatalf("sell %d: %v", currencyIn, err)
	}
	return res
}

func (h *harness) currencyBalance(user common.Address) uint64 {
	h.t.Helper()
	bal, err := h.engine.CurrencyBalance(h.game.ID, user)
	if err != nil {
		h.t.Fatalf("currency balance: %v", err)
	}
	return bal.Uint64()
}

func (h *harness) reserveBalance(user common.Address) uint64 {
	h.t.Helper()
	bal, err := h.reserve.BalanceOf(user)
	if err != nil {
		h.t.Fatalf("reserve balance: %v", err)
	}
	return bal.Uint64()
}

func (h *harness) position(user common.Address) *Position {
	h.t.Helper()
	pos, err := h.engine.Position(h.game.ID, user)
	if err != nil {
		h.t.Fatalf("position: %v", err)
	}
	return pos
}
