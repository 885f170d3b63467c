package token

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"arcadeswap/core/state"
	"arcadeswap/storage"
)

var (
	engineAddr  = common.HexToAddress("0x00000000000000000000000000000000000a4c01")
	factoryAddr = common.HexToAddress("0x00000000000000000000000000000000000fac70")
	alice       = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bob         = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

func newState() *state.Manager {
	return state.NewManager(storage.NewMemDB())
}

func TestFactoryDeploysDistinctCurrencies(t *testing.T) {
	st := newState()
	f := NewFactory(st, factoryAddr)

	first, err := f.Deploy("StarShards", "SS", engineAddr)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	second, err := f.Deploy("MoonDust", "MD", engineAddr)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct addresses, got %s twice", first.Hex())
	}
	c, err := f.Currency(first)
	if err != nil {
		t.Fatalf("open currency: %v", err)
	}
	meta, err := c.Metadata()
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.Name != "StarShards" || meta.Symbol != "SS" || meta.Owner != engineAddr {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if _, err := f.Currency(common.HexToAddress("0xdead")); !errors.Is(err, ErrUnknownCurrency) {
		t.Fatalf("expected unknown currency, got %v", err)
	}
}

func TestCurrencyMintBurnRequiresOwner(t *testing.T) {
	st := newState()
	f := NewFactory(st, factoryAddr)
	ref, err := f.Deploy("StarShards", "SS", engineAddr)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	c, _ := f.Currency(ref)

	if err := c.Mint(alice, alice, uint256.NewInt(5)); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if err := c.Mint(engineAddr, alice, uint256.NewInt(500)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := c.Burn(engineAddr, alice, uint256.NewInt(600)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := c.Burn(engineAddr, alice, uint256.NewInt(200)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if err := c.Transfer(alice, bob, uint256.NewInt(100)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	bal, _ := c.BalanceOf(alice)
	if bal.Uint64() != 200 {
		t.Fatalf("unexpected alice balance %s", bal.Dec())
	}
	meta, _ := c.Metadata()
	if meta.TotalSupply.Uint64() != 300 {
		t.Fatalf("unexpected supply %s", meta.TotalSupply.Dec())
	}
}

func TestReserveTransferFromConsumesAllowance(t *testing.T) {
	st := newState()
	r := NewReserve(st, "arc")
	if r.Asset() != "ARC" {
		t.Fatalf("unexpected asset %q", r.Asset())
	}
	if err := r.Issue(alice, uint256.NewInt(1000)); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := r.TransferFrom(engineAddr, alice, engineAddr, uint256.NewInt(10)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected allowance error, got %v", err)
	}
	if err := r.Approve(alice, engineAddr, uint256.NewInt(300)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := r.TransferFrom(engineAddr, alice, engineAddr, uint256.NewInt(250)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	left, _ := r.Allowance(alice, engineAddr)
	if left.Uint64() != 50 {
		t.Fatalf("unexpected allowance %s", left.Dec())
	}
	bal, _ := r.BalanceOf(engineAddr)
	if bal.Uint64() != 250 {
		t.Fatalf("unexpected engine balance %s", bal.Dec())
	}
	if err := r.Transfer(engineAddr, bob, uint256.NewInt(251)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}

func TestReserveUnlimitedAllowance(t *testing.T) {
	st := newState()
	r := NewReserve(st, "ARC")
	_ = r.Issue(alice, uint256.NewInt(100))
	if err := r.Approve(alice, engineAddr, new(uint256.Int).SetAllOne()); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := r.TransferFrom(engineAddr, alice, bob, uint256.NewInt(60)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	left, _ := r.Allowance(alice, engineAddr)
	if !left.Eq(new(uint256.Int).SetAllOne()) {
		t.Fatalf("unlimited allowance should not decrease, got %s", left.Dec())
	}
}
