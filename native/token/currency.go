package token

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrNotOwner is returned when a mint or burn is attempted by an address
	// other than the currency owner.
	ErrNotOwner = errors.New("token: caller is not the currency owner")
	// ErrInsufficientBalance is returned when a debit exceeds the account balance.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrInsufficientAllowance is returned when transferFrom exceeds the approved amount.
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	// ErrOverflow is returned when a credit would exceed 2^256-1.
	ErrOverflow = errors.New("token: amount overflow")
	// ErrUnknownCurrency is returned when a currency reference was never deployed.
	ErrUnknownCurrency = errors.New("token: unknown currency")
	// ErrZeroAddress is returned for transfers to or from the zero address.
	ErrZeroAddress = errors.New("token: zero address")
)

// Storage abstracts the state access required by the token ledgers.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// CurrencyMetadata describes a deployed game currency.
type CurrencyMetadata struct {
	Name        string
	Symbol      string
	Owner       common.Address
	TotalSupply *uint256.Int
}

// Currency is a per-game fungible ledger. Only the owner recorded at deploy
// time may mint or burn.
type Currency struct {
	store Storage
	ref   common.Address
}

// Address returns the currency reference.
func (c *Currency) Address() common.Address {
	return c.ref
}

// Metadata loads the currency descriptor.
func (c *Currency) Metadata() (CurrencyMetadata, error) {
	var meta CurrencyMetadata
	ok, err := c.store.KVGet(currencyMetaKey(c.ref), &meta)
	if err != nil {
		return meta, err
	}
	if !ok {
		return meta, fmt.Errorf("%w: %s", ErrUnknownCurrency, c.ref.Hex())
	}
	if meta.TotalSupply == nil {
		meta.TotalSupply = new(uint256.Int)
	}
	return meta, nil
}

// BalanceOf returns the account balance.
func (c *Currency) BalanceOf(account common.Address) (*uint256.Int, error) {
	return loadAmount(c.store, currencyBalanceKey(c.ref, account))
}

// Mint credits amount to the recipient.
func (c *Currency) Mint(minter, to common.Address, amount *uint256.Int) error {
	meta, err := c.authorise(minter)
	if err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	supply, overflow := new(uint256.Int).AddOverflow(meta.TotalSupply, amount)
	if overflow {
		return ErrOverflow
	}
	if err := credit(c.store, currencyBalanceKey(c.ref, to), amount); err != nil {
		return err
	}
	meta.TotalSupply = supply
	return c.store.KVPut(currencyMetaKey(c.ref), meta)
}

// Burn debits amount from the holder.
func (c *Currency) Burn(minter, from common.Address, amount *uint256.Int) error {
	meta, err := c.authorise(minter)
	if err != nil {
		return err
	}
	if meta.TotalSupply.Lt(amount) {
		return ErrInsufficientBalance
	}
	if err := debit(c.store, currencyBalanceKey(c.ref, from), amount); err != nil {
		return err
	}
	meta.TotalSupply = new(uint256.Int).Sub(meta.TotalSupply, amount)
	return c.store.KVPut(currencyMetaKey(c.ref), meta)
}

// Transfer moves currency between holders.
func (c *Currency) Transfer(from, to common.Address, amount *uint256.Int) error {
	if _, err := c.Metadata(); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := debit(c.store, currencyBalanceKey(c.ref, from), amount); err != nil {
		return err
	}
	return credit(c.store, currencyBalanceKey(c.ref, to), amount)
}

func (c *Currency) authorise(minter common.Address) (CurrencyMetadata, error) {
	meta, err := c.Metadata()
	if err != nil {
		return meta, err
	}
	if meta.Owner != minter {
		return meta, ErrNotOwner
	}
	return meta, nil
}

func loadAmount(store Storage, key []byte) (*uint256.Int, error) {
	amount := new(uint256.Int)
	if _, err := store.KVGet(key, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

func credit(store Storage, key []byte, amount *uint256.Int) error {
	balance, err := loadAmount(store, key)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(balance, amount)
	if overflow {
		return ErrOverflow
	}
	return store.KVPut(key, next)
}

func debit(store Storage, key []byte, amount *uint256.Int) error {
	balance, err := loadAmount(store, key)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, balance.Dec(), amount.Dec())
	}
	return store.KVPut(key, new(uint256.Int).Sub(balance, amount))
}
