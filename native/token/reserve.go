package token

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Reserve is a standard fungible token ledger for the reserve asset.
type Reserve struct {
	store Storage
	asset string
}

// NewReserve binds a reserve ledger for asset to the supplied state.
func NewReserve(store Storage, asset string) *Reserve {
	return &Reserve{store: store, asset: normaliseAsset(asset)}
}

// Asset returns the normalised asset identifier.
func (r *Reserve) Asset() string {
	return r.asset
}

// BalanceOf returns the account balance.
func (r *Reserve) BalanceOf(account common.Address) (*uint256.Int, error) {
	return loadAmount(r.store, reserveBalanceKey(r.asset, account))
}

// TotalSupply returns the amount issued through Issue.
func (r *Reserve) TotalSupply() (*uint256.Int, error) {
	return loadAmount(r.store, reserveSupplyKey(r.asset))
}

// Allowance returns how much spender may move on behalf of owner.
func (r *Reserve) Allowance(owner, spender common.Address) (*uint256.Int, error) {
	return loadAmount(r.store, reserveAllowanceKey(r.asset, owner, spender))
}

// Approve sets the spender allowance.
func (r *Reserve) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if spender == (common.Address{}) {
		return ErrZeroAddress
	}
	return r.store.KVPut(reserveAllowanceKey(r.asset, owner, spender), new(uint256.Int).Set(amount))
}

// Transfer moves amount from one holder to another.
func (r *Reserve) Transfer(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := debit(r.store, reserveBalanceKey(r.asset, from), amount); err != nil {
		return err
	}
	return credit(r.store, reserveBalanceKey(r.asset, to), amount)
}

// TransferFrom moves amount from owner to recipient using the spender's
// allowance. An allowance of 2^256-1 is treated as unlimited.
func (r *Reserve) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	allowKey := reserveAllowanceKey(r.asset, from, spender)
	allowance, err := loadAmount(r.store, allowKey)
	if err != nil {
		return err
	}
	if allowance.Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientAllowance, allowance.Dec(), amount.Dec())
	}
	if !allowance.Eq(maxAmount) {
		if err := r.store.KVPut(allowKey, new(uint256.Int).Sub(allowance, amount)); err != nil {
			return err
		}
	}
	return r.Transfer(from, to, amount)
}

// Issue credits newly created reserve units. It backs genesis allocations
// and development faucets; production deployments front an external asset.
func (r *Reserve) Issue(to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	supply, err := loadAmount(r.store, reserveSupplyKey(r.asset))
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(supply, amount)
	if overflow {
		return ErrOverflow
	}
	if err := credit(r.store, reserveBalanceKey(r.asset, to), amount); err != nil {
		return err
	}
	return r.store.KVPut(reserveSupplyKey(r.asset), next)
}

var maxAmount = new(uint256.Int).SetAllOne()
