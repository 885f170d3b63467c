package token

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Factory deploys game currencies. Each deployment gets an address derived
// from the factory address and a monotonically increasing nonce, the same
// scheme contract creation uses.
type Factory struct {
	store   Storage
	address common.Address
}

// NewFactory binds a factory to the supplied state and deployer address.
func NewFactory(store Storage, address common.Address) *Factory {
	return &Factory{store: store, address: address}
}

// Deploy creates a new currency owned by owner and returns its reference.
func (f *Factory) Deploy(name, symbol string, owner common.Address) (common.Address, error) {
	if f == nil {
		return common.Address{}, fmt.Errorf("token: factory not configured")
	}
	name = strings.TrimSpace(name)
	symbol = strings.TrimSpace(symbol)
	if name == "" || symbol == "" {
		return common.Address{}, fmt.Errorf("token: name and symbol required")
	}
	if owner == (common.Address{}) {
		return common.Address{}, ErrZeroAddress
	}
	var nonce uint64
	if _, err := f.store.KVGet(factoryNonceKey, &nonce); err != nil {
		return common.Address{}, err
	}
	ref := ethcrypto.CreateAddress(f.address, nonce)
	meta := CurrencyMetadata{Name: name, Symbol: symbol, Owner: owner, TotalSupply: new(uint256.Int)}
	if err := f.store.KVPut(currencyMetaKey(ref), meta); err != nil {
		return common.Address{}, err
	}
	if err := f.store.KVPut(factoryNonceKey, nonce+1); err != nil {
		return common.Address{}, err
	}
	return ref, nil
}

// Currency opens a previously deployed currency.
func (f *Factory) Currency(ref common.Address) (*Currency, error) {
	if f == nil {
		return nil, fmt.Errorf("token: factory not configured")
	}
	c := &Currency{store: f.store, ref: ref}
	if _, err := c.Metadata(); err != nil {
		return nil, err
	}
	return c, nil
}
