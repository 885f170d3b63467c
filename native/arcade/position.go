package arcade

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	maxInt256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	minInt256 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
)

func checkInt256(v *big.Int) error {
	if v.Cmp(maxInt256) > 0 || v.Cmp(minInt256) < 0 {
		return fmt.Errorf("%w: value exceeds int256", ErrArithmetic)
	}
	return nil
}

// currencyForReserve computes reserveIn * price * rate / 1e18.
func currencyForReserve(reserveIn, price, rate *uint256.Int) (*uint256.Int, error) {
	value, overflow := new(uint256.Int).MulOverflow(reserveIn, price)
	if overflow {
		return nil, fmt.Errorf("%w: reserve value overflow", ErrArithmetic)
	}
	scaled, overflow := new(uint256.Int).MulOverflow(value, rate)
	if overflow {
		return nil, fmt.Errorf("%w: currency amount overflow", ErrArithmetic)
	}
	return scaled.Div(scaled, PriceUnit), nil
}

// reserveForCurrency computes currencyIn * 1e18 / rate / weightedAverage.
func reserveForCurrency(currencyIn, rate, weightedAverage *uint256.Int) (*uint256.Int, error) {
	if rate.IsZero() {
		return nil, ErrInvalidRate
	}
	if weightedAverage.IsZero() {
		return nil, ErrNoCostBasis
	}
	scaled, overflow := new(uint256.Int).MulOverflow(currencyIn, PriceUnit)
	if overflow {
		return nil, fmt.Errorf("%w: currency amount overflow", ErrArithmetic)
	}
	scaled.Div(scaled, rate)
	return scaled.Div(scaled, weightedAverage), nil
}

// nextWeightedAverage folds a purchase of reserveIn at price into the running
// average. Division truncates toward zero. An empty position or a purchase
// that brings the total back to zero takes the purchase price.
func nextWeightedAverage(amount *big.Int, average, reserveIn, price *uint256.Int) (*uint256.Int, *big.Int, error) {
	in := reserveIn.ToBig()
	total := new(big.Int).Add(amount, in)
	if err := checkInt256(total); err != nil {
		return nil, nil, err
	}
	if amount.Sign() == 0 || total.Sign() == 0 {
		return new(uint256.Int).Set(price), total, nil
	}
	held := new(big.Int).Mul(amount, average.ToBig())
	if err := checkInt256(held); err != nil {
		return nil, nil, err
	}
	bought := new(big.Int).Mul(in, price.ToBig())
	if err := checkInt256(bought); err != nil {
		return nil, nil, err
	}
	sum := new(big.Int).Add(held, bought)
	if err := checkInt256(sum); err != nil {
		return nil, nil, err
	}
	next := new(big.Int).Quo(sum, total)
	if next.Sign() <= 0 {
		return nil, nil, fmt.Errorf("%w: non-positive average price", ErrArithmetic)
	}
	out, overflow := uint256.FromBig(next)
	if overflow {
		return nil, nil, fmt.Errorf("%w: average price overflow", ErrArithmetic)
	}
	return out, total, nil
}

func (e *Engine) loadPosition(gameID uint64, user common.Address) (*Position, error) {
	var stored storedPosition
	ok, err := e.store.KVGet(positionKey(gameID, user), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return emptyPosition(gameID, user), nil
	}
	return fromStoredPosition(gameID, user, &stored)
}

func (e *Engine) putPosition(p *Position) error {
	if err := checkInt256(p.ReserveAmount); err != nil {
		return err
	}
	return e.store.KVPut(positionKey(p.GameID, p.User), toStoredPosition(p))
}
