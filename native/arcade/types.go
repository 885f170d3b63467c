package arcade

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PriceUnit is the fixed-point scale of oracle prices: 1.0 == 10^18.
var PriceUnit = uint256.NewInt(1_000_000_000_000_000_000)

// Game captures the configuration for a single activity and its currency.
type Game struct {
	ID          uint64
	Rate        *uint256.Int
	CurrencyRef common.Address
	Name        string
	Symbol      string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Clone returns a deep copy of the game.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	clone := *g
	if g.Rate != nil {
		clone.Rate = new(uint256.Int).Set(g.Rate)
	}
	return &clone
}

// Position is a user's cost-basis record within one game.
//
// ReserveAmount is signed bookkeeping: a sell redeeming currency credited by a
// privileged mint can drive it below zero, and later buys fold that deficit
// into the running average.
type Position struct {
	GameID          uint64
	User            common.Address
	ReserveAmount   *big.Int
	WeightedAverage *uint256.Int
	UpdatedAt       time.Time
}

// Open reports whether the position holds outstanding reserve exposure.
func (p *Position) Open() bool {
	return p != nil && p.ReserveAmount != nil && p.ReserveAmount.Sign() > 0
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	if p.ReserveAmount != nil {
		clone.ReserveAmount = new(big.Int).Set(p.ReserveAmount)
	}
	if p.WeightedAverage != nil {
		clone.WeightedAverage = new(uint256.Int).Set(p.WeightedAverage)
	}
	return &clone
}

type storedGame struct {
	ID          uint64
	Rate        *uint256.Int
	CurrencyRef common.Address
	Name        string
	Symbol      string
	Active      bool
	CreatedAt   uint64
	UpdatedAt   uint64
}

func toStoredGame(g *Game) storedGame {
	return storedGame{
		ID:          g.ID,
		Rate:        new(uint256.Int).Set(g.Rate),
		CurrencyRef: g.CurrencyRef,
		Name:        g.Name,
		Symbol:      g.Symbol,
		Active:      g.Active,
		CreatedAt:   unixSeconds(g.CreatedAt),
		UpdatedAt:   unixSeconds(g.UpdatedAt),
	}
}

func fromStoredGame(s *storedGame) *Game {
	rate := new(uint256.Int)
	if s.Rate != nil {
		rate.Set(s.Rate)
	}
	return &Game{
		ID:          s.ID,
		Rate:        rate,
		CurrencyRef: s.CurrencyRef,
		Name:        s.Name,
		Symbol:      s.Symbol,
		Active:      s.Active,
		CreatedAt:   fromUnixSeconds(s.CreatedAt),
		UpdatedAt:   fromUnixSeconds(s.UpdatedAt),
	}
}

// RLP cannot carry negative integers, so the signed reserve amount is kept
// as a decimal string.
type storedPosition struct {
	ReserveAmount   string
	WeightedAverage *uint256.Int
	UpdatedAt       uint64
}

func toStoredPosition(p *Position) storedPosition {
	amount := "0"
	if p.ReserveAmount != nil {
		amount = p.ReserveAmount.String()
	}
	avg := new(uint256.Int)
	if p.WeightedAverage != nil {
		avg.Set(p.WeightedAverage)
	}
	return storedPosition{ReserveAmount: amount, WeightedAverage: avg, UpdatedAt: unixSeconds(p.UpdatedAt)}
}

func fromStoredPosition(gameID uint64, user common.Address, s *storedPosition) (*Position, error) {
	amount, ok := new(big.Int).SetString(s.ReserveAmount, 10)
	if !ok {
		return nil, fmt.Errorf("arcade: corrupt position reserve amount %q", s.ReserveAmount)
	}
	avg := new(uint256.Int)
	if s.WeightedAverage != nil {
		avg.Set(s.WeightedAverage)
	}
	return &Position{
		GameID:          gameID,
		User:            user,
		ReserveAmount:   amount,
		WeightedAverage: avg,
		UpdatedAt:       fromUnixSeconds(s.UpdatedAt),
	}, nil
}

func emptyPosition(gameID uint64, user common.Address) *Position {
	return &Position{GameID: gameID, User: user, ReserveAmount: new(big.Int), WeightedAverage: new(uint256.Int)}
}

func unixSeconds(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	ts := t.UTC().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func fromUnixSeconds(ts uint64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(int64(ts), 0).UTC()
}
