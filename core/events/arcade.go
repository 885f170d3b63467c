package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"arcadeswap/core/types"
)

const (
	TypeGameCreated          = "arcade.game.created"
	TypeGameRateUpdated      = "arcade.game.rate_updated"
	TypeCurrencyBought       = "arcade.swap.bought"
	TypeCurrencySold         = "arcade.swap.sold"
	TypeCurrencyMinted       = "arcade.swap.minted"
	TypeBackendSignerUpdated = "arcade.admin.signer_updated"
	TypeOperatorTransferred  = "arcade.admin.operator_transferred"
)

// GameCreated is emitted when the operator configures a new game.
type GameCreated struct {
	GameID      uint64
	CurrencyRef common.Address
	Rate        *uint256.Int
	Name        string
	Symbol      string
}

func (GameCreated) EventType() string { return TypeGameCreated }

func (e GameCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeGameCreated,
		Attributes: map[string]string{
			"gameId":   uintToString(e.GameID),
			"currency": formatAddress(e.CurrencyRef),
			"rate":     formatAmount(e.Rate),
			"name":     e.Name,
			"symbol":   e.Symbol,
		},
	}
}

type GameRateUpdated struct {
	GameID uint64
	Rate   *uint256.Int
}

func (GameRateUpdated) EventType() string { return TypeGameRateUpdated }

func (e GameRateUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeGameRateUpdated,
		Attributes: map[string]string{
			"gameId": uintToString(e.GameID),
			"rate":   formatAmount(e.Rate),
		},
	}
}

// CurrencyBought records reserve exchanged for game currency at the live
// oracle price.
type CurrencyBought struct {
	GameID          uint64
	User            common.Address
	ReserveIn       *uint256.Int
	CurrencyOut     *uint256.Int
	Price           *uint256.Int
	WeightedAverage *uint256.Int
	ReserveAmount   *big.Int
}

func (CurrencyBought) EventType() string { return TypeCurrencyBought }

func (e CurrencyBought) Event() *types.Event {
	return &types.Event{
		Type: TypeCurrencyBought,
		Attributes: map[string]string{
			"gameId":          uintToString(e.GameID),
			"user":            formatAddress(e.User),
			"reserveIn":       formatAmount(e.ReserveIn),
			"currencyOut":     formatAmount(e.CurrencyOut),
			"price":           formatAmount(e.Price),
			"weightedAverage": formatAmount(e.WeightedAverage),
			"reserveAmount":   formatSigned(e.ReserveAmount),
		},
	}
}

// CurrencySold records game currency redeemed at the position's cost basis.
type CurrencySold struct {
	GameID          uint64
	User            common.Address
	CurrencyIn      *uint256.Int
	ReserveOut      *uint256.Int
	WeightedAverage *uint256.Int
	ReserveAmount   *big.Int
}

func (CurrencySold) EventType() string { return TypeCurrencySold }

func (e CurrencySold) Event() *types.Event {
	return &types.Event{
		Type: TypeCurrencySold,
		Attributes: map[string]string{
			"gameId":          uintToString(e.GameID),
			"user":            formatAddress(e.User),
			"currencyIn":      formatAmount(e.CurrencyIn),
			"reserveOut":      formatAmount(e.ReserveOut),
			"weightedAverage": formatAmount(e.WeightedAverage),
			"reserveAmount":   formatSigned(e.ReserveAmount),
		},
	}
}

// CurrencyMinted records a privileged credit that bypasses the cost basis.
type CurrencyMinted struct {
	GameID    uint64
	Maker     common.Address
	Recipient common.Address
	Amount    *uint256.Int
}

func (CurrencyMinted) EventType() string { return TypeCurrencyMinted }

func (e CurrencyMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeCurrencyMinted,
		Attributes: map[string]string{
			"gameId":    uintToString(e.GameID),
			"maker":     formatAddress(e.Maker),
			"recipient": formatAddress(e.Recipient),
			"amount":    formatAmount(e.Amount),
		},
	}
}

type BackendSignerUpdated struct {
	Signer    common.Address
	UpdatedBy common.Address
}

func (BackendSignerUpdated) EventType() string { return TypeBackendSignerUpdated }

func (e BackendSignerUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeBackendSignerUpdated,
		Attributes: map[string]string{
			"signer":    formatAddress(e.Signer),
			"updatedBy": formatAddress(e.UpdatedBy),
		},
	}
}

type OperatorTransferred struct {
	Previous common.Address
	Operator common.Address
}

func (OperatorTransferred) EventType() string { return TypeOperatorTransferred }

func (e OperatorTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeOperatorTransferred,
		Attributes: map[string]string{
			"previous": formatAddress(e.Previous),
			"operator": formatAddress(e.Operator),
		},
	}
}
