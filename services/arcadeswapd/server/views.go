package server

import (
	"time"

	"arcadeswap/native/arcade"
	"arcadeswap/services/arcadeswapd/storage"
)

type gameView struct {
	ID          uint64    `json:"id"`
	Rate        string    `json:"rate"`
	CurrencyRef string    `json:"gcToken"`
	Name        string    `json:"name"`
	Symbol      string    `json:"symbol"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func newGameView(g *arcade.Game) gameView {
	return gameView{
		ID:          g.ID,
		Rate:        g.Rate.Dec(),
		CurrencyRef: g.CurrencyRef.Hex(),
		Name:        g.Name,
		Symbol:      g.Symbol,
		Active:      g.Active,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

type positionView struct {
	GameID          uint64    `json:"gameId"`
	User            string    `json:"user"`
	ReserveAmount   string    `json:"reserveAmount"`
	WeightedAverage string    `json:"weightedAverage"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func newPositionView(p *arcade.Position) positionView {
	view := positionView{GameID: p.GameID, User: p.User.Hex(), ReserveAmount: "0", WeightedAverage: "0", UpdatedAt: p.UpdatedAt}
	if p.ReserveAmount != nil {
		view.ReserveAmount = p.ReserveAmount.String()
	}
	if p.WeightedAverage != nil {
		view.WeightedAverage = p.WeightedAverage.Dec()
	}
	return view
}

type buyView struct {
	Game        gameView     `json:"game"`
	Position    positionView `json:"position"`
	ReserveIn   string       `json:"reserveIn"`
	CurrencyOut string       `json:"currencyOut"`
	Price       string       `json:"price"`
	Digest      string       `json:"digest"`
}

type sellView struct {
	Game       gameView     `json:"game"`
	Position   positionView `json:"position"`
	CurrencyIn string       `json:"currencyIn"`
	ReserveOut string       `json:"reserveOut"`
	Digest     string       `json:"digest"`
}

type mintView struct {
	Game      gameView `json:"game"`
	Recipient string   `json:"recipient"`
	Amount    string   `json:"amount"`
	Digest    string   `json:"digest"`
}

type adminConfigView struct {
	Operator      string    `json:"operator"`
	BackendSigner string    `json:"backendSigner"`
	UpdatedBy     string    `json:"updatedBy"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func newAdminConfigView(cfg arcade.AdminConfig) adminConfigView {
	return adminConfigView{
		Operator:      cfg.Operator.Hex(),
		BackendSigner: cfg.BackendSigner.Hex(),
		UpdatedBy:     cfg.UpdatedBy.Hex(),
		UpdatedAt:     cfg.UpdatedAt,
	}
}

type operationView struct {
	ID             string    `json:"id"`
	Operation      string    `json:"operation"`
	GameID         uint64    `json:"gameId"`
	Account        string    `json:"account"`
	Digest         string    `json:"digest,omitempty"`
	Status         string    `json:"status"`
	Reason         string    `json:"reason,omitempty"`
	ReserveAmount  string    `json:"reserveAmount,omitempty"`
	CurrencyAmount string    `json:"currencyAmount,omitempty"`
	Price          string    `json:"price,omitempty"`
	DurationMicros int64     `json:"durationMicros"`
	CreatedAt      time.Time `json:"createdAt"`
}

func newOperationView(rec storage.OperationRecord) operationView {
	return operationView{
		ID:             rec.ID.String(),
		Operation:      rec.Operation,
		GameID:         rec.GameID,
		Account:        rec.Account,
		Digest:         rec.Digest,
		Status:         rec.Status,
		Reason:         rec.Reason,
		ReserveAmount:  rec.ReserveAmount,
		CurrencyAmount: rec.CurrencyAmount,
		Price:          rec.Price,
		DurationMicros: rec.DurationMicros,
		CreatedAt:      rec.CreatedAt,
	}
}

type eventView struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}
