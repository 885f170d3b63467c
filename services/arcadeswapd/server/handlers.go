package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"arcadeswap/native/arcade"
	"arcadeswap/observability"
	"arcadeswap/services/arcadeswapd/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDomain(w http.ResponseWriter, r *http.Request) {
	domain := s.engine.Domain()
	writeJSON(w, http.StatusOK, map[string]string{
		"name":              domain.Name,
		"version":           domain.Version,
		"chainId":           domain.ChainID.String(),
		"verifyingContract": domain.VerifyingContract.Hex(),
		"separator":         domain.Separator().Hex(),
		"requestTypeHash":   arcade.RequestTypeHash.Hex(),
	})
}

func (s *Server) handleOraclePrice(w http.ResponseWriter, r *http.Request) {
	if s.oracle == nil {
		writeError(w, http.StatusServiceUnavailable, "oracle_unavailable", "oracle not configured")
		return
	}
	asset := s.engine.ReserveAsset()
	price, err := s.oracle.Price(asset)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"asset": asset, "price": price.Dec()})
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	var games []*arcade.Game
	if err := s.read(func() (err error) {
		games, err = s.engine.Games()
		return err
	}); err != nil {
		writeEngineError(w, err)
		return
	}
	out := make([]gameView, 0, len(games))
	for _, g := range games {
		out = append(out, newGameView(g))
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": out})
}

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	id, err := gameIDParam(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var game *arcade.Game
	if err := s.read(func() (err error) {
		game, err = s.engine.Game(id)
		return err
	}); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newGameView(game))
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	id, err := gameIDParam(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	account, err := addressParam(chi.URLParam(r, "account"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var position *arcade.Position
	if err := s.read(func() (err error) {
		position, err = s.engine.Position(id, account)
		return err
	}); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPositionView(position))
}

func (s *Server) handleCurrencyBalance(w http.ResponseWriter, r *http.Request) {
	id, err := gameIDParam(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	account, err := addressParam(chi.URLParam(r, "account"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var balance *uint256.Int
	if err := s.read(func() (err error) {
		balance, err = s.engine.CurrencyBalance(id, account)
		return err
	}); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"gameId": id, "account": account.Hex(), "balance": balance.Dec()})
}

func (s *Server) handleReserveAccount(w http.ResponseWriter, r *http.Request) {
	account, err := addressParam(chi.URLParam(r, "account"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var balance, allowance *uint256.Int
	if err := s.read(func() (err error) {
		if balance, err = s.reserve.BalanceOf(account); err != nil {
			return err
		}
		allowance, err = s.reserve.Allowance(account, s.engine.Address())
		return err
	}); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":     s.engine.ReserveAsset(),
		"account":   account.Hex(),
		"balance":   balance.Dec(),
		"allowance": allowance.Dec(),
	})
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	s.runSwap(w, r, "buy", func(caller common.Address, req *arcade.SignedRequest, rec *storage.OperationRecord) (any, error) {
		res, err := s.engine.Buy(caller, req)
		if err != nil {
			return nil, err
		}
		rec.Digest = res.Digest.Hex()
		rec.ReserveAmount = res.ReserveIn.Dec()
		rec.CurrencyAmount = res.CurrencyOut.Dec()
		rec.Price = res.Price.Dec()
		return buyView{
			Game:        newGameView(res.Game),
			Position:    newPositionView(res.Position),
			ReserveIn:   res.ReserveIn.Dec(),
			CurrencyOut: res.CurrencyOut.Dec(),
			Price:       res.Price.Dec(),
			Digest:      res.Digest.Hex(),
		}, nil
	})
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	s.runSwap(w, r, "sell", func(caller common.Address, req *arcade.SignedRequest, rec *storage.OperationRecord) (any, error) {
		res, err := s.engine.Sell(caller, req)
		if err != nil {
			return nil, err
		}
		rec.Digest = res.Digest.Hex()
		rec.ReserveAmount = res.ReserveOut.Dec()
		rec.CurrencyAmount = res.CurrencyIn.Dec()
		return sellView{
			Game:       newGameView(res.Game),
			Position:   newPositionView(res.Position),
			CurrencyIn: res.CurrencyIn.Dec(),
			ReserveOut: res.ReserveOut.Dec(),
			Digest:     res.Digest.Hex(),
		}, nil
	})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	s.runSwap(w, r, "mint", func(caller common.Address, req *arcade.SignedRequest, rec *storage.OperationRecord) (any, error) {
		res, err := s.engine.Mint(caller, req)
		if err != nil {
			return nil, err
		}
		rec.Digest = res.Digest.Hex()
		rec.CurrencyAmount = res.Amount.Dec()
		return mintView{
			Game:      newGameView(res.Game),
			Recipient: res.Recipient.Hex(),
			Amount:    res.Amount.Dec(),
			Digest:    res.Digest.Hex(),
		}, nil
	})
}

type swapFunc func(caller common.Address, req *arcade.SignedRequest, rec *storage.OperationRecord) (any, error)

// runSwap decodes a signed request, executes it under the engine lock and
// journals the outcome whether or not it succeeded.
func (s *Server) runSwap(w http.ResponseWriter, r *http.Request, op string, exec swapFunc) {
	start := time.Now()
	caller, err := callerAccount(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var req arcade.SignedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeEngineError(w, err)
		return
	}
	rec := &storage.OperationRecord{Operation: op, Account: strings.ToLower(caller.Hex())}
	if req.GameID != nil && req.GameID.IsUint64() {
		rec.GameID = req.GameID.Uint64()
	}
	var view any
	err = s.mutate(func() (err error) {
		view, err = exec(caller, &req, rec)
		return err
	})
	elapsed := time.Since(start)
	reason := ""
	if err != nil {
		_, reason = classify(err)
	}
	observability.Swap().Observe(op, elapsed, reason)
	s.journal(r.Context(), rec, elapsed, reason)
	if err != nil {
		s.logger.Warn("swap rejected",
			slog.String("operation", op),
			slog.Uint64("gameId", rec.GameID),
			slog.String("reason", reason),
			slog.Any("error", err))
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAdminConfig(w http.ResponseWriter, r *http.Request) {
	var cfg arcade.AdminConfig
	if err := s.read(func() (err error) {
		cfg, err = s.engine.AdminConfig()
		return err
	}); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAdminConfigView(cfg))
}

type createGameRequest struct {
	ID     uint64 `json:"id"`
	Rate   string `json:"rate"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var body createGameRequest
	caller, rate, err := s.adminInput(w, r, &body, func() string { return body.Rate })
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var game *arcade.Game
	err = s.runAdmin(r, "create_game", caller, body.ID, func() (err error) {
		game, err = s.engine.CreateGame(caller, body.ID, rate, body.Name, body.Symbol)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newGameView(game))
}

type setRateRequest struct {
	Rate string `json:"rate"`
}

func (s *Server) handleSetRate(w http.ResponseWriter, r *http.Request) {
	id, err := gameIDParam(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var body setRateRequest
	caller, rate, err := s.adminInput(w, r, &body, func() string { return body.Rate })
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var game *arcade.Game
	err = s.runAdmin(r, "set_rate", caller, id, func() (err error) {
		game, err = s.engine.SetRate(caller, id, rate)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newGameView(game))
}

type setSignerRequest struct {
	Signer string `json:"signer"`
}

func (s *Server) handleSetSigner(w http.ResponseWriter, r *http.Request) {
	var body setSignerRequest
	caller, _, err := s.adminInput(w, r, &body, nil)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	signer, err := addressParam(body.Signer)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var cfg arcade.AdminConfig
	err = s.runAdmin(r, "set_signer", caller, 0, func() (err error) {
		cfg, err = s.engine.SetBackendSigner(caller, signer)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAdminConfigView(cfg))
}

type transferOperatorRequest struct {
	Operator string `json:"operator"`
}

func (s *Server) handleTransferOperator(w http.ResponseWriter, r *http.Request) {
	var body transferOperatorRequest
	caller, _, err := s.adminInput(w, r, &body, nil)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	next, err := addressParam(body.Operator)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var cfg arcade.AdminConfig
	err = s.runAdmin(r, "transfer_operator", caller, 0, func() (err error) {
		cfg, err = s.engine.TransferOperator(caller, next)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAdminConfigView(cfg))
}

type approveRequest struct {
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

// handleApprove records a reserve allowance from owner to the engine on the
// owner's behalf. It exists for custodial deployments where the operator
// manages player reserve accounts.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var body approveRequest
	caller, amount, err := s.adminInput(w, r, &body, func() string { return body.Amount })
	if err != nil {
		writeEngineError(w, err)
		return
	}
	owner, err := addressParam(body.Owner)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	err = s.runAdmin(r, "approve", caller, 0, func() error {
		if err := s.engine.RequireOperator(caller); err != nil {
			return err
		}
		return s.reserve.Approve(owner, s.engine.Address(), amount)
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"owner":     owner.Hex(),
		"spender":   s.engine.Address().Hex(),
		"allowance": amount.Dec(),
	})
}

func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit_unavailable", "audit journal not configured")
		return
	}
	query := r.URL.Query()
	filter := storage.OperationFilter{Account: query.Get("account")}
	if raw := strings.TrimSpace(query.Get("gameId")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeEngineError(w, fmt.Errorf("%w: gameId %q", errBadRequest, raw))
			return
		}
		filter.GameID = &id
	}
	limit, err := limitParam(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	filter.Limit = limit
	records, err := s.audit.ListOperations(r.Context(), filter)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	out := make([]operationView, 0, len(records))
	for _, rec := range records {
		out = append(out, newOperationView(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": out})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit_unavailable", "audit journal not configured")
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	records, err := s.audit.ListEvents(r.Context(), r.URL.Query().Get("type"), limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	out := make([]eventView, 0, len(records))
	for _, rec := range records {
		view := eventView{ID: rec.ID.String(), Type: rec.Type, CreatedAt: rec.CreatedAt, Attributes: map[string]string{}}
		if err := json.Unmarshal([]byte(rec.Attributes), &view.Attributes); err != nil {
			s.logger.Warn("corrupt audit event", slog.String("id", view.ID), slog.Any("error", err))
		}
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

// adminInput resolves the authenticated account and decodes body. When
// amount is non-nil the string it returns is parsed as an unsigned integer.
func (s *Server) adminInput(w http.ResponseWriter, r *http.Request, body any, amount func() string) (common.Address, *uint256.Int, error) {
	caller, err := callerAccount(r)
	if err != nil {
		return common.Address{}, nil, err
	}
	if err := decodeJSON(w, r, body); err != nil {
		return common.Address{}, nil, err
	}
	if amount == nil {
		return caller, nil, nil
	}
	raw := amount()
	value, err := arcade.ParseAmount(raw)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("%w: amount %q: %v", errBadRequest, raw, err)
	}
	return caller, value, nil
}

func (s *Server) runAdmin(r *http.Request, op string, caller common.Address, gameID uint64, fn func() error) error {
	start := time.Now()
	err := s.mutate(fn)
	elapsed := time.Since(start)
	reason := ""
	if err != nil {
		_, reason = classify(err)
		s.logger.Warn("admin call rejected", slog.String("operation", op), slog.String("reason", reason), slog.Any("error", err))
	}
	s.journal(r.Context(), &storage.OperationRecord{Operation: op, GameID: gameID, Account: strings.ToLower(caller.Hex())}, elapsed, reason)
	return err
}

func (s *Server) read(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// mutate runs fn under the engine lock, committing its writes on success
// and dropping them on failure. Events emitted by fn are released only after
// the commit succeeds.
func (s *Server) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(); err != nil {
		s.state.Discard()
		s.dropEvents()
		return err
	}
	if err := s.state.Commit(); err != nil {
		s.state.Discard()
		s.dropEvents()
		return fmt.Errorf("commit state: %w", err)
	}
	if s.events != nil {
		s.events.Flush()
	}
	return nil
}

func (s *Server) dropEvents() {
	if s.events == nil {
		return
	}
	if n := s.events.Drop(); n > 0 {
		s.logger.Warn("dropped events of uncommitted operation", slog.Int("count", n))
	}
}

func (s *Server) journal(ctx context.Context, rec *storage.OperationRecord, elapsed time.Duration, reason string) {
	if s.audit == nil {
		return
	}
	rec.Status = storage.StatusOK
	if reason != "" {
		rec.Status = storage.StatusFailed
		rec.Reason = reason
	}
	rec.DurationMicros = elapsed.Microseconds()
	if err := s.audit.RecordOperation(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Error("audit write failed", slog.String("operation", rec.Operation), slog.Any("error", err))
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	return nil
}

// callerAccount returns the account authenticated by the route middleware.
func callerAccount(r *http.Request) (common.Address, error) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok || principal.Account == (common.Address{}) {
		return common.Address{}, errUnauthenticated
	}
	return principal.Account, nil
}

func addressParam(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%w: invalid address %q", errBadRequest, raw)
	}
	return common.HexToAddress(trimmed), nil
}

func gameIDParam(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: game id %q", errBadRequest, raw)
	}
	return id, nil
}

func limitParam(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("%w: limit %q", errBadRequest, raw)
	}
	return limit, nil
}
