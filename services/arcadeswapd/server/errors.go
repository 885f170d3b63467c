package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"arcadeswap/native/arcade"
	"arcadeswap/native/token"
	"arcadeswap/services/arcadeswapd/oracle"
)

var (
	errBadRequest      = errors.New("bad request")
	errUnauthenticated = errors.New("authentication required")
)

type errorClass struct {
	target error
	status int
	reason string
}

// Order matters: ErrNoCostBasis wraps ErrArithmetic.
var errorClasses = []errorClass{
	{errBadRequest, http.StatusBadRequest, "bad_request"},
	{errUnauthenticated, http.StatusUnauthorized, "authentication_required"},
	{arcade.ErrGameNotInitialized, http.StatusNotFound, "game_not_initialized"},
	{arcade.ErrDuplicateGame, http.StatusConflict, "duplicate_game"},
	{arcade.ErrRequestReplayed, http.StatusConflict, "request_replayed"},
	{arcade.ErrInvalidSignature, http.StatusUnauthorized, "invalid_signature"},
	{arcade.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{arcade.ErrRequestMismatch, http.StatusForbidden, "request_mismatch"},
	{arcade.ErrInsufficientGameCurrency, http.StatusUnprocessableEntity, "insufficient_game_currency"},
	{arcade.ErrNoCostBasis, http.StatusUnprocessableEntity, "no_cost_basis"},
	{arcade.ErrArithmetic, http.StatusUnprocessableEntity, "arithmetic"},
	{arcade.ErrInvalidAmount, http.StatusUnprocessableEntity, "invalid_amount"},
	{arcade.ErrInvalidRate, http.StatusUnprocessableEntity, "invalid_rate"},
	{arcade.ErrInvalidPrice, http.StatusUnprocessableEntity, "invalid_price"},
	{token.ErrInsufficientBalance, http.StatusUnprocessableEntity, "insufficient_reserve_balance"},
	{token.ErrInsufficientAllowance, http.StatusUnprocessableEntity, "insufficient_allowance"},
	{token.ErrZeroAddress, http.StatusUnprocessableEntity, "zero_address"},
	{arcade.ErrSignerNotConfigured, http.StatusServiceUnavailable, "signer_not_configured"},
	{oracle.ErrNoPrice, http.StatusServiceUnavailable, "oracle_unavailable"},
	{oracle.ErrStalePrice, http.StatusServiceUnavailable, "oracle_stale"},
}

// classify maps an engine error onto an HTTP status and a stable reason used
// for metrics and the audit journal.
func classify(err error) (int, string) {
	for _, class := range errorClasses {
		if errors.Is(err, class.target) {
			return class.status, class.reason
		}
	}
	return http.StatusInternalServerError, "internal"
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, reason, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: reason, Message: message})
}

func writeEngineError(w http.ResponseWriter, err error) {
	status, reason := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	writeError(w, status, reason, message)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
