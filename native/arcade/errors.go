package arcade

import (
	"errors"
	"fmt"
)

var (
	// ErrGameNotInitialized indicates the game identifier has not been configured.
	ErrGameNotInitialized = errors.New("arcade: not initialized game")
	// ErrDuplicateGame indicates a game with the identifier already exists.
	ErrDuplicateGame = errors.New("arcade: game already exists")
	// ErrInvalidRate indicates a zero or missing conversion rate.
	ErrInvalidRate = errors.New("arcade: rate must be positive")

	// ErrInvalidSignature indicates the request was not signed by the backend signer.
	ErrInvalidSignature = errors.New("arcade: invalid signature")
	// ErrRequestMismatch indicates the signed payload does not match the call.
	ErrRequestMismatch = errors.New("arcade: request mismatch")
	// ErrRequestReplayed indicates the signed request was already consumed.
	ErrRequestReplayed = errors.New("arcade: request already used")
	// ErrUnauthorized indicates a privileged call from a non-operator.
	ErrUnauthorized = errors.New("arcade: caller is not the operator")
	// ErrSignerNotConfigured indicates no backend signer has been set.
	ErrSignerNotConfigured = errors.New("arcade: backend signer not configured")

	// ErrInsufficientGameCurrency indicates a sell exceeding the currency balance.
	ErrInsufficientGameCurrency = errors.New("arcade: not enough game currency")
	// ErrInvalidAmount indicates a zero amount or an operation that would move nothing.
	ErrInvalidAmount = errors.New("arcade: invalid amount")
	// ErrInvalidPrice indicates the oracle returned a zero price.
	ErrInvalidPrice = errors.New("arcade: invalid oracle price")

	// ErrArithmetic indicates an overflow, underflow or division fault.
	ErrArithmetic = errors.New("arcade: arithmetic fault")
	// ErrNoCostBasis indicates a sell against a position that never recorded
	// an acquisition price.
	ErrNoCostBasis = fmt.Errorf("%w: position has no acquisition price", ErrArithmetic)
)
