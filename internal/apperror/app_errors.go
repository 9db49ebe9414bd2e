package apperror

import (
	"errors"
	"fmt"
)

// Error classes. Every specific error below wraps exactly one of them, so callers
// can branch with errors.Is on the class.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidState = errors.New("invalid state")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// authorization errors
var (
	ErrNotAPlayer         = fmt.Errorf("%w: caller is not a player of this game", ErrUnauthorized)
	ErrNotTimeoutClaimant = fmt.Errorf("%w: only the waiting player can claim a timeout", ErrUnauthorized)
	ErrInvalidSignature   = fmt.Errorf("%w: signature does not match sender", ErrUnauthorized)
	ErrFaucetDisabled     = fmt.Errorf("%w: faucet is disabled", ErrUnauthorized)
)

// state errors
var (
	ErrNotYourTurn       = fmt.Errorf("%w: it's not your turn", ErrInvalidState)
	ErrGameNotActive     = fmt.Errorf("%w: game is not active", ErrInvalidState)
	ErrGameNotJoinable   = fmt.Errorf("%w: game is not accepting players", ErrInvalidState)
	ErrGameNotFinished   = fmt.Errorf("%w: game has not reached a terminal status", ErrInvalidState)
	ErrAlreadySettled    = fmt.Errorf("%w: game is already settled", ErrInvalidState)
	ErrTimeoutDisabled   = fmt.Errorf("%w: move timeout is disabled for this contract", ErrInvalidState)
	ErrTimeoutNotReached = fmt.Errorf("%w: move timeout not reached", ErrInvalidState)
	ErrNonceMismatch     = fmt.Errorf("%w: nonce does not match the account nonce", ErrInvalidState)
)

// input errors
var (
	ErrCellOutOfRange      = fmt.Errorf("%w: cell index must be between 0 and 8", ErrInvalidInput)
	ErrCellOccupied        = fmt.Errorf("%w: cell is already occupied", ErrInvalidInput)
	ErrAlreadyJoined       = fmt.Errorf("%w: player already joined this game", ErrInvalidInput)
	ErrZeroStake           = fmt.Errorf("%w: stake must be greater than zero", ErrInvalidInput)
	ErrStakeMismatch       = fmt.Errorf("%w: stake must match the first player's stake", ErrInvalidInput)
	ErrInsufficientFunds   = fmt.Errorf("%w: insufficient funds", ErrInvalidInput)
	ErrZeroAddressTransfer = fmt.Errorf("%w: transfer to the zero address", ErrInvalidInput)
	ErrNegativeAmount      = fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	ErrInvalidFee          = fmt.Errorf("%w: fee basis points must be between 0 and 10000", ErrInvalidInput)
	ErrZeroAddressSender   = fmt.Errorf("%w: sender must not be the zero address", ErrInvalidInput)
)

var (
	ErrGameNotFound     = fmt.Errorf("%w: game", ErrNotFound)
	ErrContractNotFound = fmt.Errorf("%w: contract", ErrNotFound)

	// ErrConflict is returned when a transaction kept losing the optimistic lock.
	ErrConflict = errors.New("transaction conflict, too many concurrent writers")
)
