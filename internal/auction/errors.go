package auction

import (
	"errors"
	"fmt"
)

// Errors returned by the session state machine and the allocation engine.
// All of them leave stored state unchanged.
var (
	ErrInvalidState      = errors.New("operation not allowed in current auction state")
	ErrNotFound          = errors.New("not found or not in expected status")
	ErrNoBids            = errors.New("player has no bids")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBidTooLow         = errors.New("bid is below minimum")
	ErrSameBidder        = errors.New("team already holds the highest bid")
)

// BidTooLowError reports the minimum a rejected bid had to reach.
type BidTooLowError struct {
	Amount  int
	Minimum int
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid %d is below minimum %d", e.Amount, e.Minimum)
}

func (e *BidTooLowError) Unwrap() error { return ErrBidTooLow }

// InsufficientFundsError reports a wallet that cannot cover an amount.
type InsufficientFundsError struct {
	TeamID   string
	Wallet   int
	Required int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("team %s has %d, needs %d", e.TeamID, e.Wallet, e.Required)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }
