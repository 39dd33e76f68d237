package gossip

import "errors"

// Sentinel errors surfaced by the settlement engine. Every failure is
// terminal for the call that raised it; no state changes when an error is
// returned.
var (
	// ErrTextTooLong rejects gossip text above MaxTextLen bytes.
	ErrTextTooLong = errors.New("gossip: text exceeds maximum length")
	// ErrNotFound indicates the referenced gossip, share or vault does not
	// exist.
	ErrNotFound = errors.New("gossip: not found")
	// ErrAlreadyRevealed rejects a second reveal of the same item.
	ErrAlreadyRevealed = errors.New("gossip: already revealed")
	// ErrNotRevealed rejects sharing an item that has not been revealed.
	ErrNotRevealed = errors.New("gossip: original not revealed")
	// ErrShareExists rejects a duplicate share of the same original by the
	// same sharer.
	ErrShareExists = errors.New("gossip: share already exists")
	// ErrInvalidPayment rejects a payment that does not equal the price.
	ErrInvalidPayment = errors.New("gossip: payment must equal the price")
	// ErrInsufficientFunds rejects a debit exceeding the payer balance.
	ErrInsufficientFunds = errors.New("gossip: insufficient balance")
	// ErrUnauthorizedWithdraw rejects a withdrawal by a non-owner.
	ErrUnauthorizedWithdraw = errors.New("gossip: unauthorized withdrawal")
)

var errNilState = errors.New("gossip engine: state not configured")
