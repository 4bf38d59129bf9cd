package match

import "errors"

// Motivos de rejeição expostos de forma síncrona ao chamador
var (
	ErrInvalidPayload    = errors.New("invalid payload")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrMatchFull         = errors.New("match full")
	ErrAlreadyStarted    = errors.New("match already started")
	ErrAlreadyJoined     = errors.New("player already in match")
	ErrAlreadySubmitted  = errors.New("result already submitted")
	ErrNotParticipant    = errors.New("not a match participant")
	ErrNotReady          = errors.New("match is not collecting results")
	ErrMatchNotFound     = errors.New("match not found")

	// ErrLedgerUnavailable é transitório: o chamador pode tentar de novo
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)
