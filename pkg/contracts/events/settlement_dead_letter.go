package events

import "time"

// Crédito (payout ou estorno) que esgotou as tentativas no ledger.
// Vai para a DLQ para reconciliação manual.
type SettlementDeadLetter struct {
	SettlementID string    `json:"settlementId"`
	Kind         string    `json:"kind"` // "PAYOUT" | "REFUND"
	MatchID      string    `json:"matchId,omitempty"`
	UserID       string    `json:"userId"`
	AmountMinor  int64     `json:"amount_minor"`
	ExternalRef  string    `json:"external_ref"`
	Attempts     int       `json:"attempts"`
	LastError    string    `json:"lastError"`
	Ts           time.Time `json:"ts"`
}
