package dto

type DepositRequest struct {
	UserID      string `json:"userId"`
	AmountMinor int64  `json:"amount_minor"`
	ExternalRef string `json:"external_ref,omitempty"` // opcional p/ idempotência simples
}

// MovementRequest é usado por debit e credit. ExternalRef é obrigatório:
// repetir a mesma ref não move saldo de novo.
type MovementRequest struct {
	UserID      string `json:"userId"`
	AmountMinor int64  `json:"amount_minor"`
	ExternalRef string `json:"external_ref"` // ex: stake:<ticket>, payout:<match>:<user>
}
