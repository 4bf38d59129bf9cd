package match

import (
	"encoding/json"
)

// OpCode identifica o tipo de mensagem trocada com os clientes
type OpCode int

const (
	OpMatchReady  OpCode = 1
	OpScoreSubmit OpCode = 2
	OpMatchResult OpCode = 3
)

// ReadyPayload (op 1). PVP leva os nomes dos jogadores, PVH leva uma mensagem.
type ReadyPayload struct {
	MatchType    MatchType `json:"matchType"`
	OpponentName []string  `json:"opponentName,omitempty"`
	Message      string    `json:"message,omitempty"`
}

// ScoreSubmit (op 2) é enviado pelo cliente
type ScoreSubmit struct {
	Score     *int64 `json:"score"`
	ElapsedMs *int64 `json:"elapsedMs"`
}

// ResultPayload (op 3). Winner e WinnerScore são null quando não há vencedor.
type ResultPayload struct {
	Winner      *string           `json:"winner"`
	WinnerScore *int64            `json:"winnerScore"`
	Results     map[string]Result `json:"results"`
	Payout      int64             `json:"payout"`
}

// MaxScore e MaxElapsedMs limitam os valores aceitos em op 2
const (
	MaxScore     = 1_000_000_000_000
	MaxElapsedMs = 24 * 60 * 60 * 1000
)

// DecodeScore valida o payload de op 2
func DecodeScore(data []byte) (Result, error) {
	var in ScoreSubmit
	if err := json.Unmarshal(data, &in); err != nil {
		return Result{}, ErrInvalidPayload
	}
	if in.Score == nil || in.ElapsedMs == nil ||
		*in.Score < 0 || *in.Score > MaxScore ||
		*in.ElapsedMs < 0 || *in.ElapsedMs > MaxElapsedMs {
		return Result{}, ErrInvalidPayload
	}
	return Result{Score: *in.Score, ElapsedMs: *in.ElapsedMs}, nil
}

// EncodeScore monta o payload de op 2 (usado pela API HTTP)
func EncodeScore(score, elapsedMs int64) []byte {
	b, _ := json.Marshal(ScoreSubmit{Score: &score, ElapsedMs: &elapsedMs})
	return b
}
