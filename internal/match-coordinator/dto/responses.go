package dto

// MatchResponse informa a partida atribuída ao jogador
type MatchResponse struct {
	MatchID string `json:"matchId"`
	Action  string `json:"action"` // "joined" | "created"
}

// StatusResponse confirma comandos sem corpo de retorno
type StatusResponse struct {
	MatchID string `json:"matchId"`
	Status  string `json:"status"`
}

// ErrorResponse padroniza mensagens de erro
type ErrorResponse struct {
	Error string `json:"error"`
}
