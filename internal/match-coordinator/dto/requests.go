package dto

// MatchRequest é o corpo de POST /v1/matches
type MatchRequest struct {
	GameID      string `json:"gameId"`
	BetAmount   int64  `json:"betAmount"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
}

// LeaveRequest é o corpo de POST /v1/matches/{id}/leave
type LeaveRequest struct {
	UserID string `json:"userId"`
}

// ScoreRequest é o corpo de POST /v1/matches/{id}/scores.
// Ponteiros para diferenciar campo ausente de zero.
type ScoreRequest struct {
	UserID    string `json:"userId"`
	Score     *int64 `json:"score"`
	ElapsedMs *int64 `json:"elapsedMs"`
}
