package match

import (
	"sort"
	"time"
)

// Status representa a fase de uma partida do ponto de vista do coordenador.
// "playing" e "submitted" são sub-fases vistas pelo cliente dentro de StatusReady.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal indica que a partida não aceita mais eventos
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// MatchType diferencia jogador vs jogador e jogador vs casa
type MatchType string

const (
	TypePVP MatchType = "PVP"
	TypePVH MatchType = "PVH"
)

// Player é um participante da partida. Imutável depois de adicionado.
// Seq guarda a ordem de entrada e é usado no desempate.
type Player struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	IsHouse     bool   `json:"isHouse"`
	Seq         int    `json:"-"`
}

// Result é o resultado enviado por um participante (no máximo um por partida)
type Result struct {
	Score     int64 `json:"score"`
	ElapsedMs int64 `json:"elapsedMs"`
	Forfeit   bool  `json:"-"`
}

// Match é o estado autoritativo de uma sessão de aposta
type Match struct {
	ID             string
	GameID         string
	BetAmountMinor int64
	Status         Status
	Players        map[string]Player
	Results        map[string]Result
	IsHouseMatch   bool
	WaitDeadline   time.Time
	PlayDeadline   time.Time
	CreatedAt      time.Time
	CreatorID      string
}

// Label é o metadado público usado pelo diretório de matchmaking
type Label struct {
	GameID    string    `json:"gameId"`
	BetAmount int64     `json:"betAmount"`
	Status    Status    `json:"status"`
	MatchType MatchType `json:"matchType,omitempty"`
}

// Snapshot é uma cópia somente leitura da partida, segura para sair do ator
type Snapshot struct {
	ID           string            `json:"matchId"`
	GameID       string            `json:"gameId"`
	BetAmount    int64             `json:"betAmount"`
	Status       Status            `json:"status"`
	MatchType    MatchType         `json:"matchType"`
	Players      []Player          `json:"players"`
	Results      map[string]Result `json:"results"`
	IsHouseMatch bool              `json:"isHouseMatch"`
	WaitDeadline time.Time         `json:"waitDeadline"`
	PlayDeadline time.Time         `json:"playDeadline,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	CreatorID    string            `json:"creatorId"`
}

// HasHuman indica se userID é um participante humano da partida
func (s Snapshot) HasHuman(userID string) bool {
	for _, p := range s.Players {
		if p.UserID == userID && !p.IsHouse {
			return true
		}
	}
	return false
}

func (m *Match) matchType() MatchType {
	if m.IsHouseMatch {
		return TypePVH
	}
	return TypePVP
}

// orderedPlayers devolve os jogadores em ordem de entrada
func (m *Match) orderedPlayers() []Player {
	out := make([]Player, 0, len(m.Players))
	for _, p := range m.Players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (m *Match) humanCount() int {
	n := 0
	for _, p := range m.Players {
		if !p.IsHouse {
			n++
		}
	}
	return n
}

func (m *Match) label() Label {
	l := Label{GameID: m.GameID, BetAmount: m.BetAmountMinor, Status: m.Status}
	if m.Status != StatusWaiting {
		l.MatchType = m.matchType()
	}
	return l
}

func (m *Match) snapshot() Snapshot {
	results := make(map[string]Result, len(m.Results))
	for k, v := range m.Results {
		results[k] = v
	}
	return Snapshot{
		ID:           m.ID,
		GameID:       m.GameID,
		BetAmount:    m.BetAmountMinor,
		Status:       m.Status,
		MatchType:    m.matchType(),
		Players:      m.orderedPlayers(),
		Results:      results,
		IsHouseMatch: m.IsHouseMatch,
		WaitDeadline: m.WaitDeadline,
		PlayDeadline: m.PlayDeadline,
		CreatedAt:    m.CreatedAt,
		CreatorID:    m.CreatorID,
	}
}
