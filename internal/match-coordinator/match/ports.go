package match

import (
	"context"
	"math/rand/v2"

	"go.uber.org/zap"
)

// OrderKind identifica o motivo de um crédito no ledger
type OrderKind string

const (
	OrderPayout OrderKind = "PAYOUT"
	OrderRefund OrderKind = "REFUND"
)

// Order é um crédito que precisa chegar ao ledger pelo menos uma vez.
// Ref é a chave de idempotência (external_ref no wallet-service).
type Order struct {
	Kind    OrderKind
	MatchID string
	UserID  string
	Amount  int64
	Ref     string
}

// PayoutRef e RefundRef geram as chaves de idempotência por partida e usuário
func PayoutRef(matchID, userID string) string { return "payout:" + matchID + ":" + userID }
func RefundRef(matchID, userID string) string { return "refund:" + matchID + ":" + userID }

// Settler registra e executa créditos (payout e estorno)
type Settler interface {
	Settle(ctx context.Context, o Order) error
}

// Códigos de notificação enviados ao notifier
const (
	NotificationMatchWon  = 101
	NotificationMatchLost = 102
)

// Notification é a mensagem entregue a um usuário fora da partida
type Notification struct {
	UserID     string
	Subject    string
	Content    map[string]any
	Code       int
	Persistent bool
}

// Notifier entrega notificações aos usuários
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// Dispatcher envia mensagens para os participantes conectados de uma partida
type Dispatcher interface {
	Broadcast(ctx context.Context, matchID string, op OpCode, payload []byte) error
}

// LabelPublisher publica o label público da partida no diretório
type LabelPublisher interface {
	PublishLabel(ctx context.Context, matchID string, l Label) error
}

// Random é a fonte de aleatoriedade do gerador da casa
type Random interface {
	Float64() float64
}

type randFunc func() float64

func (f randFunc) Float64() float64 { return f() }

// Hooks são callbacks opcionais para métricas
type Hooks struct {
	OnCreated         func()
	OnReady           func(MatchType)
	OnResolved        func(mt MatchType, houseWon bool)
	OnCancelled       func()
	OnSettlementError func(OrderKind)
	OnNotifyError     func()
}

// Deps reúne os colaboradores externos de uma partida
type Deps struct {
	Settler    Settler
	Notifier   Notifier
	Dispatcher Dispatcher
	Labels     LabelPublisher
	Random     Random
	Log        *zap.Logger
	Hooks      Hooks
}

func (d Deps) withDefaults() Deps {
	if d.Random == nil {
		d.Random = randFunc(rand.Float64)
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return d
}
