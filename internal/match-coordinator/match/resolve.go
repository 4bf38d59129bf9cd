package match

import (
	"context"
	"encoding/json"
	"math"
	"math/big"
	"sort"
	"strconv"

	"go.uber.org/zap"
)

// Settlement é a divisão do pote de uma partida
type Settlement struct {
	Pool       int64
	Commission int64
	Payout     int64
}

// MaxBetAmount é o maior valor de aposta cujo pote ainda cabe em int64
const MaxBetAmount = math.MaxInt64 / 2

// ComputeSettlement calcula pote, comissão e payout.
// commission = floor(pool * taxa), com a taxa lida na sua forma decimal mais
// curta (0.1 é exatamente um décimo), e payout = pool - commission.
func ComputeSettlement(betAmount int64, commissionRate float64) Settlement {
	pool := betAmount * 2
	rate, ok := new(big.Rat).SetString(strconv.FormatFloat(commissionRate, 'f', -1, 64))
	if !ok || rate.Sign() <= 0 {
		return Settlement{Pool: pool, Payout: pool}
	}
	if rate.Cmp(big.NewRat(1, 1)) >= 0 {
		return Settlement{Pool: pool, Commission: pool}
	}
	cut := new(big.Int).Mul(big.NewInt(pool), rate.Num())
	cut.Quo(cut, rate.Denom())
	commission := cut.Int64()
	return Settlement{Pool: pool, Commission: commission, Payout: pool - commission}
}

// pickWinner ordena os resultados: não-forfeit antes de forfeit, maior score,
// menor tempo e, por fim, quem entrou primeiro. Só forfeits não geram vencedor.
func pickWinner(m *Match) (Player, bool) {
	type entry struct {
		p Player
		r Result
	}
	var ranked []entry
	for id, r := range m.Results {
		if r.Forfeit {
			continue
		}
		if p, ok := m.Players[id]; ok {
			ranked = append(ranked, entry{p: p, r: r})
		}
	}
	if len(ranked) == 0 {
		return Player{}, false
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.r.Score != b.r.Score {
			return a.r.Score > b.r.Score
		}
		if a.r.ElapsedMs != b.r.ElapsedMs {
			return a.r.ElapsedMs < b.r.ElapsedMs
		}
		return a.p.Seq < b.p.Seq
	})
	return ranked[0].p, true
}

// playHouse grava o resultado da casa usando a pontuação do primeiro humano
func (mc *Machine) playHouse() {
	var house Player
	var human Result
	found := false
	for _, p := range mc.m.orderedPlayers() {
		if p.IsHouse {
			house = p
			continue
		}
		if r, ok := mc.m.Results[p.UserID]; ok && !found {
			human = r
			found = true
		}
	}
	if house.UserID == "" {
		return
	}
	mc.m.Results[house.UserID] = Result{
		Score:     HouseScore(human.Score, mc.deps.Random, mc.cfg),
		ElapsedMs: human.ElapsedMs,
	}
}

// forfeitMissing atribui resultado de desistência a quem não enviou
func (mc *Machine) forfeitMissing() {
	for id, p := range mc.m.Players {
		if p.IsHouse {
			continue
		}
		if _, ok := mc.m.Results[id]; !ok {
			mc.m.Results[id] = Result{Score: 0, ElapsedMs: ForfeitElapsedMs, Forfeit: true}
		}
	}
}

// resolve decide o vencedor e dispara liquidação, notificações e broadcast.
// Roda uma única vez: o status terminal é gravado antes de qualquer efeito.
func (mc *Machine) resolve(ctx context.Context) {
	if mc.m.Status.Terminal() {
		return
	}
	mc.m.Status = StatusCompleted

	m := mc.m
	mt := m.matchType()
	st := ComputeSettlement(m.BetAmountMinor, mc.cfg.CommissionRate)

	if m.IsHouseMatch {
		mc.playHouse()
	}

	winner, hasWinner := pickWinner(m)
	var payout int64
	if hasWinner && !winner.IsHouse {
		payout = st.Payout
		mc.settle(ctx, Order{
			Kind:    OrderPayout,
			MatchID: m.ID,
			UserID:  winner.UserID,
			Amount:  payout,
			Ref:     PayoutRef(m.ID, winner.UserID),
		})
		mc.notify(ctx, Notification{
			UserID:     winner.UserID,
			Subject:    "You won!",
			Content:    map[string]any{"payout": payout, "matchType": mt},
			Code:       NotificationMatchWon,
			Persistent: true,
		})
	}

	for _, p := range m.orderedPlayers() {
		if p.IsHouse || (hasWinner && p.UserID == winner.UserID) {
			continue
		}
		mc.notify(ctx, Notification{
			UserID:     p.UserID,
			Subject:    "You lost",
			Content:    map[string]any{"matchType": mt},
			Code:       NotificationMatchLost,
			Persistent: true,
		})
	}

	res := ResultPayload{Results: m.Results, Payout: payout}
	if hasWinner {
		name := winner.DisplayName
		score := m.Results[winner.UserID].Score
		res.Winner = &name
		res.WinnerScore = &score
	}
	mc.broadcast(ctx, OpMatchResult, res)

	fields := []zap.Field{
		zap.String("match_id", m.ID),
		zap.String("match_type", string(mt)),
		zap.Int64("pool", st.Pool),
		zap.Int64("commission", st.Commission),
		zap.Int64("payout", payout),
	}
	if hasWinner {
		fields = append(fields, zap.String("winner", winner.UserID))
	}
	mc.log.Info("match resolved", fields...)

	if mc.deps.Hooks.OnResolved != nil {
		mc.deps.Hooks.OnResolved(mt, hasWinner && winner.IsHouse)
	}
}

func (mc *Machine) settle(ctx context.Context, o Order) {
	if mc.deps.Settler == nil {
		mc.log.Error("no settler configured, manual reconciliation required",
			zap.String("kind", string(o.Kind)), zap.String("user_id", o.UserID), zap.Int64("amount", o.Amount))
		return
	}
	if err := mc.deps.Settler.Settle(ctx, o); err != nil {
		mc.log.Error("settlement failed",
			zap.String("kind", string(o.Kind)),
			zap.String("user_id", o.UserID),
			zap.Int64("amount", o.Amount),
			zap.String("ref", o.Ref),
			zap.Error(err),
		)
		if mc.deps.Hooks.OnSettlementError != nil {
			mc.deps.Hooks.OnSettlementError(o.Kind)
		}
	}
}

func (mc *Machine) notify(ctx context.Context, n Notification) {
	if mc.deps.Notifier == nil {
		return
	}
	if err := mc.deps.Notifier.Send(ctx, n); err != nil {
		mc.log.Warn("notification failed", zap.String("user_id", n.UserID), zap.Int("code", n.Code), zap.Error(err))
		if mc.deps.Hooks.OnNotifyError != nil {
			mc.deps.Hooks.OnNotifyError()
		}
	}
}

func (mc *Machine) broadcast(ctx context.Context, op OpCode, v any) {
	if mc.deps.Dispatcher == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		mc.log.Error("marshal broadcast", zap.Int("op", int(op)), zap.Error(err))
		return
	}
	if err := mc.deps.Dispatcher.Broadcast(ctx, mc.m.ID, op, b); err != nil {
		mc.log.Warn("broadcast failed", zap.String("match_id", mc.m.ID), zap.Int("op", int(op)), zap.Error(err))
	}
}
