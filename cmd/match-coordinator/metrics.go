package main

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/radieske/skill-wager-platform/internal/match-coordinator/match"
)

// coordinatorMetrics agrupa os contadores expostos em /metrics
type coordinatorMetrics struct {
	requests      *prometheus.CounterVec
	compensations prometheus.Counter
	created       prometheus.Counter
	ready         *prometheus.CounterVec
	resolved      *prometheus.CounterVec
	cancelled     prometheus.Counter
	settleErrors  *prometheus.CounterVec
	notifyErrors  prometheus.Counter
	settlements   *prometheus.CounterVec
}

func newCoordinatorMetrics() *coordinatorMetrics {
	m := &coordinatorMetrics{
		requests:      prometheus.NewCounterVec(prometheus.CounterOpts{Name: "match_requests_total", Help: "pedidos de partida por resultado"}, []string{"action"}),
		compensations: prometheus.NewCounter(prometheus.CounterOpts{Name: "match_intake_compensations_total", Help: "débitos estornados na entrada"}),
		created:       prometheus.NewCounter(prometheus.CounterOpts{Name: "matches_created_total", Help: "partidas criadas"}),
		ready:         prometheus.NewCounterVec(prometheus.CounterOpts{Name: "matches_ready_total", Help: "partidas iniciadas por tipo"}, []string{"type"}),
		resolved:      prometheus.NewCounterVec(prometheus.CounterOpts{Name: "matches_resolved_total", Help: "partidas resolvidas"}, []string{"type", "house_won"}),
		cancelled:     prometheus.NewCounter(prometheus.CounterOpts{Name: "matches_cancelled_total", Help: "partidas canceladas"}),
		settleErrors:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "match_settlement_errors_total", Help: "falhas ao registrar créditos"}, []string{"kind"}),
		notifyErrors:  prometheus.NewCounter(prometheus.CounterOpts{Name: "match_notify_errors_total", Help: "falhas ao publicar notificações"}),
		settlements:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "settlements_total", Help: "créditos por tipo e resultado"}, []string{"kind", "outcome"}),
	}
	prometheus.MustRegister(m.requests, m.compensations, m.created, m.ready, m.resolved,
		m.cancelled, m.settleErrors, m.notifyErrors, m.settlements)
	return m
}

// hooks liga os callbacks das partidas aos contadores
func (m *coordinatorMetrics) hooks() match.Hooks {
	return match.Hooks{
		OnCreated: func() { m.created.Inc() },
		OnReady:   func(mt match.MatchType) { m.ready.WithLabelValues(string(mt)).Inc() },
		OnResolved: func(mt match.MatchType, houseWon bool) {
			m.resolved.WithLabelValues(string(mt), strconv.FormatBool(houseWon)).Inc()
		},
		OnCancelled:       func() { m.cancelled.Inc() },
		OnSettlementError: func(k match.OrderKind) { m.settleErrors.WithLabelValues(string(k)).Inc() },
		OnNotifyError:     func() { m.notifyErrors.Inc() },
	}
}
