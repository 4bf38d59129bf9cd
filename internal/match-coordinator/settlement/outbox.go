package settlement

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/skill-wager-platform/internal/match-coordinator/match"
	"github.com/radieske/skill-wager-platform/pkg/contracts/events"
)

const (
	StatusPending = "PENDING"
	StatusSettled = "SETTLED"
	StatusFailed  = "FAILED"
)

// Crediter é o lado de crédito do ledger
type Crediter interface {
	Credit(ctx context.Context, userID string, amount int64, ref string) error
}

// Writer publica dead letters (kafka.Writer)
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Outbox grava cada crédito em match_settlements antes de chamar o ledger.
// Créditos que falham ficam PENDING e são repetidos pelo sweeper até
// MaxAttempts; depois disso viram FAILED e vão para a DLQ.
type Outbox struct {
	DB          *sql.DB
	Ledger      Crediter
	DLQ         Writer // opcional
	Log         *zap.Logger
	MaxAttempts int
	BatchSize   int
	// idade mínima de uma linha PENDING antes do sweeper pegá-la
	MinAge time.Duration

	OnSettled func(kind string)
	OnRetry   func(kind string)
	OnFailed  func(kind string)
}

type pending struct {
	ID       string
	Kind     string
	MatchID  string
	UserID   string
	Amount   int64
	Ref      string
	Attempts int
}

// NewOutbox cria o outbox com os limites padrão
func NewOutbox(db *sql.DB, ledger Crediter, dlq Writer, log *zap.Logger, maxAttempts int) *Outbox {
	if log == nil {
		log = zap.NewNop()
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Outbox{
		DB:          db,
		Ledger:      ledger,
		DLQ:         dlq,
		Log:         log,
		MaxAttempts: maxAttempts,
		BatchSize:   100,
		MinAge:      5 * time.Second,
	}
}

// Settle implementa match.Settler. Se a linha foi gravada, a falha do ledger
// não é erro: o sweeper continua tentando.
func (o *Outbox) Settle(ctx context.Context, order match.Order) error {
	p := pending{
		ID:      uuid.NewString(),
		Kind:    string(order.Kind),
		MatchID: order.MatchID,
		UserID:  order.UserID,
		Amount:  order.Amount,
		Ref:     order.Ref,
	}

	var id string
	err := o.DB.QueryRowContext(ctx, `
		INSERT INTO match_settlements(id, kind, match_id, user_id, amount_minor, external_ref, status, attempts)
		VALUES($1,$2,NULLIF($3,''),$4,$5,$6,'PENDING',0)
		ON CONFLICT (external_ref) DO NOTHING
		RETURNING id`,
		p.ID, p.Kind, p.MatchID, p.UserID, p.Amount, p.Ref).Scan(&id)
	if err == sql.ErrNoRows {
		o.Log.Info("settlement already recorded", zap.String("external_ref", p.Ref))
		return nil
	}
	if err != nil {
		// sem registro não há retry; tenta uma vez direto no ledger
		o.Log.Error("settlement insert failed, crediting directly", zap.String("external_ref", p.Ref), zap.Error(err))
		if cerr := o.Ledger.Credit(ctx, p.UserID, p.Amount, p.Ref); cerr != nil {
			return fmt.Errorf("record settlement: %w; credit: %w", err, cerr)
		}
		return nil
	}

	_ = o.attempt(ctx, p)
	return nil
}

// Sweep repete créditos PENDING. Retorna quantos foram liquidados.
func (o *Outbox) Sweep(ctx context.Context) (int, error) {
	rows, err := o.DB.QueryContext(ctx, `
		SELECT id, kind, COALESCE(match_id,''), user_id, amount_minor, external_ref, attempts
		FROM match_settlements
		WHERE status='PENDING' AND updated_at < $1
		ORDER BY created_at
		LIMIT $2`, time.Now().Add(-o.MinAge), o.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending settlements: %w", err)
	}
	var batch []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.ID, &p.Kind, &p.MatchID, &p.UserID, &p.Amount, &p.Ref, &p.Attempts); err != nil {
			rows.Close()
			return 0, err
		}
		batch = append(batch, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	settled := 0
	for _, p := range batch {
		if err := o.attempt(ctx, p); err == nil {
			settled++
		}
	}
	if len(batch) > 0 {
		o.Log.Info("settlement sweep", zap.Int("pending", len(batch)), zap.Int("settled", settled))
	}
	return settled, nil
}

// attempt chama o ledger e registra o resultado
func (o *Outbox) attempt(ctx context.Context, p pending) error {
	log := o.Log.With(
		zap.String("settlement_id", p.ID),
		zap.String("kind", p.Kind),
		zap.String("user_id", p.UserID),
		zap.Int64("amount", p.Amount),
		zap.String("external_ref", p.Ref),
	)

	cerr := o.Ledger.Credit(ctx, p.UserID, p.Amount, p.Ref)
	if cerr == nil {
		if _, err := o.DB.ExecContext(ctx,
			`UPDATE match_settlements SET status='SETTLED', attempts=attempts+1, last_error=NULL, updated_at=NOW() WHERE id=$1`,
			p.ID); err != nil {
			log.Warn("settlement mark settled failed", zap.Error(err))
		}
		log.Info("settlement applied")
		if o.OnSettled != nil {
			o.OnSettled(p.Kind)
		}
		return nil
	}

	var attempts int
	if err := o.DB.QueryRowContext(ctx,
		`UPDATE match_settlements SET attempts=attempts+1, last_error=$2, updated_at=NOW() WHERE id=$1 RETURNING attempts`,
		p.ID, cerr.Error()).Scan(&attempts); err != nil {
		log.Warn("settlement attempt update failed", zap.Error(err))
		return cerr
	}

	if attempts >= o.MaxAttempts {
		o.markFailed(ctx, log, p, attempts, cerr)
		return cerr
	}
	log.Warn("settlement attempt failed, will retry", zap.Int("attempts", attempts), zap.Error(cerr))
	if o.OnRetry != nil {
		o.OnRetry(p.Kind)
	}
	return cerr
}

func (o *Outbox) markFailed(ctx context.Context, log *zap.Logger, p pending, attempts int, cause error) {
	if _, err := o.DB.ExecContext(ctx,
		`UPDATE match_settlements SET status='FAILED', updated_at=NOW() WHERE id=$1`, p.ID); err != nil {
		log.Warn("settlement mark failed failed", zap.Error(err))
	}
	log.Error("settlement exhausted retries, manual reconciliation required",
		zap.Int("attempts", attempts), zap.Error(cause))
	if o.OnFailed != nil {
		o.OnFailed(p.Kind)
	}

	if o.DLQ == nil {
		return
	}
	dl := events.SettlementDeadLetter{
		SettlementID: p.ID,
		Kind:         p.Kind,
		MatchID:      p.MatchID,
		UserID:       p.UserID,
		AmountMinor:  p.Amount,
		ExternalRef:  p.Ref,
		Attempts:     attempts,
		LastError:    cause.Error(),
		Ts:           time.Now().UTC(),
	}
	b, _ := json.Marshal(dl)
	if err := o.DLQ.WriteMessages(ctx, kafka.Message{Key: []byte(p.Ref), Value: b}); err != nil {
		log.Error("settlement dlq write failed", zap.Error(err))
	}
}
