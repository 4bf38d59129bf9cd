package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/skill-wager-platform/pkg/contracts/events"
)

// Reader é o subconjunto de *kafka.Reader usado pelo processor
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Writer publica mensagens rejeitadas na DLQ
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Store persiste notificações; inserted=false indica reentrega já gravada
type Store interface {
	Save(ctx context.Context, n events.MatchNotification) (inserted bool, err error)
}

// Processor consome match_notifications e persiste as notificações persistentes.
// O offset só é confirmado depois de gravar (ou mandar para a DLQ).
type Processor struct {
	Log     *zap.Logger
	Reader  Reader
	Store   Store
	DLQ     Writer // opcional
	Retries int
	Backoff time.Duration

	OnConsumed func()       // métricas (counter++)
	OnStored   func()       // métricas
	OnSkipped  func()       // não persistente ou duplicada
	OnError    func(string) // métricas por fase
}

// Run inicia o loop principal de consumo até o contexto ser cancelado
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.fail("read")
			if !sleep(ctx, 500*time.Millisecond) {
				return ctx.Err()
			}
			continue
		}

		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		p.handle(ctx, m)

		if err := p.Reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
			p.fail("commit")
		}
	}
}

// handle processa uma mensagem. Sempre termina (gravada, ignorada ou na DLQ)
// para que o offset avance.
func (p *Processor) handle(ctx context.Context, m kafka.Message) {
	var ev events.MatchNotification
	if err := json.Unmarshal(m.Value, &ev); err != nil || ev.NotificationID == "" || ev.UserID == "" {
		if err == nil {
			err = errors.New("missing notificationId or userId")
		}
		p.Log.Warn("invalid message", zap.Int64("offset", m.Offset), zap.Error(err))
		p.fail("decode")
		p.deadLetter(ctx, m, err)
		return
	}

	log := p.Log.With(zap.String("notification_id", ev.NotificationID), zap.String("user_id", ev.UserID))
	if !ev.Persistent {
		log.Debug("notification not persistent, skipping")
		if p.OnSkipped != nil {
			p.OnSkipped()
		}
		return
	}

	var (
		inserted bool
		err      error
	)
	for i := 0; i <= p.Retries; i++ {
		if i > 0 && !sleep(ctx, p.Backoff*time.Duration(i)) {
			return
		}
		if inserted, err = p.Store.Save(ctx, ev); err == nil {
			break
		}
		log.Warn("notification save failed", zap.Int("attempt", i+1), zap.Error(err))
	}
	if err != nil {
		p.fail("db_insert")
		p.deadLetter(ctx, m, err)
		return
	}

	if !inserted {
		log.Info("notification already stored")
		if p.OnSkipped != nil {
			p.OnSkipped()
		}
		return
	}
	log.Info("notification stored", zap.Int("code", ev.Code))
	if p.OnStored != nil {
		p.OnStored()
	}
}

func (p *Processor) deadLetter(ctx context.Context, m kafka.Message, cause error) {
	if p.DLQ == nil {
		return
	}
	msg := kafka.Message{
		Key:     m.Key,
		Value:   m.Value,
		Headers: []kafka.Header{{Key: "error", Value: []byte(cause.Error())}},
		Time:    time.Now(),
	}
	if err := p.DLQ.WriteMessages(ctx, msg); err != nil {
		p.Log.Error("dlq write failed", zap.Int64("offset", m.Offset), zap.Error(err))
		p.fail("dlq")
	}
}

func (p *Processor) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
