package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/radieske/skill-wager-platform/internal/match-coordinator/match"
	"github.com/radieske/skill-wager-platform/pkg/contracts/events"
)

// Writer é o subconjunto de *kafka.Writer usado pelo notifier
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaNotifier publica notificações de fim de partida no tópico match_notifications.
// A chave da mensagem é o userId, então as notificações de um usuário ficam ordenadas.
type KafkaNotifier struct {
	Writer Writer
	now    func() time.Time
}

func NewKafkaNotifier(w Writer) *KafkaNotifier {
	return &KafkaNotifier{Writer: w, now: time.Now}
}

// Send implementa match.Notifier
func (n *KafkaNotifier) Send(ctx context.Context, note match.Notification) error {
	ev := events.MatchNotification{
		NotificationID: uuid.NewString(),
		UserID:         note.UserID,
		Subject:        note.Subject,
		Content:        note.Content,
		Code:           note.Code,
		Persistent:     note.Persistent,
		Ts:             n.now().UTC(),
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(note.UserID),
		Value: b,
		Time:  ev.Ts,
	})
}
