package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/radieske/skill-wager-platform/pkg/contracts/events"
)

// PostgresStore persiste notificações na tabela notifications
type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{DB: db} }

// Save grava a notificação. Reentregas do Kafka com o mesmo notificationId
// são ignoradas e retornam inserted=false.
func (s *PostgresStore) Save(ctx context.Context, n events.MatchNotification) (bool, error) {
	content, err := json.Marshal(n.Content)
	if err != nil {
		return false, fmt.Errorf("marshal content: %w", err)
	}
	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO notifications(notification_id, user_id, subject, content, code, created_at)
		VALUES($1,$2,$3,$4,$5,$6)
		ON CONFLICT (notification_id) DO NOTHING`,
		n.NotificationID, n.UserID, n.Subject, string(content), n.Code, n.Ts)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// Notification é uma linha lida de volta (consulta de inbox)
type Notification struct {
	NotificationID string         `json:"notificationId"`
	Subject        string         `json:"subject"`
	Content        map[string]any `json:"content"`
	Code           int            `json:"code"`
}

// ListByUser retorna as notificações mais recentes do usuário
func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]Notification, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT notification_id, subject, content, code
		FROM notifications
		WHERE user_id=$1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		var raw []byte
		if err := rows.Scan(&n.NotificationID, &n.Subject, &raw, &n.Code); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &n.Content); err != nil {
				return nil, fmt.Errorf("decode content: %w", err)
			}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
