package events

import "time"

// Evento publicado pelo match-coordinator quando uma partida termina.
// Consumido pelo notification-worker, que persiste as notificações persistentes.
type MatchNotification struct {
	NotificationID string         `json:"notificationId"`
	UserID         string         `json:"userId"`
	Subject        string         `json:"subject"`
	Content        map[string]any `json:"content"`
	Code           int            `json:"code"` // 101 won | 102 lost
	Persistent     bool           `json:"persistent"`
	Ts             time.Time      `json:"ts"`
}
