package topics

const (
	// Notificações de fim de partida
	MatchNotifications = "match_notifications"

	// DLQs
	MatchNotificationsDLQ = "match_notifications_dlq"
	SettlementsDLQ        = "match_settlements_dlq"
)
