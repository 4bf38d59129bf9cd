package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/radieske/skill-wager-platform/internal/notification-worker/store"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Lister lê as notificações persistidas de um usuário
type Lister interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]store.Notification, error)
}

// Server expõe a caixa de entrada de notificações
type Server struct {
	log   *zap.Logger
	store Lister
}

func NewServer(log *zap.Logger, s Lister) *Server { return &Server{log: log, store: s} }

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /notifications", s.list) // ?userId=...&limit=...
	return mux
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "userId required"})
		return
	}
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = min(n, maxLimit)
	}

	out, err := s.store.ListByUser(r.Context(), userID, limit)
	if err != nil {
		s.log.Error("list notifications failed", zap.String("user_id", userID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if out == nil {
		out = []store.Notification{}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
