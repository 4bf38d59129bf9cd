package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/radieske/skill-wager-platform/internal/match-coordinator/dto"
	"github.com/radieske/skill-wager-platform/internal/match-coordinator/intake"
	"github.com/radieske/skill-wager-platform/internal/match-coordinator/match"
	"github.com/radieske/skill-wager-platform/internal/match-coordinator/registry"
)

// Intake é o fluxo request_match (debita, procura ou cria)
type Intake interface {
	RequestMatch(ctx context.Context, req intake.Request) (intake.Response, error)
}

// Matches é o lado do registry consultado pela API
type Matches interface {
	Snapshot(ctx context.Context, matchID string) (match.Snapshot, error)
	Leave(ctx context.Context, matchID, userID string) error
	Submit(ctx context.Context, matchID, userID string, op match.OpCode, data []byte) error
}

// Labels lê o label publicado no diretório de matchmaking
type Labels interface {
	Lookup(ctx context.Context, matchID string) (match.Label, bool, error)
}

// Sockets atende o upgrade WebSocket de uma partida
type Sockets interface {
	ServeMatch(w http.ResponseWriter, r *http.Request, matchID, userID string)
}

// API expõe os endpoints REST e WebSocket do coordenador de partidas
type API struct {
	Intake         Intake
	Matches        Matches
	Sockets        Sockets
	Labels         Labels
	Log            *zap.Logger
	AllowedOrigins []string
}

// Router retorna o roteador HTTP com os endpoints do coordenador
func (a *API) Router() http.Handler {
	if a.Log == nil {
		a.Log = zap.NewNop()
	}
	origins := a.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Post("/v1/matches", a.requestMatch)            // entra ou cria partida
	r.Get("/v1/matches/{id}", a.getMatch)            // estado atual
	r.Get("/v1/matches/{id}/label", a.getLabel)      // visão do diretório
	r.Post("/v1/matches/{id}/leave", a.leaveMatch)   // saída voluntária
	r.Post("/v1/matches/{id}/scores", a.submitScore) // alternativa HTTP ao op 2
	r.Get("/ws/matches/{id}", a.serveSocket)         // ?userId=...
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), dto.ErrorResponse{Error: err.Error()})
}

// statusFor traduz os erros de domínio em status HTTP
func statusFor(err error) int {
	switch {
	case errors.Is(err, match.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, match.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, match.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, match.ErrMatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, match.ErrMatchFull),
		errors.Is(err, match.ErrAlreadyStarted),
		errors.Is(err, match.ErrAlreadyJoined),
		errors.Is(err, match.ErrAlreadySubmitted),
		errors.Is(err, match.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, match.ErrLedgerUnavailable),
		errors.Is(err, registry.ErrClosed),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// requestMatch debita a entrada e devolve a partida atribuída
func (a *API) requestMatch(w http.ResponseWriter, r *http.Request) {
	var req dto.MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, match.ErrInvalidPayload)
		return
	}

	res, err := a.Intake.RequestMatch(r.Context(), intake.Request{
		GameID:      req.GameID,
		BetAmount:   req.BetAmount,
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		if statusFor(err) >= http.StatusInternalServerError {
			a.Log.Error("request match failed", zap.String("user_id", req.UserID), zap.String("game_id", req.GameID), zap.Error(err))
		}
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if res.Action == intake.ActionCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, dto.MatchResponse{MatchID: res.MatchID, Action: res.Action})
}

func (a *API) getMatch(w http.ResponseWriter, r *http.Request) {
	snap, err := a.Matches.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// getLabel devolve o label como o matchmaking enxerga a partida
func (a *API) getLabel(w http.ResponseWriter, r *http.Request) {
	if a.Labels == nil {
		writeError(w, match.ErrMatchNotFound)
		return
	}
	id := chi.URLParam(r, "id")
	l, found, err := a.Labels.Lookup(r.Context(), id)
	if err != nil {
		a.Log.Warn("label lookup failed", zap.String("match_id", id), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, dto.ErrorResponse{Error: "directory unavailable"})
		return
	}
	if !found {
		writeError(w, match.ErrMatchNotFound)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (a *API) leaveMatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req dto.LeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, match.ErrInvalidPayload)
		return
	}
	if err := a.Matches.Leave(r.Context(), id, req.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.StatusResponse{MatchID: id, Status: "left"})
}

// submitScore entrega o resultado pelo mesmo caminho do op 2 no socket
func (a *API) submitScore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req dto.ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.UserID == "" || req.Score == nil || req.ElapsedMs == nil {
		writeError(w, match.ErrInvalidPayload)
		return
	}

	data := match.EncodeScore(*req.Score, *req.ElapsedMs)
	if err := a.Matches.Submit(r.Context(), id, req.UserID, match.OpScoreSubmit, data); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, dto.StatusResponse{MatchID: id, Status: "submitted"})
}

func (a *API) serveSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, match.ErrInvalidPayload)
		return
	}
	a.Sockets.ServeMatch(w, r, chi.URLParam(r, "id"), userID)
}

// requestLogger registra cada requisição com status e latência
func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.Log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
