package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/radieske/skill-wager-platform/internal/wallet-service/dto"
	"github.com/radieske/skill-wager-platform/internal/wallet-service/repo"
)

// Repo define a interface de operações de carteira usadas pelo handler HTTP
type Repo interface {
	GetOrCreateWallet(ctx context.Context, userID string) (walletID string, balance int64, err error)
	Deposit(ctx context.Context, userID string, amount int64, externalRef string) (walletID string, newBalance int64, err error)
	Debit(ctx context.Context, userID string, amount int64, externalRef string) (walletID string, newBalance int64, err error)
	Credit(ctx context.Context, userID string, amount int64, externalRef string) (walletID string, newBalance int64, err error)
}

// Server expõe endpoints HTTP para operações de carteira (wallet)
type Server struct {
	log  *zap.Logger
	repo Repo
}

// NewServer instancia o servidor HTTP de wallet
func NewServer(log *zap.Logger, repo Repo) *Server { return &Server{log: log, repo: repo} }

// Router retorna o mux HTTP com as rotas da API de wallet
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /wallet", s.getWallet)        // ?userId=...
	mux.HandleFunc("POST /wallet/deposit", s.deposit) // recarga
	mux.HandleFunc("POST /wallet/debit", s.debit)     // entrada de aposta
	mux.HandleFunc("POST /wallet/credit", s.credit)   // payout e estornos
	return mux
}

// getWallet retorna (ou cria) a carteira e saldo do usuário
func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}
	walletID, bal, err := s.repo.GetOrCreateWallet(r.Context(), userID)
	if err != nil {
		s.log.Error("get wallet failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dto.WalletResponse{UserID: userID, WalletID: walletID, BalanceMinor: bal})
}

// deposit adiciona saldo à carteira do usuário
func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.UserID == "" || req.AmountMinor <= 0 {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	walletID, bal, err := s.repo.Deposit(r.Context(), req.UserID, req.AmountMinor, req.ExternalRef)
	if err != nil {
		s.log.Error("deposit failed", zap.String("user_id", req.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dto.WalletResponse{UserID: req.UserID, WalletID: walletID, BalanceMinor: bal})
}

// debit retira a entrada de uma aposta. 402 quando o saldo não cobre o valor.
func (s *Server) debit(w http.ResponseWriter, r *http.Request) {
	s.movement(w, r, "debit", s.repo.Debit)
}

// credit paga ou estorna saldo
func (s *Server) credit(w http.ResponseWriter, r *http.Request) {
	s.movement(w, r, "credit", s.repo.Credit)
}

type movementFunc func(ctx context.Context, userID string, amount int64, externalRef string) (string, int64, error)

func (s *Server) movement(w http.ResponseWriter, r *http.Request, op string, fn movementFunc) {
	var req dto.MovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.UserID == "" || req.AmountMinor <= 0 || req.ExternalRef == "" {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	walletID, bal, err := fn(r.Context(), req.UserID, req.AmountMinor, req.ExternalRef)
	switch {
	case errors.Is(err, repo.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, err.Error())
		return
	case errors.Is(err, repo.ErrNotFound):
		writeError(w, http.StatusNotFound, "wallet not found")
		return
	case err != nil:
		s.log.Error(op+" failed",
			zap.String("user_id", req.UserID),
			zap.Int64("amount", req.AmountMinor),
			zap.String("external_ref", req.ExternalRef),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.log.Info(op+" applied",
		zap.String("user_id", req.UserID),
		zap.Int64("amount", req.AmountMinor),
		zap.String("external_ref", req.ExternalRef),
		zap.Int64("balance", bal),
	)
	writeJSON(w, http.StatusOK, dto.WalletResponse{UserID: req.UserID, WalletID: walletID, BalanceMinor: bal})
}

// writeJSON serializa e envia resposta JSON
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, dto.ErrorResponse{Error: msg})
}
