package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/skill-wager-platform/internal/match-coordinator/match"
)

// maxClaimAttempts limita quantas partidas obsoletas do diretório são descartadas
// antes de criar uma nova
const maxClaimAttempts = 5

const (
	ActionJoined  = "joined"
	ActionCreated = "created"
)

// Ledger debita a entrada da aposta
type Ledger interface {
	Debit(ctx context.Context, userID string, amount int64, ref string) error
}

// Directory entrega atomicamente uma partida em Waiting com os mesmos atributos
type Directory interface {
	Claim(ctx context.Context, gameID string, betAmount int64) (matchID string, ok bool, err error)
}

// Matches é o registry de partidas ativas
type Matches interface {
	Create(ctx context.Context, gameID string, betAmount int64, creator match.Player) (string, error)
	Join(ctx context.Context, matchID string, p match.Player) error
}

// Request é um pedido de entrada em partida
type Request struct {
	GameID      string
	BetAmount   int64
	UserID      string
	DisplayName string
}

// Response informa a partida e se o jogador entrou ou criou
type Response struct {
	MatchID string `json:"matchId"`
	Action  string `json:"action"`
}

// Service implementa request_match: debita, procura partida e entra ou cria
type Service struct {
	Ledger    Ledger
	Directory Directory
	Matches   Matches
	Settler   match.Settler // estorno quando nada foi criado após o débito
	Log       *zap.Logger

	OnJoined      func()
	OnCreated     func()
	OnCompensated func()
}

// StakeRef é a chave de idempotência do débito de entrada
func StakeRef(ticket string) string { return "stake:" + ticket }

// ReversalRef é a chave de idempotência do estorno de um débito de entrada
func ReversalRef(ticket string) string { return "reversal:" + ticket }

// Validate rejeita pedidos malformados sem efeitos colaterais
func (r Request) Validate() error {
	if strings.TrimSpace(r.GameID) == "" || strings.TrimSpace(r.UserID) == "" || r.BetAmount <= 0 || r.BetAmount > match.MaxBetAmount {
		return match.ErrInvalidPayload
	}
	return nil
}

// RequestMatch debita a aposta e anexa o jogador a uma partida em Waiting
// ou cria uma nova. Se nada for criado após o débito, o valor é estornado.
func (s *Service) RequestMatch(ctx context.Context, req Request) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	log := s.logger().With(zap.String("user_id", req.UserID), zap.String("game_id", req.GameID), zap.Int64("bet_amount", req.BetAmount))

	ticket := uuid.NewString()
	if err := s.Ledger.Debit(ctx, req.UserID, req.BetAmount, StakeRef(ticket)); err != nil {
		if errors.Is(err, match.ErrInsufficientFunds) {
			log.Info("match request rejected, insufficient funds")
			return Response{}, match.ErrInsufficientFunds
		}
		return Response{}, fmt.Errorf("debit stake: %w", err)
	}

	player := match.Player{UserID: req.UserID, DisplayName: req.DisplayName}

	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		matchID, ok, err := s.Directory.Claim(ctx, req.GameID, req.BetAmount)
		if err != nil {
			s.compensate(ctx, log, req, ticket)
			return Response{}, fmt.Errorf("claim waiting match: %w", err)
		}
		if !ok {
			break
		}

		err = s.Matches.Join(ctx, matchID, player)
		switch {
		case err == nil:
			log.Info("player joined match", zap.String("match_id", matchID))
			if s.OnJoined != nil {
				s.OnJoined()
			}
			return Response{MatchID: matchID, Action: ActionJoined}, nil
		case errors.Is(err, match.ErrAlreadyJoined):
			s.compensate(ctx, log, req, ticket)
			return Response{}, match.ErrAlreadyJoined
		case errors.Is(err, match.ErrMatchFull),
			errors.Is(err, match.ErrAlreadyStarted),
			errors.Is(err, match.ErrMatchNotFound):
			// entrada obsoleta no diretório, tenta a próxima
			log.Debug("stale directory entry", zap.String("match_id", matchID), zap.Error(err))
			continue
		default:
			s.compensate(ctx, log, req, ticket)
			return Response{}, fmt.Errorf("join match %s: %w", matchID, err)
		}
	}

	matchID, err := s.Matches.Create(ctx, req.GameID, req.BetAmount, player)
	if err != nil {
		s.compensate(ctx, log, req, ticket)
		return Response{}, fmt.Errorf("create match: %w", err)
	}
	log.Info("match created for player", zap.String("match_id", matchID))
	if s.OnCreated != nil {
		s.OnCreated()
	}
	return Response{MatchID: matchID, Action: ActionCreated}, nil
}

func (s *Service) compensate(ctx context.Context, log *zap.Logger, req Request, ticket string) {
	if s.OnCompensated != nil {
		s.OnCompensated()
	}
	err := s.Settler.Settle(context.WithoutCancel(ctx), match.Order{
		Kind:   match.OrderRefund,
		UserID: req.UserID,
		Amount: req.BetAmount,
		Ref:    ReversalRef(ticket),
	})
	if err != nil {
		log.Error("stake reversal failed, manual reconciliation required", zap.String("ticket", ticket), zap.Error(err))
		return
	}
	log.Warn("stake reversed", zap.String("ticket", ticket))
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
