package match

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Machine é a máquina de estados de uma única partida.
// Não é segura para uso concorrente: o registry garante um único escritor por partida.
type Machine struct {
	m    *Match
	cfg  Settings
	deps Deps
	log  *zap.Logger

	nextSeq int
	// humanos que ainda não saíram depois do início
	present map[string]bool
}

// New cria uma partida em Waiting com o criador como único jogador
func New(id, gameID string, betAmount int64, creator Player, now time.Time, cfg Settings, deps Deps) *Machine {
	deps = deps.withDefaults()
	creator.IsHouse = false
	creator.Seq = 0
	if creator.DisplayName == "" {
		creator.DisplayName = creator.UserID
	}

	m := &Match{
		ID:             id,
		GameID:         gameID,
		BetAmountMinor: betAmount,
		Status:         StatusWaiting,
		Players:        map[string]Player{creator.UserID: creator},
		Results:        make(map[string]Result),
		WaitDeadline:   now.Add(cfg.WaitTimeout),
		CreatedAt:      now,
		CreatorID:      creator.UserID,
	}
	return &Machine{
		m:       m,
		cfg:     cfg,
		deps:    deps,
		log:     deps.Log.With(zap.String("match_id", id)),
		nextSeq: 1,
		present: map[string]bool{creator.UserID: true},
	}
}

// ID retorna o identificador da partida
func (mc *Machine) ID() string { return mc.m.ID }

// Status retorna o status atual
func (mc *Machine) Status() Status { return mc.m.Status }

// Terminal indica que a partida pode ser destruída
func (mc *Machine) Terminal() bool { return mc.m.Status.Terminal() }

// Label retorna o label público atual
func (mc *Machine) Label() Label { return mc.m.label() }

// Snapshot retorna uma cópia do estado
func (mc *Machine) Snapshot() Snapshot { return mc.m.snapshot() }

// Open publica o label inicial. Deve ser chamado depois de a partida estar
// registrada e antes de o ator começar a rodar.
func (mc *Machine) Open(ctx context.Context) error {
	if err := mc.PublishLabel(ctx); err != nil {
		return err
	}
	mc.log.Info("match created",
		zap.String("game_id", mc.m.GameID),
		zap.Int64("bet_amount", mc.m.BetAmountMinor),
		zap.String("creator_id", mc.m.CreatorID),
		zap.Time("wait_deadline", mc.m.WaitDeadline),
	)
	if mc.deps.Hooks.OnCreated != nil {
		mc.deps.Hooks.OnCreated()
	}
	return nil
}

// PublishLabel republica o label no diretório
func (mc *Machine) PublishLabel(ctx context.Context) error {
	if mc.deps.Labels == nil {
		return nil
	}
	return mc.deps.Labels.PublishLabel(ctx, mc.m.ID, mc.m.label())
}

// JoinAttempt valida a entrada de um jogador sem alterar o estado
func (mc *Machine) JoinAttempt(userID string) error {
	if userID == "" {
		return ErrInvalidPayload
	}
	if mc.m.Status.Terminal() {
		return ErrAlreadyStarted
	}
	if _, ok := mc.m.Players[userID]; ok {
		return ErrAlreadyJoined
	}
	if len(mc.m.Players) >= 2 {
		return ErrMatchFull
	}
	if mc.m.Status != StatusWaiting {
		return ErrAlreadyStarted
	}
	return nil
}

// Join adiciona um jogador humano. Com dois jogadores a partida fica Ready.
func (mc *Machine) Join(ctx context.Context, p Player, now time.Time) error {
	if err := mc.JoinAttempt(p.UserID); err != nil {
		return err
	}
	p.IsHouse = false
	p.Seq = mc.nextSeq
	mc.nextSeq++
	if p.DisplayName == "" {
		p.DisplayName = p.UserID
	}
	mc.m.Players[p.UserID] = p
	mc.present[p.UserID] = true
	mc.log.Info("player joined", zap.String("user_id", p.UserID), zap.Int("players", len(mc.m.Players)))

	if len(mc.m.Players) == 2 {
		mc.becomeReady(ctx, now)
	}
	return nil
}

// Leave trata a saída (ou desconexão) de um jogador humano
func (mc *Machine) Leave(ctx context.Context, userID string, now time.Time) error {
	p, ok := mc.m.Players[userID]
	if !ok || p.IsHouse {
		return ErrNotParticipant
	}

	switch mc.m.Status {
	case StatusWaiting:
		delete(mc.m.Players, userID)
		delete(mc.present, userID)
		mc.settle(ctx, Order{
			Kind:    OrderRefund,
			MatchID: mc.m.ID,
			UserID:  userID,
			Amount:  mc.m.BetAmountMinor,
			Ref:     RefundRef(mc.m.ID, userID),
		})
		mc.log.Info("player left before start, bet refunded", zap.String("user_id", userID))

		if mc.m.humanCount() == 0 {
			mc.m.Status = StatusCancelled
			mc.log.Info("match cancelled, no players left")
			if mc.deps.Hooks.OnCancelled != nil {
				mc.deps.Hooks.OnCancelled()
			}
			return nil
		}
		if err := mc.PublishLabel(ctx); err != nil {
			mc.log.Warn("label publish failed", zap.Error(err))
		}

	case StatusReady:
		if !mc.present[userID] {
			return nil
		}
		mc.present[userID] = false
		mc.log.Info("player left during play", zap.String("user_id", userID))
		if mc.presentHumans() == 0 {
			mc.log.Info("no players left, resolving with forfeits")
			mc.forfeitMissing()
			mc.resolve(ctx)
		}
	}
	return nil
}

// Reconnect marca o participante como presente de novo (conexão aberta depois
// de um leave ou do broadcast de op 1). Com a partida em Ready devolve o
// payload de op 1 para ser reenviado apenas a esse cliente.
func (mc *Machine) Reconnect(userID string) (*ReadyPayload, error) {
	p, ok := mc.m.Players[userID]
	if !ok || p.IsHouse {
		return nil, ErrNotParticipant
	}
	if mc.m.Status != StatusReady {
		return nil, nil
	}
	if !mc.present[userID] {
		mc.present[userID] = true
		mc.log.Info("player reconnected during play", zap.String("user_id", userID))
	}
	payload := mc.readyPayload()
	return &payload, nil
}

// Tick avança prazos: injeta a casa em Waiting e força forfeits em Ready
func (mc *Machine) Tick(ctx context.Context, now time.Time) {
	switch mc.m.Status {
	case StatusWaiting:
		if now.After(mc.m.WaitDeadline) && mc.m.humanCount() > 0 {
			mc.injectHouse(ctx, now)
		}
	case StatusReady:
		if now.After(mc.m.PlayDeadline) {
			mc.log.Info("play deadline expired")
			mc.forfeitMissing()
			mc.resolve(ctx)
		}
	}
}

// HandleMessage processa uma mensagem recebida de um participante
func (mc *Machine) HandleMessage(ctx context.Context, userID string, op OpCode, data []byte, now time.Time) error {
	switch op {
	case OpScoreSubmit:
		return mc.SubmitScore(ctx, userID, data, now)
	default:
		return ErrInvalidPayload
	}
}

// SubmitScore grava o resultado do participante e resolve quando todos enviaram
func (mc *Machine) SubmitScore(ctx context.Context, userID string, data []byte, now time.Time) error {
	p, ok := mc.m.Players[userID]
	if !ok || p.IsHouse {
		return ErrNotParticipant
	}
	if mc.m.Status != StatusReady {
		return ErrNotReady
	}
	if _, done := mc.m.Results[userID]; done {
		return ErrAlreadySubmitted
	}
	res, err := DecodeScore(data)
	if err != nil {
		return err
	}
	mc.m.Results[userID] = res
	mc.log.Info("score submitted",
		zap.String("user_id", userID),
		zap.Int64("score", res.Score),
		zap.Int64("elapsed_ms", res.ElapsedMs),
	)

	if mc.allHumansSubmitted() {
		mc.resolve(ctx)
	}
	return nil
}

// Abort cancela uma partida não terminada devolvendo a aposta de cada humano.
// Usado no desligamento do processo.
func (mc *Machine) Abort(ctx context.Context) {
	if mc.m.Status.Terminal() {
		return
	}
	for _, p := range mc.m.orderedPlayers() {
		if p.IsHouse {
			continue
		}
		mc.settle(ctx, Order{
			Kind:    OrderRefund,
			MatchID: mc.m.ID,
			UserID:  p.UserID,
			Amount:  mc.m.BetAmountMinor,
			Ref:     RefundRef(mc.m.ID, p.UserID),
		})
	}
	mc.m.Status = StatusCancelled
	mc.log.Warn("match aborted, bets refunded")
	if mc.deps.Hooks.OnCancelled != nil {
		mc.deps.Hooks.OnCancelled()
	}
}

func (mc *Machine) injectHouse(ctx context.Context, now time.Time) {
	house := Player{
		UserID:      mc.cfg.HouseUserID,
		DisplayName: mc.cfg.houseName(),
		IsHouse:     true,
		Seq:         mc.nextSeq,
	}
	mc.nextSeq++
	mc.m.Players[house.UserID] = house
	mc.m.IsHouseMatch = true
	mc.log.Info("wait deadline expired, house opponent injected")
	mc.becomeReady(ctx, now)
}

func (mc *Machine) becomeReady(ctx context.Context, now time.Time) {
	mc.m.Status = StatusReady
	mc.m.PlayDeadline = now.Add(mc.cfg.PlayTimeout)
	mt := mc.m.matchType()

	if err := mc.PublishLabel(ctx); err != nil {
		mc.log.Warn("label publish failed", zap.Error(err))
	}

	mc.broadcast(ctx, OpMatchReady, mc.readyPayload())

	mc.log.Info("match ready", zap.String("match_type", string(mt)), zap.Time("play_deadline", mc.m.PlayDeadline))
	if mc.deps.Hooks.OnReady != nil {
		mc.deps.Hooks.OnReady(mt)
	}
}

func (mc *Machine) readyPayload() ReadyPayload {
	mt := mc.m.matchType()
	payload := ReadyPayload{MatchType: mt}
	if mt == TypePVH {
		payload.Message = "No opponent found in time, you are playing against " + mc.cfg.houseName()
		return payload
	}
	for _, p := range mc.m.orderedPlayers() {
		payload.OpponentName = append(payload.OpponentName, p.DisplayName)
	}
	return payload
}

func (mc *Machine) allHumansSubmitted() bool {
	for id, p := range mc.m.Players {
		if p.IsHouse {
			continue
		}
		if _, ok := mc.m.Results[id]; !ok {
			return false
		}
	}
	return true
}

func (mc *Machine) presentHumans() int {
	n := 0
	for id, p := range mc.m.Players {
		if !p.IsHouse && mc.present[id] {
			n++
		}
	}
	return n
}
