package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/skill-wager-platform/internal/match-coordinator/match"
)

// opTimeout limita efeitos colaterais (ledger, kafka, redis) de um único evento
const opTimeout = 10 * time.Second

// ErrClosed é retornado depois que o registry foi encerrado
var ErrClosed = errors.New("registry closed")

// Remover retira a partida do diretório quando ela é destruída
type Remover interface {
	Remove(ctx context.Context, matchID string, l match.Label) error
}

// Registry mantém as partidas ativas. Cada partida tem uma goroutine dona
// (ator) que serializa ticks e eventos; o mapa só é travado para lookup.
type Registry struct {
	cfg     match.Settings
	deps    match.Deps
	remover Remover
	log     *zap.Logger
	now     func() time.Time
	newID   func() string

	mu     sync.RWMutex
	actors map[string]*actor
	closed bool
	wg     sync.WaitGroup
}

// Option customiza o Registry (usado principalmente em testes)
type Option func(*Registry)

// WithClock substitui o relógio usado nos eventos
func WithClock(now func() time.Time) Option { return func(r *Registry) { r.now = now } }

// WithIDGenerator substitui o gerador de ids de partida
func WithIDGenerator(f func() string) Option { return func(r *Registry) { r.newID = f } }

// New cria um registry vazio
func New(cfg match.Settings, deps match.Deps, remover Remover, log *zap.Logger, opts ...Option) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	deps.Log = log
	r := &Registry{
		cfg:     cfg,
		deps:    deps,
		remover: remover,
		log:     log,
		now:     time.Now,
		newID:   uuid.NewString,
		actors:  make(map[string]*actor),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Create abre uma nova partida em Waiting com o criador e agenda seu ator
func (r *Registry) Create(ctx context.Context, gameID string, betAmount int64, creator match.Player) (string, error) {
	id := r.newID()
	mc := match.New(id, gameID, betAmount, creator, r.now(), r.cfg, r.deps)

	// registra antes de publicar: um claim concorrente já encontra a partida
	// e o Join fica na inbox até o ator começar
	a := newActor(mc, r)
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrClosed
	}
	r.actors[id] = a
	r.wg.Add(1)
	r.mu.Unlock()

	if err := mc.Open(ctx); err != nil {
		r.forget(id)
		close(a.done)
		r.wg.Done()
		if r.remover != nil {
			_ = r.remover.Remove(context.WithoutCancel(ctx), id, mc.Label())
		}
		return "", err
	}

	go a.run()
	return id, nil
}

// Join adiciona um jogador a uma partida existente
func (r *Registry) Join(ctx context.Context, matchID string, p match.Player) error {
	return r.call(ctx, matchID, func(ctx context.Context, mc *match.Machine, now time.Time) error {
		err := mc.Join(ctx, p, now)
		if errors.Is(err, match.ErrAlreadyJoined) && mc.Status() == match.StatusWaiting {
			// o claim tirou a partida do pool; devolve para continuar visível
			if perr := mc.PublishLabel(ctx); perr != nil {
				r.log.Warn("label republish failed", zap.String("match_id", matchID), zap.Error(perr))
			}
		}
		return err
	})
}

// Leave trata a saída de um jogador
func (r *Registry) Leave(ctx context.Context, matchID, userID string) error {
	return r.call(ctx, matchID, func(ctx context.Context, mc *match.Machine, now time.Time) error {
		return mc.Leave(ctx, userID, now)
	})
}

// Submit entrega uma mensagem de cliente (op 2) para a partida
func (r *Registry) Submit(ctx context.Context, matchID, userID string, op match.OpCode, data []byte) error {
	return r.call(ctx, matchID, func(ctx context.Context, mc *match.Machine, now time.Time) error {
		return mc.HandleMessage(ctx, userID, op, data, now)
	})
}

// Reconnect registra uma nova conexão do participante e devolve o op 1 atual
// quando a partida já está em Ready
func (r *Registry) Reconnect(ctx context.Context, matchID, userID string) (*match.ReadyPayload, error) {
	var out *match.ReadyPayload
	err := r.call(ctx, matchID, func(_ context.Context, mc *match.Machine, _ time.Time) error {
		p, err := mc.Reconnect(userID)
		out = p
		return err
	})
	return out, err
}

// Snapshot retorna uma cópia do estado atual da partida
func (r *Registry) Snapshot(ctx context.Context, matchID string) (match.Snapshot, error) {
	out := make(chan match.Snapshot, 1)
	err := r.call(ctx, matchID, func(_ context.Context, mc *match.Machine, _ time.Time) error {
		out <- mc.Snapshot()
		return nil
	})
	if err != nil {
		return match.Snapshot{}, err
	}
	return <-out, nil
}

// Len retorna o número de partidas ativas
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actors)
}

// Shutdown para todos os atores. Partidas não terminadas são abortadas com estorno.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	actors := make([]*actor, 0, len(r.actors))
	for _, a := range r.actors {
		actors = append(actors, a)
	}
	r.mu.Unlock()

	for _, a := range actors {
		a.stopOnce.Do(func() { close(a.stop) })
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.log.Info("registry stopped", zap.Int("matches", len(actors)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) lookup(matchID string) (*actor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actors[matchID]
	return a, ok
}

func (r *Registry) forget(matchID string) {
	r.mu.Lock()
	delete(r.actors, matchID)
	r.mu.Unlock()
}

func (r *Registry) call(ctx context.Context, matchID string, fn commandFunc) error {
	a, ok := r.lookup(matchID)
	if !ok {
		return match.ErrMatchNotFound
	}
	cmd := command{fn: fn, reply: make(chan error, 1)}

	select {
	case a.inbox <- cmd:
	case <-a.done:
		return match.ErrMatchNotFound
	case <-ctx.Done():
		return ctx.Err()
	}

	// comando aceito: o efeito vai acontecer, então o resultado é aguardado
	// mesmo com ctx cancelado. O ator responde dentro de opTimeout.
	return <-cmd.reply
}
