package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/skill-wager-platform/internal/match-coordinator/match"
)

type commandFunc func(ctx context.Context, mc *match.Machine, now time.Time) error

type command struct {
	fn    commandFunc
	reply chan error
}

// actor é o único escritor de uma partida
type actor struct {
	mc    *match.Machine
	reg   *Registry
	inbox chan command

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newActor(mc *match.Machine, reg *Registry) *actor {
	return &actor{
		mc:    mc,
		reg:   reg,
		inbox: make(chan command),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (a *actor) run() {
	defer a.reg.wg.Done()
	defer close(a.done)

	ticker := time.NewTicker(a.reg.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stop:
			ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
			a.mc.Abort(ctx)
			a.destroy(ctx)
			cancel()
			return

		case cmd := <-a.inbox:
			ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
			cmd.reply <- cmd.fn(ctx, a.mc, a.reg.now())
			terminal := a.mc.Terminal()
			if terminal {
				a.destroy(ctx)
			}
			cancel()
			if terminal {
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
			a.mc.Tick(ctx, a.reg.now())
			terminal := a.mc.Terminal()
			if terminal {
				a.destroy(ctx)
			}
			cancel()
			if terminal {
				return
			}
		}
	}
}

// destroy tira a partida do registry e do diretório
func (a *actor) destroy(ctx context.Context) {
	id := a.mc.ID()
	a.reg.forget(id)
	if a.reg.remover != nil {
		if err := a.reg.remover.Remove(ctx, id, a.mc.Label()); err != nil {
			a.reg.log.Warn("directory remove failed", zap.String("match_id", id), zap.Error(err))
		}
	}
	a.reg.log.Debug("match destroyed", zap.String("match_id", id), zap.String("status", string(a.mc.Status())))
}
