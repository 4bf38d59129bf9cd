package settlement

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// StartSweeper agenda Sweep a cada interval. Uma execução lenta adia a
// próxima em vez de sobrepor. O chamador deve chamar Shutdown no scheduler.
func (o *Outbox) StartSweeper(interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			if _, err := o.Sweep(ctx); err != nil {
				o.Log.Warn("settlement sweep failed", zap.Error(err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("settlement-sweeper"),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	o.Log.Info("settlement sweeper started", zap.Duration("interval", interval))
	return sched, nil
}
