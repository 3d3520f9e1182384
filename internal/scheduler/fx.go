package scheduler

import (
	"context"

	"github.com/hormisur/backoffice/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(ProvideLocker),
	fx.Provide(New),
	fx.Invoke(NewScheduler),
)

func ProvideConfig(cfg config.Config) Config {
	schedCfg := DefaultConfig()
	if cfg.SchedulerInterval > 0 {
		schedCfg.RunInterval = cfg.SchedulerInterval
	}
	if cfg.SchedulerStartupDelay >= 0 {
		schedCfg.StartupDelay = cfg.SchedulerStartupDelay
	}
	return schedCfg
}

// ProvideLocker wires the redis lease only when an address is configured.
// A nil Locker means every instance evaluates on its own tick.
func ProvideLocker(lc fx.Lifecycle, cfg config.Config) *Locker {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return NewLocker(client)
}

func NewScheduler(lc fx.Lifecycle, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
