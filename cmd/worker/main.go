// cmd/worker/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/unclebandit/reviewleopard-backend/internal/app"
	"github.com/unclebandit/reviewleopard-backend/internal/config"
	"github.com/unclebandit/reviewleopard-backend/internal/db"
	"github.com/unclebandit/reviewleopard-backend/internal/logger"
	"github.com/unclebandit/reviewleopard-backend/internal/service"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		return 1
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	log = log.With(logger.String("service", "worker"))
	defer func() { _ = log.Sync() }()

	conn, err := db.Open(cfg.Database.DSN())
	if err != nil {
		log.Error("Failed to connect to database", logger.Error(err))
		return 1
	}

	a, err := app.New(cfg, log, conn)
	if err != nil {
		conn.Close()
		log.Error("Failed to wire application", logger.Error(err))
		return 1
	}
	defer func() { _ = a.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.StartCompletionSubscriber(ctx); err != nil {
		log.Error("Failed to subscribe to completions", logger.Error(err))
		return 1
	}

	cl := cronLogger{log: log.With(logger.String("component", "cron"))}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(
		cron.Recover(cl),
		cron.SkipIfStillRunning(cl),
	))
	if err := schedule(ctx, c, cfg.Pipeline, a.Dispatcher, a.Sweep, log); err != nil {
		log.Error("Failed to schedule jobs", logger.Error(err))
		return 1
	}
	c.Start()
	log.Info("Worker running",
		logger.String("dispatch_schedule", cfg.Pipeline.DispatchSchedule),
		logger.String("recovery_schedule", cfg.Pipeline.RecoverySchedule))

	<-ctx.Done()
	<-c.Stop().Done()
	log.Info("Worker exited cleanly")
	return 0
}

// cronLogger routes robfig/cron logs through the service logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(fields(keysAndValues), logger.Error(err))...)
}

func fields(keysAndValues []any) []logger.Field {
	out := make([]logger.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		out = append(out, logger.Any(key, keysAndValues[i+1]))
	}
	return out
}

var _ cron.Logger = cronLogger{}

type ticker interface {
	Tick(ctx context.Context) (service.TickResult, error)
}

type sweeper interface {
	Run(ctx context.Context) (service.SweepResult, error)
}

// schedule registers the dispatcher and the recovery sweep on c.
func schedule(ctx context.Context, c *cron.Cron, p config.PipelineConfig, d ticker, s sweeper, log logger.Logger) error {
	if _, err := c.AddFunc(p.DispatchSchedule, func() {
		start := time.Now()
		res, err := d.Tick(ctx)
		if err != nil {
			log.Error("Dispatch tick failed", logger.Error(err))
			return
		}
		if res.Claimed > 0 || res.Requeued > 0 || res.Abandoned > 0 {
			log.Info("Dispatch tick",
				logger.Int("claimed", res.Claimed),
				logger.Int("sent", res.Processed),
				logger.Int("failed", res.Failed),
				logger.Int("skipped", res.Skipped),
				logger.Int("requeued", res.Requeued),
				logger.Int("abandoned", res.Abandoned),
				logger.Duration("took", time.Since(start)))
		}
	}); err != nil {
		return fmt.Errorf("dispatch schedule %q: %w", p.DispatchSchedule, err)
	}

	if _, err := c.AddFunc(p.RecoverySchedule, func() {
		res, err := s.Run(ctx)
		if err != nil {
			log.Error("Recovery sweep failed", logger.Error(err))
			return
		}
		log.Info("Recovery sweep",
			logger.Int("selected", res.Selected),
			logger.Int("reminded", res.Reminded),
			logger.Int("failed", res.Failed))
	}); err != nil {
		return fmt.Errorf("recovery schedule %q: %w", p.RecoverySchedule, err)
	}
	return nil
}
