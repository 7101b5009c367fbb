package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/onlyrealroles/ghostscore/internal/engine"
	"github.com/onlyrealroles/ghostscore/internal/redis"
	"github.com/onlyrealroles/ghostscore/internal/setup"
	"github.com/onlyrealroles/ghostscore/internal/setup/telemetry"
	"github.com/onlyrealroles/ghostscore/internal/trigger"
	"github.com/onlyrealroles/ghostscore/pkg/utils"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const (
	// WorkerLogDir specifies where worker log files are stored.
	WorkerLogDir = "logs/worker_logs"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "worker",
		Usage: "Apply vote notifications to owner aggregates",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Consume the notification queue",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "workers",
						Aliases: []string{"w"},
						Usage:   "Number of concurrent consumers (default from worker.toml)",
					},
					&cli.BoolFlag{
						Name:  "memory",
						Usage: "Keep aggregates in memory instead of PostgreSQL",
					},
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "Address to serve Prometheus metrics on, e.g. :9090",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return runWorker(ctx, int(c.Int("workers")), c.Bool("memory"), c.String("metrics-addr"))
				},
			},
			{
				Name:  "recover",
				Usage: "Move notifications left in flight by stopped workers back to pending",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Also recover workers with a fresh heartbeat (only when every worker is stopped)",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					app, err := setup.InitializeApp(ctx, telemetry.ServiceWorker, WorkerLogDir, setup.Options{SkipDatabase: true})
					if err != nil {
						return fmt.Errorf("failed to initialize application: %w", err)
					}
					defer app.Cleanup(ctx)

					monitor, err := initMonitor(app)
					if err != nil {
						return err
					}

					queue, err := initQueue(app, "")
					if err != nil {
						return err
					}

					recovered, err := trigger.RecoverOrphans(ctx, queue, monitor, c.Bool("all"))
					if err != nil {
						return err
					}

					log.Printf("Recovered %d notifications", recovered)
					return nil
				},
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

// initQueue opens the notification queue with the given consumer name.
func initQueue(app *setup.App, consumer string) (*trigger.Queue, error) {
	client, err := app.RedisManager.GetClient(redis.QueueDBIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue client: %w", err)
	}

	opts := trigger.QueueOptionsFromConfig(&app.Config.Worker.Queue)
	opts.Consumer = consumer

	return trigger.NewQueue(client, opts, app.Logger), nil
}

// initMonitor opens the worker status monitor.
func initMonitor(app *setup.App) (*trigger.Monitor, error) {
	client, err := app.RedisManager.GetClient(redis.WorkerStatusDBIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to get status client: %w", err)
	}

	return trigger.NewMonitor(client, app.Logger), nil
}

// runWorker consumes notifications until interrupted.
func runWorker(ctx context.Context, concurrency int, inMemory bool, metricsAddr string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := setup.InitializeApp(ctx, telemetry.ServiceWorker, WorkerLogDir,
		setup.Options{SkipDatabase: inMemory, MetricsAddr: metricsAddr})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.Background())

	cfg := app.Config.Worker
	if concurrency <= 0 {
		concurrency = cfg.Concurrency
	}

	badges, err := setup.BadgeEngine(&cfg.Badges)
	if err != nil {
		return err
	}

	if inMemory {
		app.Logger.Warn("Running with in-memory aggregates, nothing will be persisted")
	}

	eng := engine.New(app.Store(), badges, app.Logger)
	dispatcher := trigger.NewDispatcher(eng, app.Logger)

	monitor, err := initMonitor(app)
	if err != nil {
		return err
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	reporter := trigger.NewStatusReporter(monitor, hostname, app.Logger)

	// The processing list is named after the worker so siblings can tell it apart
	queue, err := initQueue(app, reporter.GetWorkerID())
	if err != nil {
		return err
	}

	// Stagger startup so a fleet restarting together does not hit the store at once
	delay := time.Duration(cfg.StartupDelay) * time.Millisecond
	if utils.ContextSleepWithLog(ctx, delay, app.Logger, "Interrupted during startup delay") == utils.SleepCancelled {
		return nil
	}

	recovered, err := trigger.RecoverOrphans(ctx, queue, monitor, false)
	if err != nil {
		return fmt.Errorf("failed to recover orphaned notifications: %w", err)
	}
	if recovered > 0 {
		app.Logger.Info("Recovered orphaned notifications", zap.Int("count", recovered))
	}

	worker := trigger.NewWorker(queue, dispatcher, trigger.WorkerOptions{
		Concurrency: concurrency,
		RetryDelay:  time.Duration(cfg.Queue.RetryDelay) * time.Millisecond,
		Reporter:    reporter,
	}, app.Logger)

	app.Logger.Info("Starting worker",
		zap.String("workerID", reporter.GetWorkerID()),
		zap.Int("concurrency", concurrency),
		zap.Bool("memory", inMemory))

	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}
