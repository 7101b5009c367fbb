package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/onlyrealroles/ghostscore/internal/redis"
	"github.com/onlyrealroles/ghostscore/internal/setup"
	"github.com/onlyrealroles/ghostscore/internal/setup/telemetry"
	"github.com/onlyrealroles/ghostscore/internal/trigger"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const (
	// QueueLogDir specifies where queue log files are stored.
	QueueLogDir = "logs/queue_logs"
)

// ErrFileRequired indicates the push command was called without a file.
var ErrFileRequired = errors.New("FILE argument required")

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "queue",
		Usage: "Inspect and feed the notification queue",
		Commands: []*cli.Command{
			{
				Name:      "push",
				Usage:     "Enqueue notifications from a JSON lines file",
				ArgsUsage: "FILE",
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() != 1 {
						return ErrFileRequired
					}

					return withQueue(ctx, func(app *setup.App, queue *trigger.Queue) error {
						return pushFile(ctx, app, queue, c.Args().First())
					})
				},
			},
			{
				Name:  "stats",
				Usage: "Show the length of the pending, processing and dead letter lists",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return withQueue(ctx, func(_ *setup.App, queue *trigger.Queue) error {
						stats, err := queue.Stats(ctx)
						if err != nil {
							return err
						}

						fmt.Printf("Pending:    %d\n", stats.Pending)
						fmt.Printf("Processing: %d\n", stats.Processing)
						fmt.Printf("Dead:       %d\n", stats.Dead)
						return nil
					})
				},
			},
			{
				Name:  "drain-dead",
				Usage: "Move dead letters back to pending with their attempts reset",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return withQueue(ctx, func(_ *setup.App, queue *trigger.Queue) error {
						moved, err := queue.DrainDead(ctx)
						if err != nil {
							return err
						}

						fmt.Printf("Requeued %d dead letters.\n", moved)
						return nil
					})
				},
			},
			{
				Name:  "workers",
				Usage: "List the workers that reported a heartbeat",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return withQueue(ctx, func(app *setup.App, _ *trigger.Queue) error {
						return listWorkers(ctx, app)
					})
				},
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

// withQueue initializes the application without a database and runs fn on the queue.
func withQueue(ctx context.Context, fn func(app *setup.App, queue *trigger.Queue) error) error {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceQueue, QueueLogDir, setup.Options{SkipDatabase: true})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(ctx)

	client, err := app.RedisManager.GetClient(redis.QueueDBIndex)
	if err != nil {
		return fmt.Errorf("failed to get queue client: %w", err)
	}

	queue := trigger.NewQueue(client, trigger.QueueOptionsFromConfig(&app.Config.Worker.Queue), app.Logger)

	return fn(app, queue)
}

// pushFile enqueues every notification in the file.
func pushFile(ctx context.Context, app *setup.App, queue *trigger.Queue, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	notifications, err := trigger.ReadNotifications(file)
	if err != nil {
		return err
	}

	if len(notifications) == 0 {
		fmt.Println("No notifications found in the file.")
		return nil
	}

	var failed int
	for _, n := range notifications {
		if err := queue.Enqueue(ctx, n); err != nil {
			app.Logger.Error("Failed to enqueue notification",
				zap.String("kind", string(n.Kind)),
				zap.Error(err))
			failed++
		}
	}

	fmt.Printf("Successfully queued %d notifications.\n", len(notifications)-failed)

	if failed > 0 {
		fmt.Printf("Failed to queue %d notifications (see logs for details).\n", failed)
	}

	return nil
}

// listWorkers prints the last status of every worker.
func listWorkers(ctx context.Context, app *setup.App) error {
	client, err := app.RedisManager.GetClient(redis.WorkerStatusDBIndex)
	if err != nil {
		return fmt.Errorf("failed to get status client: %w", err)
	}

	statuses, err := trigger.NewMonitor(client, app.Logger).GetAllStatuses(ctx)
	if err != nil {
		return err
	}

	if len(statuses) == 0 {
		fmt.Println("No workers have reported.")
		return nil
	}

	now := time.Now()
	for _, s := range statuses {
		state := "online"
		switch {
		case s.IsStale(now):
			state = "offline"
		case !s.IsHealthy:
			state = "unhealthy"
		}

		fmt.Printf("%s  %-12s %-9s handled=%d failed=%d last_seen=%s\n",
			s.WorkerID, s.Hostname, state, s.Handled, s.Failed,
			now.Sub(s.LastSeen).Truncate(time.Second))
	}

	return nil
}
