package commands

import (
	"context"
	"fmt"

	"github.com/onlyrealroles/ghostscore/internal/engine"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// AuditCommands returns the commands that check aggregates against the ledger.
func AuditCommands(deps *CLIDependencies) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "audit",
			Usage: "List owners whose score or approvals disagree with their ledger",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "batch-size",
					Usage: "Owners read per query",
					Value: 500,
				},
			},
			Action: handleAudit(deps),
		},
		{
			Name:  "repair",
			Usage: "Recount drifted owners from their ledger",
			Description: `Recounts valid ledger entries and moves score and approvals to match.
Badges the corrected score qualifies for are granted; earned badges are never removed.

Examples:
  db repair                 # Repair every drifted owner
  db repair --owner abc123  # Repair a single owner`,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "owner",
					Usage: "Repair only this owner",
				},
				&cli.IntFlag{
					Name:  "batch-size",
					Usage: "Owners read per query",
					Value: 500,
				},
			},
			Action: handleRepair(deps),
		},
	}
}

func newAuditor(deps *CLIDependencies) *engine.Auditor {
	store := deps.DB.Store()
	return engine.NewAuditor(store, store, deps.Badges, deps.Logger)
}

// handleAudit handles the 'audit' command.
func handleAudit(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		drifted, err := newAuditor(deps).Drift(ctx, int(c.Int("batch-size")))
		if err != nil {
			return err
		}

		if len(drifted) == 0 {
			fmt.Println("All owner aggregates match the ledger.")
			return nil
		}

		for _, t := range drifted {
			fmt.Printf("%s score=%d approvals=%d ledger=%d\n",
				t.OwnerID, t.Score, t.ApprovalsCount, t.ValidVotes)
		}
		fmt.Printf("%d owners drifted.\n", len(drifted))

		return nil
	}
}

// handleRepair handles the 'repair' command.
func handleRepair(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		auditor := newAuditor(deps)

		ownerIDs := []string{c.String("owner")}
		if ownerIDs[0] == "" {
			drifted, err := auditor.Drift(ctx, int(c.Int("batch-size")))
			if err != nil {
				return err
			}

			ownerIDs = ownerIDs[:0]
			for _, t := range drifted {
				ownerIDs = append(ownerIDs, t.OwnerID)
			}
		}

		var repaired, failed int
		for _, ownerID := range ownerIDs {
			update, err := auditor.Repair(ctx, ownerID)
			if err != nil {
				deps.Logger.Error("Failed to repair owner", zap.String("ownerID", ownerID), zap.Error(err))
				failed++
				continue
			}
			if update == nil {
				continue
			}

			repaired++
			fmt.Printf("%s score %d -> %d, new badges %v\n",
				ownerID, update.Before.Score, update.After.Score, update.Awarded)
		}

		fmt.Printf("Repaired %d owners.\n", repaired)
		if failed > 0 {
			return fmt.Errorf("failed to repair %d owners (see logs for details)", failed)
		}

		return nil
	}
}
