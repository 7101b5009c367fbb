package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/onlyrealroles/ghostscore/internal/database/types"
	"github.com/urfave/cli/v3"
)

// InspectCommands returns read-only views of aggregates, ledgers and posts, plus
// report seeding for environments where reports are not synced in.
func InspectCommands(deps *CLIDependencies) []*cli.Command {
	return []*cli.Command{
		{
			Name:      "owner",
			Usage:     "Show an owner's aggregate and ledger",
			ArgsUsage: "OWNER",
			Action:    handleOwner(deps),
		},
		{
			Name:  "top",
			Usage: "Show the highest scoring owners",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "limit",
					Usage: "Number of owners to show",
					Value: 20,
				},
			},
			Action: handleTop(deps),
		},
		{
			Name:      "post",
			Usage:     "Show a post's vote counters",
			ArgsUsage: "POST",
			Action:    handlePost(deps),
		},
		{
			Name:      "add-report",
			Usage:     "Register a ghost report and its owner",
			ArgsUsage: "REPORT OWNER",
			Action:    handleAddReport(deps),
		},
	}
}

// handleOwner handles the 'owner' command.
func handleOwner(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() != 1 {
			return ErrOwnerRequired
		}
		ownerID := c.Args().First()

		agg, err := deps.DB.Model().Aggregate().GetAggregate(ctx, ownerID)
		if err != nil {
			return err
		}

		entries, err := deps.DB.Model().Ledger().GetEntriesByOwner(ctx, ownerID)
		if err != nil {
			return err
		}

		printAggregate(agg)

		var valid int
		for _, e := range entries {
			mark := " "
			if e.LastContributedAsValid {
				mark = "*"
				valid++
			}
			fmt.Printf("  %s %s/%s  %s\n", mark, e.SubjectID, e.VoterID, e.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("Ledger: %d entries, %d valid\n", len(entries), valid)

		return nil
	}
}

// handleTop handles the 'top' command.
func handleTop(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		aggs, err := deps.DB.Model().Aggregate().GetTopOwners(ctx, max(int(c.Int("limit")), 1))
		if err != nil {
			return err
		}

		for i := range aggs {
			fmt.Printf("%3d. ", i+1)
			printAggregate(&aggs[i])
		}

		return nil
	}
}

// handlePost handles the 'post' command.
func handlePost(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() != 1 {
			return ErrPostRequired
		}

		post, err := deps.DB.Model().Post().GetPost(ctx, c.Args().First())
		if err != nil {
			return err
		}

		fmt.Printf("%s up=%d down=%d\n", post.ID, post.VotesUp, post.VotesDown)
		return nil
	}
}

// handleAddReport handles the 'add-report' command.
func handleAddReport(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() != 2 {
			return ErrReportArgs
		}

		report := &types.GhostReport{ID: c.Args().Get(0), OwnerID: c.Args().Get(1)}
		if err := deps.DB.Model().Report().SaveGhostReport(ctx, report); err != nil {
			return err
		}

		fmt.Printf("Registered report %s for owner %s\n", report.ID, report.OwnerID)
		return nil
	}
}

func printAggregate(agg *types.OwnerAggregate) {
	fmt.Printf("%s score=%d reports=%d approvals=%d badges=[%s]\n",
		agg.ID, agg.Score, agg.ReportsCount, agg.ApprovalsCount, strings.Join(agg.EarnedBadges, ", "))
}
