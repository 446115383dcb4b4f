package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"configtrack/internal/config"
)

func pruneCmd() *cobra.Command {
	var before string
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove commits and snapshots older than their retention windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(before)
		},
	}
	cmd.Flags().StringVar(&before, "before", "", "Age cutoff, e.g. 720h (defaults to the configured TTLs)")
	return cmd
}

func runPrune(before string) error {
	ctx := context.Background()

	cfg, err := config.LoadConfig("configtrack.yaml")
	if err != nil {
		return err
	}

	commitAge := cfg.Store.CommitTTL.Std()
	snapshotAge := cfg.Store.SnapshotTTL.Std()
	if before != "" {
		age, err := time.ParseDuration(before)
		if err != nil {
			return fmt.Errorf("parsing --before: %w", err)
		}
		commitAge, snapshotAge = age, age
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	now := time.Now()
	commits, err := db.PruneCommits(ctx, cfg.Environment, now.Add(-commitAge))
	if err != nil {
		return err
	}
	snapshots, err := db.PruneSnapshots(ctx, cfg.Environment, now.Add(-snapshotAge))
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Pruned %d commits older than %s and %d snapshots older than %s.\n",
		commits, commitAge, snapshots, snapshotAge)
	return nil
}
