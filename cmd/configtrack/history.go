package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"configtrack/internal/config"
)

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent configuration commits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of commits")
	return cmd
}

func runHistory(limit int) error {
	ctx := context.Background()

	cfg, err := config.LoadConfig("configtrack.yaml")
	if err != nil {
		return err
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	commits, err := db.ListCommits(ctx, cfg.Environment, limit)
	if err != nil {
		return err
	}
	if len(commits) == 0 {
		fmt.Fprintln(os.Stdout, "No configuration changes recorded.")
		return nil
	}

	for _, commit := range commits {
		fmt.Fprintf(os.Stdout, "%s  %s  %s (%d changes)\n",
			shortHash(commit.Hash), commit.Timestamp.Format(time.RFC3339), commit.Message, len(commit.Changes))
	}
	return nil
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
