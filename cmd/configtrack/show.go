package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"configtrack/internal/config"
)

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <hash>",
		Short: "Show the full change list of one commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(args[0])
		},
	}
	return cmd
}

func runShow(hash string) error {
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

	commit, err := db.GetCommit(ctx, cfg.Environment, hash)
	if err != nil {
		return err
	}
	if commit == nil {
		return fmt.Errorf("commit %s not found", hash)
	}

	fmt.Fprintf(os.Stdout, "Commit:  %s\n", commit.Hash)
	if commit.Parent != "" {
		fmt.Fprintf(os.Stdout, "Parent:  %s\n", commit.Parent)
	}
	fmt.Fprintf(os.Stdout, "Date:    %s\n", commit.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(os.Stdout, "Message: %s\n", commit.Message)
	if commit.UserRequest != "" {
		fmt.Fprintf(os.Stdout, "Request: %s\n", commit.UserRequest)
	}
	fmt.Fprintln(os.Stdout, "")

	for _, change := range commit.Changes {
		name := ""
		if change.EntityName != "" {
			name = fmt.Sprintf(" (%s)", change.EntityName)
		}
		fmt.Fprintf(os.Stdout, "%s %s %s%s\n", change.Operation, change.EntityType, change.EntityID, name)
		printState("before", change.Before)
		printState("after", change.After)
	}
	return nil
}

func printState(label string, state map[string]any) {
	if state == nil {
		fmt.Fprintf(os.Stdout, "  %s: null\n", label)
		return
	}
	data, err := json.Marshal(state)
	if err != nil {
		fmt.Fprintf(os.Stdout, "  %s: %v\n", label, state)
		return
	}
	fmt.Fprintf(os.Stdout, "  %s: %s\n", label, data)
}
