package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"configtrack/internal/config"
	"configtrack/internal/revert"
	"configtrack/internal/rpc"
)

func revertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revert <hash>",
		Short: "Revert the latest configuration commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRevert(args[0])
		},
	}
	return cmd
}

func runRevert(hash string) error {
	ctx := context.Background()

	cfg, err := config.LoadConfig("configtrack.yaml")
	if err != nil {
		return err
	}
	if cfg.MCP.Command == "" {
		return fmt.Errorf("mcp command is required to revert")
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	client := sdk.NewClient(&sdk.Implementation{
		Name:    "configtrack",
		Version: version,
	}, nil)
	transport := &sdk.CommandTransport{Command: exec.Command(cfg.MCP.Command, cfg.MCP.Args...)}
	remote, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connecting to entity server: %w", err)
	}
	defer remote.Close()

	caller := rpc.NewRetrying(rpc.NewMCPCaller(remote),
		cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoff.Std(), cfg.Retry.MaxBackoff.Std())
	engine := revert.NewEngine(caller, db, cfg.Environment, cfg.Retry.ConflictAttempts)

	outcome, err := engine.Revert(ctx, hash)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Revert of %s: %s\n", shortHash(outcome.CommitHash), outcome.Status)
	for _, action := range outcome.Executed {
		line := fmt.Sprintf("  %s %s %s", action.Action, action.EntityType, action.EntityID)
		if action.NewEntityID != "" {
			line += fmt.Sprintf(" -> new id %s", action.NewEntityID)
		}
		if action.Detail != "" {
			line += " (" + action.Detail + ")"
		}
		fmt.Fprintln(os.Stdout, line)
	}
	for _, msg := range outcome.Errors {
		fmt.Fprintf(os.Stdout, "  error: %s\n", msg)
	}
	for _, action := range outcome.Remaining {
		fmt.Fprintf(os.Stdout, "  manual %s: %s %s via %s (%s)\n",
			action.Kind, action.EntityType, action.EntityID, action.Tool, action.Reason)
	}
	if outcome.Instructions != "" {
		fmt.Fprintln(os.Stdout, outcome.Instructions)
	}
	return nil
}
