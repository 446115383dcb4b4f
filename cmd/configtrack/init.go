package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configtrack.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}
	return cmd
}

func runInit() error {
	configPath := "configtrack.yaml"
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}

	contents := `environment: https://api.example.com/v1
chat_id: ""
call_timeout: 30s

store:
  backend: redis
  redis:
    addr: localhost:6379
    password: ""
    db: 0
  commit_ttl: 2160h
  snapshot_ttl: 720h

cache:
  backend: memory
  ttl: 1h

retry:
  max_attempts: 5
  initial_backoff: 500ms
  max_backoff: 30s
  conflict_attempts: 3

mcp:
  command: entity-server
  args: []
`
	if err := os.WriteFile(configPath, []byte(contents), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", configPath, err)
	}
	return nil
}
