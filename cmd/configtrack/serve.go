package main

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/google/uuid"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"configtrack/internal/cache"
	"configtrack/internal/config"
	"configtrack/internal/mcp"
	"configtrack/internal/revert"
	"configtrack/internal/rpc"
	"configtrack/internal/store"
	"configtrack/internal/track"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tracking MCP server over stdio",
		RunE:  runServe,
	}
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.LoadConfig("configtrack.yaml")
	if err != nil {
		return err
	}
	if cfg.MCP.Command == "" {
		return fmt.Errorf("mcp command is required to serve")
	}

	// History and revert degrade to structured errors when the durable
	// store is unreachable; tracking of the agent's writes still runs.
	var db store.Store
	if opened, err := openStore(ctx, cfg); err != nil {
		log.WithError(err).Warn("durable store unavailable, history and revert disabled")
	} else {
		db = opened
		defer db.Close(ctx)
	}

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

	retrying := rpc.NewRetrying(rpc.NewMCPCaller(remote),
		cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoff.Std(), cfg.Retry.MaxBackoff.Std())
	bridge := rpc.NewBridge(ctx, retrying)
	defer bridge.Close()
	caller := bridge.Caller(cfg.CallTimeout.Std())

	snapshots, err := newSnapshotCache(ctx, cfg)
	if err != nil {
		return err
	}

	chatID := cfg.ChatID
	if chatID == "" {
		chatID = uuid.NewString()
	}

	session := track.NewSession(cfg.Environment, chatID, caller, snapshots, db)
	engine := revert.NewEngine(caller, db, cfg.Environment, cfg.Retry.ConflictAttempts)

	server := mcp.NewServer(session, engine, version)
	tools, err := remote.ListTools(ctx, nil)
	if err != nil {
		return fmt.Errorf("listing entity tools: %w", err)
	}
	server.RegisterProxies(tools.Tools)

	return server.Run(ctx, &sdk.StdioTransport{})
}

func newSnapshotCache(ctx context.Context, cfg *config.Config) (cache.SnapshotCache, error) {
	if cfg.Cache.Backend != "redis" {
		return cache.NewMemory(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Store.Redis.Addr,
		Password: cfg.Store.Redis.Password,
		DB:       cfg.Store.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to cache redis: %w", err)
	}
	return cache.NewRedis(client, cfg.Environment, cfg.Cache.TTL.Std()), nil
}
