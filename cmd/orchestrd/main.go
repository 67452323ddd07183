// Orchestrd is an LLM-driven multi-agent orchestration daemon.
//
// It supervises stdio tool provider processes, discovers specialist
// agents over HTTP, asks a planning model to decompose incoming tasks,
// and executes the resulting plans with dependency-aware concurrency.
//
// Usage:
//
//	# Start the daemon with a config file
//	orchestrd -config orchestrd.yaml
//
//	# Configure via environment
//	ORCHESTRD_SERVER_HTTP_PORT=8900 orchestrd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestrd/internal/a2a"
	"github.com/fyrsmithlabs/orchestrd/internal/config"
	"github.com/fyrsmithlabs/orchestrd/internal/coordinator"
	"github.com/fyrsmithlabs/orchestrd/internal/discovery"
	"github.com/fyrsmithlabs/orchestrd/internal/logging"
	"github.com/fyrsmithlabs/orchestrd/internal/mcp"
	"github.com/fyrsmithlabs/orchestrd/internal/planner"
	"github.com/fyrsmithlabs/orchestrd/internal/server"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  orchestrd           Start the orchestrd daemon\n")
			fmt.Fprintf(os.Stderr, "  orchestrd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("orchestrd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the orchestrd daemon and blocks until the context is
// canceled.
//
// Initialization order:
//  1. Load and validate configuration
//  2. Initialize the structured logger
//  3. Create the tool provider supervisor and protocol client
//  4. Create the agent caller, prober, and discovery service
//  5. Create the planning delegate and coordinator
//  6. Start the discovery loop and HTTP server
//  7. On cancellation, drain HTTP then stop every provider process
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info(ctx, "starting orchestrd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Int("providers", len(cfg.Providers)),
		zap.Int("seed_endpoints", len(cfg.Discovery.Endpoints)))

	// Tool provider supervision and protocol client.
	manager := mcp.NewProcessManager(cfg.Providers, cfg.Timeouts.ProviderShutdown.Duration(), logger)
	toolClient := mcp.NewClient(manager, logger, mcp.NewMetrics(logger))
	defer manager.ReleaseAll(context.Background())

	for _, provider := range manager.Providers() {
		if _, err := toolClient.Initialize(ctx, provider); err != nil {
			// A missing tool binary degrades the catalog, it does not
			// prevent startup. The provider is retried on first use.
			logger.Warn(ctx, "provider failed to start",
				zap.String("provider", provider), zap.Error(err))
			continue
		}
		if _, err := toolClient.DiscoverTools(ctx, provider); err != nil {
			logger.Warn(ctx, "tool discovery failed",
				zap.String("provider", provider), zap.Error(err))
		}
	}
	logger.Info(ctx, "tool catalog ready", zap.Int("tools", len(toolClient.Tools())))

	// Agent discovery.
	caller := a2a.NewCaller(cfg.Timeouts.AgentCommunication.Duration(), logger)
	prober := discovery.NewProber(
		caller,
		cfg.Discovery.ProbesPerSecond,
		cfg.Timeouts.AgentDiscovery.Duration(),
		cfg.Timeouts.HealthCheck.Duration(),
		logger,
	)
	discoverySvc := discovery.NewService(prober, discovery.NewRegistry(), cfg.Discovery.Endpoints, logger)

	discoveryCtx, stopDiscovery := context.WithCancel(ctx)
	defer stopDiscovery()
	go discoverySvc.Run(discoveryCtx, cfg.Discovery.RefreshInterval.Duration())

	// Planning and coordination.
	delegate, err := planner.NewLLMDelegate(cfg.Planner, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize planning delegate: %w", err)
	}
	coord := coordinator.New(discoverySvc, caller, toolClient, delegate, cfg.Timeouts, logger)

	// HTTP surface.
	srv, err := server.NewServer(coord, discoverySvc, toolClient, logger, cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "http shutdown incomplete", zap.Error(err))
	}

	return nil
}
