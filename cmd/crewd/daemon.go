package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/crewd-dev/crewd/internal/audit"
	"github.com/crewd-dev/crewd/internal/config"
	"github.com/crewd-dev/crewd/internal/controlplane"
	"github.com/crewd-dev/crewd/internal/decide"
	"github.com/crewd-dev/crewd/internal/heartbeat"
	"github.com/crewd-dev/crewd/internal/lease"
	"github.com/crewd-dev/crewd/internal/models"
	"github.com/crewd-dev/crewd/internal/probe"
	"github.com/crewd-dev/crewd/internal/queue"
	"github.com/crewd-dev/crewd/internal/store"
	"github.com/crewd-dev/crewd/internal/telemetry"
	"github.com/crewd-dev/crewd/internal/verify"
	"github.com/crewd-dev/crewd/internal/worker"
)

var (
	configPath  string
	listenAddr  string
	dbPath      string
	backlogPath string
	executors   int
	verifiers   int
	quiet       bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the Crewd daemon",
	Long:  `Starts the Crewd daemon: the HTTP API, the lease sweep, the heartbeat monitor, and the in-process worker loops.`,
	RunE:  runDaemon,
}

func init() {
	homeDir, _ := os.UserHomeDir()
	crewdHome := filepath.Join(homeDir, ".crewd")

	daemonCmd.Flags().StringVar(&configPath, "config", filepath.Join(crewdHome, "config.yaml"), "Path to config file")
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides config)")
	daemonCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
	daemonCmd.Flags().StringVar(&backlogPath, "backlog", "", "Path to a YAML backlog fed to the planner")
	daemonCmd.Flags().IntVar(&executors, "executors", 1, "Number of executor loops")
	daemonCmd.Flags().IntVar(&verifiers, "verifiers", 1, "Number of verifier loops")
	daemonCmd.Flags().BoolVar(&quiet, "quiet", false, "Log to file only, not stdout")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	homeDir, _ := os.UserHomeDir()
	crewdHome := filepath.Join(homeDir, ".crewd")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(crewdHome, "crewd.db")
	}

	logger, logCloser, err := telemetry.NewLogger(crewdHome, cfg.LogLevel, quiet)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	logger.Info("starting crewd daemon", "config", configPath, "db", cfg.DBPath)

	s, err := store.New(cfg.DBPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher := config.NewWatcher(configPath, cfg, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watch unavailable, reload disabled", "error", err)
	}

	events := audit.NewWriter(s)
	leases := lease.NewManager(s, events, logger, cfg.LeaseTTL())
	monitor := heartbeat.NewMonitor(s, events, logger, cfg.UnresponsiveAfter())
	q := queue.NewManager(s, events, logger, cfg.QueueDepthMin, cfg.QueueDepthMax)

	workDir, _ := os.Getwd()
	registry := probe.NewRegistry()
	probe.RegisterReference(registry, workDir)
	engine := verify.NewEngine(s, events, registry, logger)
	controller := decide.NewController(s, events, logger, nil)

	service := controlplane.NewService(s, events, leases, monitor, q, controller)
	server := controlplane.NewServer(service, logger, cfg.ListenAddr)

	go leases.RunSweep(ctx, cfg.SweepInterval())
	go monitor.Run(ctx, cfg.SweepInterval())

	opts := worker.Options{
		Store:             s,
		Events:            events,
		Leases:            leases,
		Heartbeat:         monitor,
		Queue:             q,
		Logger:            logger,
		PollInterval:      cfg.PollInterval(),
		HeartbeatInterval: cfg.HeartbeatInterval(),
	}

	var wg sync.WaitGroup
	for i := 0; i < executors; i++ {
		exec := worker.NewExecutor(opts, &referencePerformer{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			exec.Run(ctx)
		}()
	}
	policy := func() config.PolicyConfig { return watcher.Current().Policy }
	for i := 0; i < verifiers; i++ {
		ver := worker.NewVerifier(opts, engine, controller, policy)
		wg.Add(1)
		go func() {
			defer wg.Done()
			ver.Run(ctx)
		}()
	}
	if backlogPath != "" {
		source, err := newBacklogSource(backlogPath)
		if err != nil {
			return err
		}
		planner := worker.NewPlanner(opts, source)
		wg.Add(1)
		go func() {
			defer wg.Done()
			planner.Run(ctx)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", "error", err)
			cancel()
			wg.Wait()
			s.Close()
			return err
		}
	}

	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := s.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// referencePerformer is the built-in executor body. It does no real work:
// it acknowledges the acceptance criteria in the completion summary so the
// verification path can be exercised end to end. Real deployments replace it
// with a connector to an actual agent.
type referencePerformer struct{}

func (p *referencePerformer) Perform(_ context.Context, task *models.Task) (string, []string, error) {
	if len(task.AcceptanceCriteria) == 0 {
		return fmt.Sprintf("executed %q", task.Title), nil, nil
	}
	return fmt.Sprintf("executed %q, addressed criteria: %s",
		task.Title, strings.Join(task.AcceptanceCriteria, "; ")), nil, nil
}
