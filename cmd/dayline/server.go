package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dayline/dayline/internal/api"
	"github.com/dayline/dayline/internal/config"
	"github.com/dayline/dayline/internal/dispatch"
	"github.com/dayline/dayline/internal/enrich"
	"github.com/dayline/dayline/internal/ingest"
	"github.com/dayline/dayline/internal/pipeline"
	"github.com/dayline/dayline/internal/ratelimit"
	"github.com/dayline/dayline/internal/status"
	"github.com/dayline/dayline/internal/storage"
	"github.com/dayline/dayline/internal/sweep"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the dayline server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running dayline server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show dayline system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "dayline.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func logLevelFrom(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "dayline version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevelFrom(cfg.Log.Level),
	})))

	// Ensure the API token exists in the platform secret store.
	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Write PID file. Check if a server is already running via the health
	// endpoint first.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("dayline is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("dayline is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Select the enrichment provider.
	svc, err := enrich.NewService(enrich.Config{
		Provider: cfg.Engine.Provider,
		BaseURL:  cfg.Engine.BaseURL,
		APIKey:   cfg.Engine.APIKey,
		Model:    cfg.Engine.Model,
	})
	if err != nil {
		return fmt.Errorf("configuring enrichment provider: %w", err)
	}
	slog.Info("enrichment provider ready", "provider", cfg.Engine.Provider)

	// Build the enrichment pipeline: one shared limiter, one worker per
	// entity kind, a dispatcher fanning queued jobs out to them.
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		TokensPerMinute:   cfg.RateLimit.TokensPerMinute,
		MaxWaitAttempts:   cfg.RateLimit.MaxWaitAttempts,
		BaseDelay:         cfg.RateLimit.BaseDelay,
	})
	workerCfg := pipeline.Config{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay,
		Jitter:     cfg.Retry.Jitter,
	}
	noteWorker := pipeline.NewNoteWorker(store, svc, limiter, workerCfg)
	taskWorker := pipeline.NewTaskWorker(store, svc, limiter, workerCfg)
	activityWorker := pipeline.NewActivityWorker(store, svc, workerCfg)
	dispatcher := dispatch.NewDispatcher(store, noteWorker, taskWorker, activityWorker,
		limiter, cfg.Worker.PollInterval, cfg.Worker.Concurrency)

	// Janitor for stuck and failed work.
	sweeper := sweep.New(store, sweep.Config{
		Schedule:      cfg.Sweep.Schedule,
		StaleAfter:    cfg.Sweep.StaleAfter,
		Requeue:       cfg.Sweep.Requeue,
		RequeueMaxAge: cfg.Sweep.RequeueMaxAge,
	})
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	// Build HTTP handler and server.
	importer := ingest.NewImporter(store, slog.Default())
	handler := api.NewHandler(api.Deps{
		Store:      store,
		Enrich:     svc,
		Usage:      limiter,
		Importer:   importer,
		Token:      apiToken,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Run the dispatcher loops under an errgroup tied to the signal context.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dispatcher.Run(gctx)
		return nil
	})

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{Store: store})
	stdioSrv := server.NewStdioServer(mcpSrv)
	g.Go(func() error {
		if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})
	slog.Info("MCP server started (stdio transport)")

	// Start HTTP server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "dayline listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			stop()
			g.Wait()
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	stop()
	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("dayline is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop dayline (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to dayline (PID %d)", pid)
	return nil
}

// healthSnapshot mirrors the health endpoint's response body.
type healthSnapshot struct {
	Status    string `json:"status"`
	Enricher  string `json:"enricher"`
	RateLimit struct {
		WindowRequests    int `json:"window_requests"`
		WindowTokens      int `json:"window_tokens"`
		RequestsPerMinute int `json:"requests_per_minute"`
		TokensPerMinute   int `json:"tokens_per_minute"`
	} `json:"rate_limit"`
	Jobs     map[string]int            `json:"jobs"`
	Entities map[string]map[string]int `json:"entities"`
}

// failedEntities totals FAILED rows across all entity kinds.
func (h healthSnapshot) failedEntities() int {
	total := 0
	for _, counts := range h.Entities {
		total += counts[string(status.Failed)]
	}
	return total
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	var health healthSnapshot
	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
			decodeJSON(resp, &health)
		} else {
			resp.Body.Close()
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Provider", "%s", cfg.Engine.Provider)
	if running {
		printStatus("Enricher", "%s", health.Enricher)
		printStatus("Queue", "%d pending, %d running",
			health.Jobs["pending"], health.Jobs["running"])
		printStatus("Window", "%d/%d requests, %d/%d tokens",
			health.RateLimit.WindowRequests, health.RateLimit.RequestsPerMinute,
			health.RateLimit.WindowTokens, health.RateLimit.TokensPerMinute)
		if failed := health.failedEntities(); failed > 0 {
			printStatus("Failed", "%d entities (run enrich to retry)", failed)
		}
	}

	// Show entity counts if the server is up and a token is available.
	apiToken, tokenErr := config.GetAPIToken(config.NewKeychain())
	if tokenErr == nil && running {
		apiClient := &apiClient{baseURL: serverURL, token: apiToken, httpClient: client}

		var notes []struct {
			ID string `json:"id"`
		}
		if resp, err := apiClient.get(ctx, "/notes?limit=100"); err == nil {
			if decodeJSON(resp, &notes) == nil {
				printStatus("Notes", "%s", countLabel(len(notes), 100))
			}
		}
		var tasks []struct {
			ID string `json:"id"`
		}
		if resp, err := apiClient.get(ctx, "/tasks?limit=100"); err == nil {
			if decodeJSON(resp, &tasks) == nil {
				printStatus("Tasks", "%s", countLabel(len(tasks), 100))
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
