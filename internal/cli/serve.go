package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/vigil/internal/api"
	"github.com/ppiankov/vigil/internal/extract"
	"github.com/ppiankov/vigil/internal/ledger"
	"github.com/ppiankov/vigil/internal/model"
	"github.com/ppiankov/vigil/internal/monitor"
	"github.com/ppiankov/vigil/internal/store"
)

var (
	serveAddr      string
	serveDataDir   string
	ledgerURL      string
	extractorMode  string
	extractorURL   string
	extractorModel string
	pollInterval   time.Duration
	retryCeiling   int
	sessionWorkers int
)

// serveCmd runs the monitor daemon: the polling pipeline plus the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the conflict monitor daemon",
	Long: `Serve starts the pipeline orchestrator and the operator API.

The orchestrator polls the ledger for new instruction events, extracts
structured claims from each event exactly once (with bounded retries),
and runs contradiction analysis over each session's accumulated claims.

Endpoints:
  GET /monitor/status
  GET /monitor/claims/{sessionID}
  GET /monitor/conflicts/{sessionID}
  GET /health`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "state directory (default from config)")
	serveCmd.Flags().StringVar(&ledgerURL, "ledger-url", "", "ledger service base URL")
	serveCmd.Flags().StringVar(&extractorMode, "extractor", "", "extractor mode (remote, openai, ollama)")
	serveCmd.Flags().StringVar(&extractorURL, "extractor-url", "", "extractor base URL")
	serveCmd.Flags().StringVar(&extractorModel, "extractor-model", "", "model name for in-process extraction")
	serveCmd.Flags().DurationVar(&pollInterval, "interval", 0, "polling interval (default 5s)")
	serveCmd.Flags().IntVar(&retryCeiling, "retry-ceiling", 0, "max extraction attempts per event (default 3)")
	serveCmd.Flags().IntVar(&sessionWorkers, "session-workers", 0, "concurrent session workers per cycle (default 4)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cfg)

	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	claims, err := store.NewClaimStore(cfg.Storage.DataDir, cfg.Storage.SnapshotTTL, logger)
	if err != nil {
		return err
	}
	conflicts, err := store.NewConflictStore(cfg.Storage.DataDir, logger)
	if err != nil {
		return err
	}
	records, err := store.NewProcessingLedger(cfg.Storage.DataDir, logger)
	if err != nil {
		return err
	}

	extractor, err := newExtractor(cfg.Extractor, logger)
	if err != nil {
		return err
	}

	ledgerClient := ledger.NewHTTPClient(cfg.Ledger)
	orch := monitor.New(ledgerClient, extractor, claims, conflicts, records, cfg, logger)
	orch.Start()

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.NewRouter(claims, conflicts, orch, cfg.Server, logger),
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down")

	orch.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func applyServeFlags(cfg *model.Config) {
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveDataDir != "" {
		cfg.Storage.DataDir = serveDataDir
	}
	if ledgerURL != "" {
		cfg.Ledger.BaseURL = ledgerURL
	}
	if extractorMode != "" {
		cfg.Extractor.Mode = extractorMode
	}
	if extractorURL != "" {
		cfg.Extractor.BaseURL = extractorURL
	}
	if extractorModel != "" {
		cfg.Extractor.Model = extractorModel
	}
	if pollInterval > 0 {
		cfg.Monitor.PollInterval = pollInterval
	}
	if retryCeiling > 0 {
		cfg.Monitor.RetryCeiling = retryCeiling
	}
	if sessionWorkers > 0 {
		cfg.Monitor.SessionWorkers = sessionWorkers
	}
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newExtractor picks the extractor implementation for the configured mode.
func newExtractor(cfg model.ExtractorConfig, logger *zap.Logger) (extract.Extractor, error) {
	switch cfg.Mode {
	case "remote", "":
		return extract.NewRemoteExtractor(cfg, logger), nil
	case "openai":
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		return extract.NewLLMExtractor(cfg, logger)
	case "ollama":
		if cfg.BaseURL == "" || cfg.BaseURL == model.DefaultConfig().Extractor.BaseURL {
			cfg.BaseURL = "http://localhost:11434/v1"
		}
		return extract.NewLLMExtractor(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown extractor mode %q", cfg.Mode)
	}
}
