package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roasbeef/draftsmith/internal/build"
	"github.com/roasbeef/draftsmith/internal/config"
	"github.com/roasbeef/draftsmith/internal/db"
	"github.com/roasbeef/draftsmith/internal/draft"
	"github.com/roasbeef/draftsmith/internal/intent"
	"github.com/roasbeef/draftsmith/internal/llm"
	"github.com/roasbeef/draftsmith/internal/provider"
	"github.com/roasbeef/draftsmith/internal/store"
	"github.com/roasbeef/draftsmith/internal/web"
)

var rootCmd = &cobra.Command{
	Use:   "draftsmithd",
	Short: "Draftsmith email drafting daemon",
	Long: "Generates contextual email drafts from mailbox threads " +
		"using an LLM, with persisted generation sessions.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the drafting API server",
	RunE:  runServe,
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create a timestamped backup of the session database",
	RunE:  runBackup,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()

	flags.String("server.addr", web.DefaultListenAddr,
		"API listen address")
	flags.Bool("server.debug", false, "Enable verbose request logging")
	flags.String("db.path", "", "Path to the SQLite database "+
		"(defaults to ~/.draftsmith/draftsmith.db)")

	flags.String("llm.base_url", "http://localhost:1234",
		"OpenAI-compatible completion endpoint")
	flags.String("llm.api_key", "", "Completion endpoint API key")
	flags.String("llm.model", "gpt-4o-mini", "Model identifier")
	flags.Float64("llm.temperature", 0.7, "Sampling temperature")
	flags.Duration("llm.timeout", llm.DefaultTimeout,
		"Per-completion timeout")

	flags.String("provider.api_url", "http://localhost:8080",
		"Mailbox gateway base URL")
	flags.Duration("provider.timeout", 30*time.Second,
		"Mailbox gateway request timeout")
	flags.Int("provider.max_results", provider.DefaultMaxResults,
		"Max emails fetched per address")

	flags.Int("generate.max_attempts", draft.DefaultMaxAttempts,
		"Model calls allowed per draft, including the first")
	flags.Int("generate.excerpt_budget", 0,
		"Thread excerpt budget in characters (0 for default)")
	flags.Int("generate.intent_max_messages", intent.DefaultMaxMessages,
		"Messages shown to the intent classifier")
	flags.Duration("generate.intent_staleness", intent.DefaultStaleness,
		"Thread age treated as needing a follow-up")

	flags.Int("batch.workers", draft.DefaultBatchWorkers,
		"Concurrent address workflows per batch")
	flags.Duration("batch.timeout", draft.DefaultBatchTimeout,
		"Overall batch deadline")

	flags.String("logging.dir", "",
		"Directory for rotated log files (empty disables file logging)")
	flags.Int("logging.max_log_files", build.DefaultMaxLogFiles,
		"Rotated log files kept on disk")
	flags.Int("logging.max_log_file_size", build.DefaultMaxLogFileSize,
		"Log file size in MB before rotation")

	flags.VisitAll(func(f *pflag.Flag) {
		_ = viper.BindPFlag(f.Name, f)
	})

	rootCmd.AddCommand(serveCmd, backupCmd)
}

func initConfig() {
	viper.SetConfigName("draftsmith")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.draftsmith")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n",
			viper.ConfigFileUsed())
	}
}

// resolveDBPath falls back to the default location when no path is
// configured.
func resolveDBPath(cfg config.Config) (string, error) {
	if cfg.DB.Path != "" {
		return cfg.DB.Path, nil
	}
	return db.DefaultDBPath()
}

// newLogger builds the daemon logger, fanning out to a rotating log
// file when a log directory is configured.
func newLogger(cfg config.LoggingConfig) (*slog.Logger, func(), error) {
	console := slog.NewTextHandler(os.Stderr, nil)
	if cfg.Dir == "" {
		return slog.New(console), func() {}, nil
	}

	writer := build.NewRotatingLogWriter()
	rotatorCfg := build.DefaultLogRotatorConfig()
	rotatorCfg.LogDir = cfg.Dir
	if cfg.MaxLogFiles > 0 {
		rotatorCfg.MaxLogFiles = cfg.MaxLogFiles
	}
	if cfg.MaxLogFileSize > 0 {
		rotatorCfg.MaxLogFileSize = cfg.MaxLogFileSize
	}

	if err := writer.InitLogRotator(rotatorCfg); err != nil {
		return nil, nil, err
	}

	handler := build.NewHandlerSet(
		console, slog.NewTextHandler(writer, nil),
	)

	return slog.New(handler), func() { _ = writer.Close() }, nil
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load()

	logger, closeLogs, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer closeLogs()
	slog.SetDefault(logger)

	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return err
	}

	database, err := db.Open(dbPath, logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	sessions := store.NewSQLiteStore(database, logger)
	defer sessions.Close()

	llmClient := llm.NewOpenAIClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: float32(cfg.LLM.Temperature),
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	gateway := provider.NewHTTPClient(
		cfg.Provider.BaseURL, cfg.Provider.Timeout, logger,
	)

	genCfg := draft.Config{
		MaxAttempts:   cfg.Generate.MaxAttempts,
		ExcerptBudget: cfg.Generate.ExcerptBudget,
		Intent: intent.Config{
			MaxMessages: cfg.Generate.IntentMaxMessages,
			Staleness:   cfg.Generate.IntentStaleness,
		},
	}
	generator := draft.NewGenerator(genCfg, llmClient, sessions, logger)

	service := draft.NewService(draft.ServiceConfig{
		Generator:       genCfg,
		BatchWorkers:    cfg.Batch.Workers,
		BatchTimeout:    cfg.Batch.Timeout,
		FetchMaxResults: cfg.Provider.MaxResults,
	}, gateway, generator, llmClient, logger)

	server := web.NewServer(web.Config{
		ListenAddr: cfg.Server.ListenAddr,
		Debug:      cfg.Server.Debug,
	}, service, sessions, logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutting down", "signal", sig.String())
		if err := server.Stop(context.Background()); err != nil {
			return err
		}
		return <-errChan

	case err := <-errChan:
		return err
	}
}

func runBackup(_ *cobra.Command, _ []string) error {
	cfg := config.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return err
	}

	database, err := db.OpenSQLite(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	return db.BackupDatabase(database, dbPath, logger)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
