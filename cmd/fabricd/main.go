package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/fabricd/fabricd/internal/shell/store"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:]))
}

func run(ctx context.Context, args []string) int {
	root := newRootCommand()
	root.SetArgs(args)

	if err := root.ExecuteContext(ctx); err != nil {
		var sErr *ServerError
		if errors.As(err, &sErr) {
			return sErr.ExitCode
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitConfigError
	}
	return ExitSuccess
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "fabricd",
		Short:         "Deploy container blueprints onto a fabric manager",
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and pipeline workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return migrateDatabase(configPath)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fabricd %s (built %s)\n", Version, BuildTime)
		},
	}

	root.AddCommand(serveCmd, migrateCmd, versionCmd)
	return root
}

// loadAndValidate reads the configuration and wraps failures with the config
// exit code.
func loadAndValidate(configPath string) (*Config, error) {
	cfg, err := LoadConfig(configPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return nil, &ServerError{Op: "LoadConfig", Err: err, ExitCode: ExitConfigError}
	}
	return cfg, nil
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := loadAndValidate(configPath)
	if err != nil {
		return err
	}

	logger := SetupLogger(cfg)
	logger.Info("starting fabricd",
		"version", Version,
		"config", configPath,
	)

	server, err := NewServer(cfg, logger)
	if err != nil {
		logServerError(logger, "failed to create server", err)
		return err
	}

	if err := server.Start(ctx); err != nil {
		logServerError(logger, "server error", err)
		return err
	}
	return nil
}

func migrateDatabase(configPath string) error {
	cfg, err := loadAndValidate(configPath)
	if err != nil {
		return err
	}
	logger := SetupLogger(cfg)

	if err := ensureDataDir(cfg.Database.DSN); err != nil {
		return &ServerError{Op: "Migrate", Err: err, ExitCode: ExitDatabaseError}
	}

	// Opening the store applies pending migrations.
	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		logger.Error("migration failed", "error", err)
		return &ServerError{Op: "Migrate", Err: err, ExitCode: ExitDatabaseError}
	}
	defer s.Close()

	logger.Info("migrations applied", "dsn", cfg.Database.DSN)
	return nil
}

func logServerError(logger *slog.Logger, msg string, err error) {
	var sErr *ServerError
	if errors.As(err, &sErr) {
		logger.Error(msg, "error", sErr.Err, "operation", sErr.Op)
		return
	}
	logger.Error(msg, "error", err)
}
