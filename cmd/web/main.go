package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/costlens/costlens/pkg/server"
	"github.com/costlens/costlens/pkg/services/analysis"
	"github.com/costlens/costlens/pkg/services/policy"
	"github.com/costlens/costlens/pkg/store/sqlite"
)

const defaultRetentionDays = 365

var (
	cfgPath string
	dbPath  string
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "web",
		Short: "Start the costlens web server",
		RunE:  runServer,
	}

	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "",
		"Path to the analysis policy file (defaults apply when omitted)")
	rootCmd.Flags().StringVar(&dbPath, "db", "costlens.db",
		"Path to the local database")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Error loading .env file: %v\n", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	p := policy.Default()
	if cfgPath != "" {
		loaded, err := policy.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load policy: %w", err)
		}
		p = loaded
		logger.Info().Str("path", cfgPath).Msg("analysis policy loaded")
	}

	db, err := sqlite.NewDB(sqlite.Settings{Path: dbPath})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	store, err := sqlite.NewStore(db)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	runner, err := analysis.NewRunner(p, store)
	if err != nil {
		return fmt.Errorf("failed to create analysis runner: %w", err)
	}
	service := analysis.NewService(runner, store)

	// Scheduled analysis plus retention cleanup; the API also exposes
	// POST /api/v1/runs for on-demand runs.
	schedule := os.Getenv("ANALYSIS_SCHEDULE")
	if schedule == "" {
		schedule = "@daily"
	}
	scheduler := cron.New()
	_, err = scheduler.AddFunc(schedule, func() {
		runCtx := logger.WithContext(cmd.Context())
		if _, err := service.Analyze(runCtx); err != nil {
			logger.Error().Err(err).Msg("scheduled analysis failed")
		}
		if err := store.Cleanup(runCtx, defaultRetentionDays); err != nil {
			logger.Error().Err(err).Msg("retention cleanup failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid analysis schedule %q: %w", schedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()
	logger.Info().Str("schedule", schedule).Msg("analysis scheduler started")

	host := os.Getenv("SERVER_HOST")
	port := os.Getenv("SERVER_PORT")
	if host == "" {
		host = "127.0.0.1"
	}
	if port == "" {
		port = "8080"
	}

	api := server.NewWebAPI(logger, server.Config{
		Addr:            net.JoinHostPort(host, port),
		ShutdownTimeout: 10 * time.Second,
		Dependencies: server.Dependencies{
			Reader:   store,
			Analyzer: service,
		},
	})

	return api.Start()
}
