package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/costlens/costlens/pkg/services/analysis"
	"github.com/costlens/costlens/pkg/services/policy"
	"github.com/costlens/costlens/pkg/store/sqlite"
	"github.com/costlens/costlens/pkg/terminal/export"
)

type AnalyzeCmd struct {
	dbPath     string
	configPath string
	reporter   *export.Reporter
}

func NewAnalyzeCmd(reporter *export.Reporter) *cobra.Command {
	ac := &AnalyzeCmd{reporter: reporter}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the full analysis pipeline over collected data",
		RunE:  ac.run,
	}

	cmd.Flags().StringVar(&ac.dbPath, "db", "costlens.db", "Path to the local database")
	cmd.Flags().StringVar(&ac.configPath, "config", "", "Path to the analysis policy file")

	return cmd
}

func (ac *AnalyzeCmd) run(cmd *cobra.Command, _ []string) error {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	ctx := logger.WithContext(cmd.Context())

	p := policy.Default()
	if ac.configPath != "" {
		loaded, err := policy.Load(ac.configPath)
		if err != nil {
			return fmt.Errorf("failed to load policy: %w", err)
		}
		p = loaded
	}

	db, err := sqlite.NewDB(sqlite.Settings{Path: ac.dbPath})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	store, err := sqlite.NewStore(db)
	if err != nil {
		return err
	}

	runner, err := analysis.NewRunner(p, store)
	if err != nil {
		return err
	}
	service := analysis.NewService(runner, store)

	result, err := service.Analyze(ctx)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	return ac.reporter.HandleRun(result)
}
