package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/costlens/costlens/pkg/collectors"
	"github.com/costlens/costlens/pkg/models/domain"
	"github.com/costlens/costlens/pkg/store/sqlite"
)

type CollectCmd struct {
	provider string
	profile  string
	dbPath   string
	days     int
	registry collectors.Registry
}

func NewCollectCmd(registry collectors.Registry) *cobra.Command {
	cc := &CollectCmd{registry: registry}
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Pull billing data from a cloud provider into the local store",
		RunE:  cc.run,
	}

	cmd.Flags().StringVar(&cc.provider, "provider", "", "Provider to collect from (AWS, GCP, Azure)")
	cmd.Flags().StringVar(&cc.profile, "profile", "", "Credentials profile name or config path")
	cmd.Flags().StringVar(&cc.dbPath, "db", "costlens.db", "Path to the local database")
	cmd.Flags().IntVar(&cc.days, "days", 30, "Days of history to collect")

	_ = cmd.MarkFlagRequired("provider")

	return cmd
}

func (cc *CollectCmd) run(cmd *cobra.Command, _ []string) error {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	ctx := logger.WithContext(cmd.Context())

	collector, err := cc.registry.Create(ctx, domain.Provider(cc.provider), cc.profile)
	if err != nil {
		return fmt.Errorf("failed to create a collector for provider %s: %w", cc.provider, err)
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -cc.days)

	records, signals, err := collector.Collect(ctx, start, end)
	if err != nil {
		return fmt.Errorf("collection failed: %w", err)
	}

	db, err := sqlite.NewDB(sqlite.Settings{Path: cc.dbPath})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	store, err := sqlite.NewStore(db)
	if err != nil {
		return err
	}
	if err := store.AddCostRecords(ctx, records); err != nil {
		return fmt.Errorf("failed to store cost records: %w", err)
	}
	if err := store.AddSignals(ctx, signals); err != nil {
		return fmt.Errorf("failed to store signals: %w", err)
	}

	logger.Info().
		Str("provider", cc.provider).
		Int("records", len(records)).
		Int("signals", len(signals)).
		Msg("collection finished")
	return nil
}
