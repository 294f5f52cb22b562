package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/costlens/costlens/pkg/models/domain"
	"github.com/costlens/costlens/pkg/services/analysis/recommend"
	"github.com/costlens/costlens/pkg/store/sqlite"
	"github.com/costlens/costlens/pkg/terminal/export"
)

type RecommendationsCmd struct {
	dbPath   string
	status   string
	reporter *export.Reporter
}

func NewRecommendationsCmd(reporter *export.Reporter) *cobra.Command {
	rc := &RecommendationsCmd{reporter: reporter}
	cmd := &cobra.Command{
		Use:   "recommendations",
		Short: "List savings recommendations ranked by estimated savings",
		RunE:  rc.run,
	}

	cmd.Flags().StringVar(&rc.dbPath, "db", "costlens.db", "Path to the local database")
	cmd.Flags().StringVar(&rc.status, "status", "open", "Filter by status (open, dismissed, applied, stale); empty for all")

	return cmd
}

func (rc *RecommendationsCmd) run(cmd *cobra.Command, _ []string) error {
	db, err := sqlite.NewDB(sqlite.Settings{Path: rc.dbPath})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	store, err := sqlite.NewStore(db)
	if err != nil {
		return err
	}

	recs, err := store.ListRecommendations(cmd.Context(), domain.RecommendationStatus(rc.status))
	if err != nil {
		return fmt.Errorf("failed to list recommendations: %w", err)
	}
	if err := rc.reporter.HandleRecommendations(recs); err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}
	return rc.reporter.HandleSavingsSummary(recommend.Summarize(recs))
}
