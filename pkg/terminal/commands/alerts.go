package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/costlens/costlens/pkg/store/sqlite"
	"github.com/costlens/costlens/pkg/terminal/export"
)

type AlertsCmd struct {
	dbPath   string
	days     int
	reporter *export.Reporter
}

func NewAlertsCmd(reporter *export.Reporter) *cobra.Command {
	ac := &AlertsCmd{reporter: reporter}
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List budget alert events",
		RunE:  ac.run,
	}

	cmd.Flags().StringVar(&ac.dbPath, "db", "costlens.db", "Path to the local database")
	cmd.Flags().IntVar(&ac.days, "days", 90, "How many days of alert history to show")

	return cmd
}

func (ac *AlertsCmd) run(cmd *cobra.Command, _ []string) error {
	db, err := sqlite.NewDB(sqlite.Settings{Path: ac.dbPath})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	store, err := sqlite.NewStore(db)
	if err != nil {
		return err
	}

	since := time.Now().UTC().AddDate(0, 0, -ac.days)
	events, err := store.ListAlertEvents(cmd.Context(), since)
	if err != nil {
		return fmt.Errorf("failed to list alert events: %w", err)
	}
	return ac.reporter.HandleAlerts(events)
}
