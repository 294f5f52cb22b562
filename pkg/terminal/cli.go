// Package terminal assembles the costlens command-line interface.
package terminal

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/costlens/costlens/pkg/collectors"
	"github.com/costlens/costlens/pkg/terminal/commands"
	"github.com/costlens/costlens/pkg/terminal/export"
)

// CLI represents the command-line interface.
type CLI struct {
	rootCmd *cobra.Command
}

// Options contain configuration for the CLI.
type Options struct {
	Registry collectors.Registry
	Output   io.Writer
}

func NewCLI(opts Options) *CLI {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	reporter := export.NewReporter(opts.Output)

	rootCmd := &cobra.Command{
		Use:   "costlens",
		Short: "Multi-cloud cost analysis: idle resources, forecasts, anomalies, budgets",
	}
	rootCmd.AddCommand(
		commands.NewCollectCmd(opts.Registry),
		commands.NewAnalyzeCmd(reporter),
		commands.NewRecommendationsCmd(reporter),
		commands.NewAlertsCmd(reporter),
	)

	return &CLI{rootCmd: rootCmd}
}

func (c *CLI) Execute() error {
	return c.rootCmd.Execute()
}
