//go:build linux

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ja7ad/ecotrace/pkg/app"
	"github.com/ja7ad/ecotrace/pkg/config"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

// cli holds the persistent flags shared by every subcommand.
type cli struct {
	configPath string
	debug      bool
}

func (c *cli) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		return nil, nil, err
	}
	if c.debug {
		cfg.Log.Level = "debug"
	}
	log, err := app.NewLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log, nil
}

func (c *cli) open() (*app.App, error) {
	cfg, log, err := c.load()
	if err != nil {
		return nil, err
	}
	return app.New(cfg, log)
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "ecotrace",
		Short: "Per-process energy sampling with the ecofloc profiler",
		Long: `ecotrace samples the energy use of the busiest processes on a Linux host
with the external ecofloc profiler, stores every reported metric in SQLite,
and ranks processes by energy and estimated CO2 using live grid carbon
intensity from Electricity Maps.

* GitHub: https://github.com/ja7ad/ecotrace

Examples:
  ecotrace top --limit 5
  ecotrace sample --resources cpu,ram --duration 3s --persist
  ecotrace serve --config ecotrace.yaml
  ecotrace report --resource cpu --hours 24 --html report.html`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to YAML config (optional)")
	root.PersistentFlags().BoolVar(&c.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(c),
		newSampleCmd(c),
		newTopCmd(c),
		newReportCmd(c),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ecotrace %s (%s)\n", version, commit)
		},
	}
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, dangerStyle.Render("error:"), err)
		os.Exit(1)
	}
}
