//go:build linux

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ja7ad/ecotrace/pkg/app"
	"github.com/ja7ad/ecotrace/pkg/system/proc"
)

func newTopCmd(c *cli) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "top",
		Short: "List the busiest processes by CPU",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := c.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if limit <= 0 {
				limit = cfg.Sampling.ProcessLimit
			}
			procs, err := app.NewLister(cfg).TopProcesses(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(procs)
			}
			printProcesses(cmd.OutOrStdout(), procs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of processes (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func printProcesses(w io.Writer, procs []proc.Process) {
	tw := newTable(w)
	fmt.Fprintln(tw, "PID\tNAME\tCPU%\tMEM%\tRSS")
	fmt.Fprintln(tw, "---\t----\t----\t----\t---")
	for _, p := range procs {
		rss := "-"
		if p.RSS > 0 {
			rss = p.RSS.Humanized()
		}
		fmt.Fprintf(tw, "%d\t%s\t%.1f\t%.2f\t%s\n", p.PID, p.Name, p.CPUPercent, p.MemoryPercent, rss)
	}
	tw.Flush()
}
