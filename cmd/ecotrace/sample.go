//go:build linux

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ja7ad/ecotrace/pkg/consumption"
	"github.com/ja7ad/ecotrace/pkg/monitor"
	"github.com/ja7ad/ecotrace/pkg/orchestrator"
	"github.com/ja7ad/ecotrace/pkg/profiler"
	"github.com/ja7ad/ecotrace/pkg/types"
)

func newSampleCmd(c *cli) *cobra.Command {
	var (
		limit     int
		resources string
		interval  time.Duration
		duration  time.Duration
		persist   bool
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Run one sampling cycle over the top processes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := c.open()
			if err != nil {
				return err
			}
			defer func() {
				_ = a.Close()
				_ = a.Log.Sync()
			}()

			opts := a.SamplingOptions()
			if limit > 0 {
				opts.Limit = limit
			}
			if resources != "" {
				if opts.Resources, err = profiler.ParseResources(resources); err != nil {
					return err
				}
			}
			if interval > 0 {
				opts.Interval = interval
			}
			if duration > 0 {
				opts.Duration = duration
			}

			cy := a.Orchestrator.Run(ctx, opts)
			if cy.Err != nil {
				return cy.Err
			}
			var res *monitor.Result
			if persist {
				r := a.Recorder.Record(ctx, cy)
				res = &r
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeCycleJSON(out, cy, res)
			}
			printCycle(out, cy)
			if res != nil {
				fmt.Fprintf(out, "persisted %d rows (%d errors)\n", res.Rows, res.PersistErrors)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of top processes to sample (default from config)")
	cmd.Flags().StringVarP(&resources, "resources", "r", "", "comma-separated resources: cpu,ram,gpu,sd,nic")
	cmd.Flags().DurationVarP(&interval, "interval", "i", 0, "profiler sampling interval (e.g. 500ms)")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "profiler run length per process (e.g. 5s)")
	cmd.Flags().BoolVar(&persist, "persist", false, "store successful results and write the raw log")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the cycle as JSON")
	return cmd
}

func writeCycleJSON(w io.Writer, cy orchestrator.Cycle, res *monitor.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Cycle     orchestrator.Cycle `json:"cycle"`
		Persisted *monitor.Result    `json:"persisted,omitempty"`
	}{cy, res})
}

func printCycle(w io.Writer, cy orchestrator.Cycle) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("cycle %s", cy.ID)))
	tw := newTable(w)
	fmt.Fprintln(tw, "PID\tNAME\tRESOURCE\tCPU%\tENERGY (J)\tPOWER (W)\tELAPSED\tSTATUS")
	fmt.Fprintln(tw, "---\t----\t--------\t----\t----------\t---------\t-------\t------")

	var total float64
	for _, out := range cy.Outcomes {
		j, jok := metricSum(out.Metrics, consumption.TotalEnergy)
		p, pok := metricSum(out.Metrics, consumption.MetricNamed("Average Power"))
		if jok && out.OK() {
			total += j
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.1f\t%s\t%s\t%s\t%s\n",
			out.PID, out.ProcessName, out.Resource, out.CPUPercent,
			fmtOptional(j, jok, "%.3f"), fmtOptional(p, pok, "%.3f"),
			out.Elapsed.Round(time.Millisecond), status(out))
	}
	tw.Flush()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d ok, %d failed, %s in %s\n",
		cy.Succeeded(), cy.Failed(), types.Joules(total).Humanized(),
		cy.FinishedAt.Sub(cy.StartedAt).Round(time.Millisecond))
}
