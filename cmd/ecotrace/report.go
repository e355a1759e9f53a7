//go:build linux

package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ja7ad/ecotrace/pkg/consumption"
	"github.com/ja7ad/ecotrace/pkg/inventory"
	"github.com/ja7ad/ecotrace/pkg/profiler"
	"github.com/ja7ad/ecotrace/pkg/store"
	"github.com/ja7ad/ecotrace/pkg/types"
)

type report struct {
	Resource        profiler.Resource      `json:"resource"`
	Since           time.Time              `json:"since"`
	Until           time.Time              `json:"until"`
	Zone            string                 `json:"zone"`
	IntensitySource string                 `json:"intensity_source"`
	Rows            int                    `json:"rows"`
	Summary         consumption.Summary    `json:"summary"`
	Top             []consumption.Emission `json:"top"`
	Timeline        []consumption.Bucket   `json:"timeline"`
}

func buildReport(rows []store.Sample, res profiler.Resource, since, until time.Time,
	zone string, intensity types.CarbonIntensity, source string, n int,
) report {
	all := consumption.Emissions(consumption.TotalEnergyByProcess(rows, consumption.TotalEnergy), intensity)
	top := all
	if n > 0 && len(top) > n {
		top = top[:n]
	}
	return report{
		Resource:        res,
		Since:           since,
		Until:           until,
		Zone:            zone,
		IntensitySource: source,
		Rows:            len(rows),
		Summary:         consumption.Summarize(all, intensity),
		Top:             top,
		Timeline:        consumption.EnergyByTime(rows, time.Hour, consumption.TotalEnergy),
	}
}

func newReportCmd(c *cli) *cobra.Command {
	var (
		resource  string
		hours     int
		n         int
		intensity float64
		zone      string
		csvPath   string
		jsonPath  string
		htmlPath  string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Rank stored processes by energy and estimated CO2",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := profiler.ParseResource(resource)
			if err != nil {
				return err
			}
			if hours <= 0 {
				return fmt.Errorf("hours must be > 0")
			}
			cfg, log, err := c.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if zone == "" {
				zone = cfg.Grid.Zone
			}

			st, err := store.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			source := "flag"
			if !cmd.Flags().Changed("intensity") {
				source = "none"
				ci, err := st.LatestCarbonIntensity(ctx, zone)
				switch {
				case err == nil:
					intensity, source = ci.CarbonIntensity, "stored"
				case errors.Is(err, store.ErrNotFound):
					log.Warn("no stored carbon intensity; CO2 reported as zero", zap.String("zone", zone))
				default:
					return err
				}
			} else if intensity < 0 {
				return fmt.Errorf("intensity must be >= 0")
			}

			until := time.Now().UTC()
			since := until.Add(-time.Duration(hours) * time.Hour)
			rows, err := st.QueryWindow(ctx, res, since)
			if err != nil {
				return err
			}
			rep := buildReport(rows, res, since, until, zone, types.CarbonIntensity(intensity), source, n)

			out := cmd.OutOrStdout()
			info, _ := inventory.New(log).Collect(ctx)
			fmt.Fprintf(out, _console, info.Hostname, info.KernelVersion, info.CPU.LogicalCores,
				info.Memory.Total.Humanized(), until.Local().Format("2006-01-02 15:04:05"))
			printReport(out, rep)

			return multiWrite(
				fileOut{csvPath, func(w io.Writer) error { return writeCSV(w, rep) }},
				fileOut{jsonPath, func(w io.Writer) error { return writeReportJSON(w, rep) }},
				fileOut{htmlPath, func(w io.Writer) error { return reportTpl.Execute(w, rep) }},
			)
		},
	}
	cmd.Flags().StringVarP(&resource, "resource", "r", "cpu", "resource to report: cpu,ram,gpu,sd,nic")
	cmd.Flags().IntVar(&hours, "hours", 24, "look-back window in hours")
	cmd.Flags().IntVarP(&n, "top", "n", 10, "number of processes to list (0 = all)")
	cmd.Flags().Float64Var(&intensity, "intensity", 0, "grid carbon intensity in gCO2eq/kWh (default: latest stored for zone)")
	cmd.Flags().StringVar(&zone, "zone", "", "Electricity Maps zone (default from config)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "write the ranking to a CSV file")
	cmd.Flags().StringVar(&jsonPath, "json", "", "write the report to a JSON file")
	cmd.Flags().StringVar(&htmlPath, "html", "", "write the report to an HTML file")
	return cmd
}

func printReport(w io.Writer, rep report) {
	fmt.Fprintf(w, "%s over the last %s (%d rows)\n\n",
		titleStyle.Render(fmt.Sprintf("%s energy", rep.Resource)),
		rep.Until.Sub(rep.Since).Round(time.Minute), rep.Rows)

	tw := newTable(w)
	fmt.Fprintln(tw, "RANK\tPROCESS\tENERGY (J)\tkWh\tCO2 (kg)")
	fmt.Fprintln(tw, "----\t-------\t----------\t---\t--------")
	for i, e := range rep.Top {
		fmt.Fprintf(tw, "%d\t%s\t%.3f\t%.6f\t%.6f\n", i+1, e.Process, e.Joules, e.KWh, e.KgCO2)
	}
	tw.Flush()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "- processes:  %d\n", rep.Summary.Processes)
	fmt.Fprintf(w, "- energy:     %s (%.6f kWh)\n", types.Joules(rep.Summary.Joules).Humanized(), rep.Summary.KWh)
	fmt.Fprintf(w, "- intensity:  %.1f gCO2eq/kWh %s\n", rep.Summary.Intensity,
		mutedStyle.Render(fmt.Sprintf("(%s, zone %s)", rep.IntensitySource, rep.Zone)))
	fmt.Fprintf(w, "- emissions:  %.6f kg CO2\n", rep.Summary.KgCO2)
}

type fileOut struct {
	path  string
	write func(io.Writer) error
}

// multiWrite writes every output whose path is set.
func multiWrite(outs ...fileOut) error {
	for _, o := range outs {
		if o.path == "" {
			continue
		}
		if err := writeFile(o.path, o.write); err != nil {
			return fmt.Errorf("write %s: %w", o.path, err)
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeCSV(w io.Writer, rep report) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"rank", "process", "joules", "kwh", "kg_co2"})
	for i, e := range rep.Top {
		_ = cw.Write([]string{
			strconv.Itoa(i + 1), e.Process,
			fmtFloat(e.Joules), fmtFloat(e.KWh), fmtFloat(e.KgCO2),
		})
	}
	cw.Flush()
	return cw.Error()
}

func writeReportJSON(w io.Writer, rep report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func fmtFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

var reportTpl = template.Must(template.New("rep").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`<!doctype html>
<html lang="en"><meta charset="utf-8">
<title>Energy Report</title>
<style>
body{font-family:system-ui,Segoe UI,Roboto,Helvetica,Arial,sans-serif;margin:20px}
h1,h2{margin:0 0 8px}
table{border-collapse:collapse;width:100%;font-size:14px}
th,td{border:1px solid #ddd;padding:6px 8px;text-align:right}
th:nth-child(2),td:nth-child(2){text-align:left}
ul{margin:6px 0 14px;padding-left:20px}
.small{color:#555}
</style>

<h1><a href="https://github.com/ja7ad/ecotrace" target="_blank" rel="noopener noreferrer" style="color:inherit;text-decoration:none;">Energy Report</a></h1>

<p class="small">
Resource: {{.Resource}} &nbsp;|&nbsp;
{{.Since.Format "2006-01-02 15:04"}} to {{.Until.Format "2006-01-02 15:04"}} UTC &nbsp;|&nbsp;
Rows: {{.Rows}}
</p>

<h2>Summary</h2>
<ul>
<li>Processes: {{.Summary.Processes}}</li>
<li>Energy: {{printf "%.3f" .Summary.Joules}} J ({{printf "%.6f" .Summary.KWh}} kWh)</li>
<li>Intensity: {{printf "%.1f" .Summary.Intensity}} gCO2eq/kWh ({{.IntensitySource}}, zone {{.Zone}})</li>
<li>Emissions: {{printf "%.6f" .Summary.KgCO2}} kg CO2</li>
</ul>

<h2>Top processes</h2>
<table>
<thead><tr><th>#</th><th>process</th><th>energy (J)</th><th>kWh</th><th>CO2 (kg)</th></tr></thead>
<tbody>
{{range $i, $e := .Top}}
<tr><td>{{inc $i}}</td><td>{{$e.Process}}</td><td>{{printf "%.3f" $e.Joules}}</td><td>{{printf "%.6f" $e.KWh}}</td><td>{{printf "%.6f" $e.KgCO2}}</td></tr>
{{end}}
</tbody>
</table>

<h2>Hourly energy</h2>
<table>
<thead><tr><th>hour</th><th>energy (J)</th></tr></thead>
<tbody>
{{range .Timeline}}
<tr><td style="text-align:left">{{.Start.Format "2006-01-02 15:04"}}</td><td>{{printf "%.3f" .Joules}}</td></tr>
{{end}}
</tbody>
</table>
</html>`))

const _console = `ecotrace - Process Energy and Carbon Report

* GitHub: https://github.com/ja7ad/ecotrace

       Host: %s
       Kernel: %s
       CPUs: %d
       Mem: %s

Report as of %s:

`
