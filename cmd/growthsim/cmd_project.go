package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/compounding/growth-backend/internal/growth"
	"github.com/compounding/growth-backend/internal/models"
	"github.com/spf13/cobra"
)

var projectFlags struct {
	days  int
	rate  float64
	start float64
	final bool
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Print the closed-form trajectory of a run",
	RunE:  runProject,
}

func init() {
	f := projectCmd.Flags()
	f.IntVar(&projectFlags.days, "days", growth.DefaultTotalDays, "Number of simulated days (30-730)")
	f.Float64Var(&projectFlags.rate, "rate", growth.DefaultDailyRate, "Daily rate as a fraction, 0.01 = 1% (0.001-0.05)")
	f.Float64Var(&projectFlags.start, "start", growth.DefaultStartValue, "Value on day 0")
	f.BoolVar(&projectFlags.final, "final", false, "Print only the final value")
}

func runProject(cmd *cobra.Command, _ []string) error {
	req := models.ProjectionRequest{
		TotalDays:  projectFlags.days,
		DailyRate:  projectFlags.rate,
		StartValue: projectFlags.start,
	}
	if err := models.Validate(req); err != nil {
		return err
	}

	cfg := growth.Config{TotalDays: req.TotalDays, DailyRate: req.DailyRate, StartValue: req.StartValue}
	points, err := growth.Project(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	final := points[len(points)-1].Value
	if projectFlags.final {
		fmt.Fprintf(out, "%.6f\n", final)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "day\tvalue\tbaseline\t")
	for _, p := range points {
		fmt.Fprintf(w, "%d\t%.6f\t%.6f\t\n", p.Day, p.Value, p.Baseline)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d days at %s: %.4f (%+.2f%%)\n",
		cfg.TotalDays, formatRate(cfg.DailyRate), final, growth.GrowthPercent(cfg, final))
	return nil
}

func formatRate(rate float64) string {
	return fmt.Sprintf("%+.4g%%/day", rate*100)
}
