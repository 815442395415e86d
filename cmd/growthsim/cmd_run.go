package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/compounding/growth-backend/internal/growth"
	"github.com/compounding/growth-backend/internal/models"
	"github.com/compounding/growth-backend/internal/simulation"
	"github.com/compounding/growth-backend/pkg/logger"
	"github.com/spf13/cobra"
)

const progressBarWidth = 30

var runFlags struct {
	days     int
	rate     float64
	interval time.Duration
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Animate a run in the terminal and print its insight",
	Long: `Runs the simulation one day per interval, printing progress at every
tenth of the run, then prints the final value and the generated insight.

The insight API key and cache settings are read the same way as for serve.`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.IntVar(&runFlags.days, "days", growth.DefaultTotalDays, "Number of simulated days (30-730)")
	f.Float64Var(&runFlags.rate, "rate", growth.DefaultDailyRate, "Daily rate as a fraction, 0.01 = 1% (0.001-0.05)")
	f.DurationVar(&runFlags.interval, "interval", simulation.DefaultTickInterval, "Real time per simulated day")
}

func runRun(cmd *cobra.Command, _ []string) error {
	req := models.ConfigRequest{TotalDays: runFlags.days, DailyRate: runFlags.rate}
	if err := models.Validate(req); err != nil {
		return err
	}
	if runFlags.interval <= 0 {
		return errors.New("interval must be positive")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Progress goes to stdout; keep the logger quiet unless something is wrong.
	log, err := logger.New(logger.LevelError, "console")
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	provider, closeProvider, err := newInsightProvider(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer closeProvider()

	sim, err := simulation.NewController(
		growth.Config{TotalDays: req.TotalDays, DailyRate: req.DailyRate, StartValue: growth.DefaultStartValue},
		simulation.WithTickInterval(runFlags.interval),
		simulation.WithInsightProvider(provider),
		simulation.WithInsightTimeout(cfg.InsightTimeout()),
		simulation.WithLogger(log),
	)
	if err != nil {
		return err
	}
	defer sim.Close()

	out := cmd.OutOrStdout()
	updates, unsubscribe := sim.Subscribe()
	defer unsubscribe()

	sim.Start()
	printed := -1
	for {
		select {
		case <-ctx.Done():
			sim.Pause()
			fmt.Fprintf(out, "\nstopped at day %d\n", sim.Snapshot().CurrentDay)
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			if decile := int(snap.Progress * 10); decile > printed {
				printed = decile
				printProgress(out, snap)
			}
			if _, done := snap.FinalValue(); done && snap.Insight != nil {
				printSummary(out, snap)
				return nil
			}
		}
	}
}

func printProgress(out io.Writer, snap simulation.Snapshot) {
	filled := int(snap.Progress * progressBarWidth)
	bar := strings.Repeat("#", filled) + strings.Repeat(".", progressBarWidth-filled)
	fmt.Fprintf(out, "[%s] day %3d/%d  %10.4f  (%+.1f%%)\n",
		bar, snap.CurrentDay, snap.Config.TotalDays, snap.CurrentValue, snap.GrowthPercent)
}

func printSummary(out io.Writer, snap simulation.Snapshot) {
	final, _ := snap.FinalValue()
	fmt.Fprintf(out, "\n%d days at %s: %.4f (baseline %.4f)\n\n",
		snap.Config.TotalDays, formatRate(snap.Config.DailyRate), final, snap.Config.StartValue)
	fmt.Fprintf(out, "%s\n%s\n%s\n", snap.Insight.Title, snap.Insight.Message, snap.Insight.Analogy)
}
