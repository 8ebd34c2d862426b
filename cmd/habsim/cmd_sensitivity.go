package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/habituation-core/internal/sensitivity"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/config"
)

func newSensitivityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sensitivity <protocol.yaml>",
		Short: "Find how far each rate can move before the hallmarks are lost",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pf, err := config.LoadProtocol(args[0])
			if err != nil {
				return err
			}
			if pf.Grid == nil {
				return fmt.Errorf("%s has no grid section", args[0])
			}
			log, err := setupLogger(cmd, pf.LogLevel)
			if err != nil {
				return err
			}
			rates, names, err := baseRates(pf)
			if err != nil {
				return err
			}

			cfg := sensitivity.DefaultConfig()
			if s := pf.Sensitivity; s != nil {
				if s.InitialVariation > 0 {
					cfg.InitialVariation = s.InitialVariation
				}
				if s.MinVariation > 0 {
					cfg.MinVariation = s.MinVariation
				}
				if s.Workers > 0 {
					cfg.Workers = s.Workers
				}
			}
			an, err := sensitivity.New(
				sensitivity.HallmarkValidator(builder(pf, log), gridOf(pf), gridWorkers(pf)),
				cfg,
				sensitivity.WithNames(names),
				sensitivity.WithLogger(log),
			)
			if err != nil {
				return err
			}
			report, err := an.Analyze(cmd.Context(), rates)
			if err != nil {
				return err
			}
			summary := report.Summarize()

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"report": report, "summary": summary})
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-8s %12s %10s %10s %10s\n", "rate", "value", "down", "up", "width")
			for _, b := range report.Bounds {
				fmt.Fprintf(w, "%-8s %12g %10.3f %10.3f %10.3f\n", b.Name, report.Rates[b.Index], b.Down, b.Up, b.Width())
			}
			fmt.Fprintf(w, "mean width %.3f, median %.3f decades\n", summary.MeanWidth, summary.MedianWidth)
			if summary.Fragile >= 0 {
				fmt.Fprintf(w, "most fragile: %s (%.3f decades)\n", report.Bounds[summary.Fragile].Name, summary.MinWidth)
			}
			return nil
		},
	}
}
