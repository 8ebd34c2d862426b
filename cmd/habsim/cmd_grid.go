package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/habituation-core/internal/hallmarks"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/config"
)

func newGridCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grid <protocol.yaml>",
		Short: "Sweep periods x amplitudes and assess the habituation hallmarks",
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
			rates, _, err := baseRates(pf)
			if err != nil {
				return err
			}
			ratio, _ := cmd.Flags().GetFloat64("ratio")

			ev := hallmarks.NewEvaluator(builder(pf, log)(rates), gridWorkers(pf)).WithLogger(log)
			m, err := ev.Evaluate(cmd.Context(), gridOf(pf))
			if err != nil {
				return err
			}
			assessment := hallmarks.Assess(m, ratio)
			trends := hallmarks.Correlate(m)

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"matrix":     matrixJSON(m),
					"assessment": assessment,
					"trends":     map[string]any{"period_trend": nums(trends.PeriodTrend), "amplitude_trend": nums(trends.AmplitudeTrend)},
				})
			}

			w := cmd.OutOrStdout()
			printMatrix(w, "habituation periods (0 = none)", m, m.HT)
			printMatrix(w, "recovery time", m, m.RT)
			fmt.Fprintf(w, "intensity sensitivity: %s\n", hallmark(assessment.Intensity, "period", assessment.IntensityRow, m.Periods))
			fmt.Fprintf(w, "frequency sensitivity: %s\n", hallmark(assessment.Frequency, "amplitude", assessment.FrequencyColumn, m.Amplitudes))
			return nil
		},
	}
	cmd.Flags().Float64("ratio", hallmarks.DefaultRatio, "Ratio neighbours must stay below to count as increasing")
	return cmd
}

func printMatrix(w io.Writer, title string, m *hallmarks.Matrix, values [][]float64) {
	fmt.Fprintf(w, "%s\n%10s", title, "T \\ A")
	for _, a := range m.Amplitudes {
		fmt.Fprintf(w, " %10g", a)
	}
	fmt.Fprintln(w)
	for i, p := range m.Periods {
		fmt.Fprintf(w, "%10g", p)
		for _, v := range values[i] {
			fmt.Fprintf(w, " %10.4g", v)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, strings.Repeat("-", 11*(len(m.Amplitudes)+1)))
}

func hallmark(ok bool, axis string, index int, values []float64) string {
	if !ok {
		return "no"
	}
	return fmt.Sprintf("yes (%s %g)", axis, values[index])
}
