package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/habituation-core/internal/experiment"
	"github.com/GoSim-25-26J-441/habituation-core/internal/store"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/config"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/models"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/utils"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <protocol.yaml>",
		Short: "Measure habituation and recovery for one protocol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pf, err := config.LoadProtocol(args[0])
			if err != nil {
				return err
			}
			log, err := setupLogger(cmd, pf.LogLevel)
			if err != nil {
				return err
			}
			skip, _ := cmd.Flags().GetBool("skip-recovery")
			withTrajectory, _ := cmd.Flags().GetBool("trajectory")

			opts := []experiment.Option{experiment.WithLogger(log)}
			if skip {
				opts = append(opts, experiment.WithoutRecovery())
			}
			ex, protocol, err := experiment.FromFile(pf, opts...)
			if err != nil {
				return err
			}

			run := &models.Run{
				ID:        utils.GenerateRunID(),
				Status:    models.RunStatusRunning,
				Model:     pf.Model,
				Params:    models.ParameterSet{Protocol: protocol, Rates: ex.Rates()},
				CreatedAt: time.Now().UTC(),
			}
			run.StartedAt = run.CreatedAt
			ht, rt, computeErr := ex.Compute(protocol)
			run.EndedAt = time.Now().UTC()
			run.Duration = run.EndedAt.Sub(run.StartedAt)

			result, ok := ex.Result()
			switch {
			case !ok:
				run.Status = models.RunStatusFailed
				run.Error = computeErr.Error()
			default:
				run.Status = models.RunStatusCompleted
				run.Summary = models.Summarize(result)
				if computeErr != nil {
					run.Error = computeErr.Error()
				}
			}

			if err := archive(cmd, run); err != nil {
				return err
			}
			if !ok {
				return computeErr
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"run_id": run.ID, "result": resultJSON(result, withTrajectory)})
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "run %s  model %s\n", run.ID, pf.Model)
			fmt.Fprintf(w, "protocol: period %g, on %g, amin %g, amax %g\n", protocol.Period, protocol.OnDuration, protocol.Amin, protocol.Amax)
			fmt.Fprintf(w, "outcome: %s after %d periods (%d degraded)\n", result.Outcome, len(result.Peaks), len(result.DegradedPeriods))
			if result.Habituation.Steps == 0 {
				fmt.Fprintln(w, "habituation: not detected")
			} else {
				fmt.Fprintf(w, "habituation: %d periods, time %g\n", result.Habituation.Steps, ht)
			}
			switch {
			case result.Recovery != nil:
				fmt.Fprintf(w, "recovery: time %g (%d probes)\n", rt, len(result.Recovery.Probes))
				if result.Recovery.MonotonicityViolated {
					fmt.Fprintln(w, "warning: recovery probes were not monotone")
				}
			case computeErr != nil:
				fmt.Fprintf(w, "recovery: failed: %v\n", computeErr)
			}
			return nil
		},
	}
	cmd.Flags().Bool("skip-recovery", false, "Stop after habituation detection")
	cmd.Flags().Bool("trajectory", false, "Include trajectories in JSON output")
	return cmd
}

// archive saves run when --db is set.
func archive(cmd *cobra.Command, run *models.Run) error {
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		return nil
	}
	s, err := store.Open(cmd.Context(), path)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Save(cmd.Context(), run)
}
