package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/habituation-core/internal/hallmarks"
	"github.com/GoSim-25-26J-441/habituation-core/internal/improvement"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/config"
)

func newOptimizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "optimize <protocol.yaml>",
		Short: "Hill-climb the rate constants toward stronger hallmarks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pf, err := config.LoadProtocol(args[0])
			if err != nil {
				return err
			}
			opt := pf.Optimization
			if opt == nil {
				return fmt.Errorf("%s has no optimization section", args[0])
			}
			log, err := setupLogger(cmd, pf.LogLevel)
			if err != nil {
				return err
			}
			rates, names, err := baseRates(pf)
			if err != nil {
				return err
			}

			obj, err := improvement.NewObjectiveFunction(opt.Objective, improvement.ObjectiveOptions{
				Build:   builder(pf, log),
				Scan:    hallmarks.DefaultScan(),
				Grid:    gridOf(pf),
				Workers: gridWorkers(pf),
			})
			if err != nil {
				return err
			}

			cc := improvement.DefaultConvergenceConfig()
			if opt.Patience > 0 {
				cc.NoImprovementIterations = opt.Patience
				cc.PlateauIterations = opt.Patience
			}
			strategy, err := improvement.NewConvergenceStrategy(opt.Convergence, cc)
			if err != nil {
				return err
			}

			o := improvement.NewOptimizer(obj, opt.MaxIterations, opt.StepSize).
				WithMinStepSize(opt.MinStepSize).
				WithLogger(log).
				WithProgressReporter(func(iteration int, score float64) {
					log.Info("optimizer progress", "iteration", iteration, "score", score)
				})
			if strategy != nil {
				o = o.WithConvergence(strategy)
			}

			res, err := o.Optimize(cmd.Context(), rates)
			if err != nil {
				return err
			}
			summary := improvement.SummarizeHistory(res.History)

			if jsonOutput(cmd) {
				history := make([]map[string]any, len(res.History))
				for i, s := range res.History {
					history[i] = map[string]any{
						"iteration": s.Iteration,
						"score":     num(s.Score),
						"rates":     s.Rates,
						"step_size": s.StepSize,
					}
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"objective":          res.Objective,
					"rate_names":         names,
					"best_rates":         res.BestRates,
					"best_score":         num(res.BestScore),
					"iterations":         res.Iterations,
					"evaluations":        res.Evaluations,
					"converged":          res.Converged,
					"convergence_reason": res.ConvergenceReason,
					"history":            history,
					"summary": map[string]any{
						"initial_score":       num(summary.InitialScore),
						"final_score":         num(summary.FinalScore),
						"improvement_percent": num(summary.ImprovementPercent),
						"trend":               summary.Trend,
						"mean_score":          num(summary.MeanScore),
						"score_stddev":        num(summary.ScoreStdDev),
					},
				})
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "objective %s: best score %g after %d iterations (%d evaluations)\n",
				res.Objective, res.BestScore, res.Iterations, res.Evaluations)
			fmt.Fprintf(w, "stopped: %s (trend %s)\n", res.ConvergenceReason, summary.Trend)
			for i, r := range res.BestRates {
				name := fmt.Sprintf("k%d", i+1)
				if i < len(names) {
					name = names[i]
				}
				fmt.Fprintf(w, "  %-8s %12g  (was %g)\n", name, r, rates[i])
			}
			return nil
		},
	}
}
