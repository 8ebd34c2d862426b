package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/habituation-core/internal/systems"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the registered models",
		RunE: func(cmd *cobra.Command, args []string) error {
			var list []map[string]any
			for _, name := range systems.Names() {
				sys, err := systems.Lookup(name)
				if err != nil {
					return err
				}
				list = append(list, map[string]any{
					"name":          sys.Name,
					"description":   sys.Description,
					"variables":     sys.Variables,
					"rate_names":    sys.RateNames,
					"default_rates": sys.DefaultRates,
					"initial_state": sys.InitialState,
				})
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"models": list, "count": len(list)})
			}

			w := cmd.OutOrStdout()
			for _, m := range list {
				fmt.Fprintf(w, "%s: %s\n", m["name"], m["description"])
				fmt.Fprintf(w, "  variables: %s\n", strings.Join(m["variables"].([]string), ", "))
				names := m["rate_names"].([]string)
				defaults := m["default_rates"].([]float64)
				pairs := make([]string, len(names))
				for i, n := range names {
					pairs[i] = fmt.Sprintf("%s=%g", n, defaults[i])
				}
				fmt.Fprintf(w, "  rates: %s\n", strings.Join(pairs, ", "))
			}
			return nil
		},
	}
}
