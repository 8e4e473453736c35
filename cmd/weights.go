package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/valuation-cli/internal/benchmark"
)

var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Show the current dynamic trust multipliers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		resolver := benchmark.NewResolver(st, benchmark.ResolverConfig{
			LookbackWeeks: cfg.Benchmark.LookbackWeeks,
			MinSamples:    cfg.Benchmark.MinSamples,
		})
		weights, err := resolver.Resolve(ctx, time.Now())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(weights) == 0 {
			fmt.Fprintln(out, "No calibration history yet; all providers run at their configured base weight.")
			return nil
		}

		ids := make([]string, 0, len(weights))
		for id := range weights {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			fmt.Fprintf(out, "  %-24s %.3f\n", id, weights[id])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(weightsCmd)
}
