package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/valuation-cli/internal/model"
)

var truthResolvedAt string

var truthCmd = &cobra.Command{
	Use:   "truth <analysis-id> <sale-price>",
	Short: "Attach a real sale price to a past analysis",
	Long:  "Records what an item actually sold for so the weekly benchmark can grade every provider's estimate against it.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		analysisID := args[0]

		price, err := strconv.ParseFloat(args[1], 64)
		if err != nil || price < 0 {
			return eris.Errorf("sale price must be a non-negative number, got %q", args[1])
		}

		resolvedAt := time.Now().UTC()
		if truthResolvedAt != "" {
			resolvedAt, err = time.Parse("2006-01-02", truthResolvedAt)
			if err != nil {
				return eris.Wrap(err, "parse --resolved-at (want YYYY-MM-DD)")
			}
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.AttachGroundTruth(ctx, analysisID, price, resolvedAt); err != nil {
			return err
		}

		rec, err := st.GetAnalysis(ctx, analysisID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Recorded %s for %s\n", formatUSD(price), analysisID)
		if rec.Consensus.VoteCount > 0 {
			diff := rec.Consensus.EstimatedValue - price
			fmt.Fprintf(out, "Consensus estimated %s (off by %s)\n",
				formatUSD(rec.Consensus.EstimatedValue), formatUSD(abs(diff)))
			verdict := "wrong"
			if decisionWasRight(rec.Consensus.Decision, rec.Consensus.EstimatedValue, price) {
				verdict = "right"
			}
			fmt.Fprintf(out, "The %s call was %s\n", rec.Consensus.Decision, verdict)
		}
		return nil
	},
}

func decisionWasRight(d model.Decision, estimate, truth float64) bool {
	if d == model.DecisionBuy {
		return truth >= estimate
	}
	return truth < estimate
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func init() {
	truthCmd.Flags().StringVar(&truthResolvedAt, "resolved-at", "", "sale date YYYY-MM-DD (default: today)")
	rootCmd.AddCommand(truthCmd)
}
