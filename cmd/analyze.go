package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/sells-group/valuation-cli/internal/engine"
	"github.com/sells-group/valuation-cli/internal/model"
)

var (
	analyzeImages     []string
	analyzeStatic     bool
	analyzeJSONOutput bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [description...]",
	Short: "Run a consensus valuation for a single item",
	Long:  "Sends the item's photos and description to every active provider, merges the votes into a weighted consensus, and prints the valuation.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initAnalysisEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		images := make([][]byte, 0, len(analyzeImages))
		for _, path := range analyzeImages {
			data, err := os.ReadFile(path)
			if err != nil {
				return eris.Wrapf(err, "read image %s", path)
			}
			images = append(images, data)
		}

		var weights model.DynamicWeightSet
		if !analyzeStatic {
			weights, err = env.Resolver.Resolve(ctx, time.Now())
			if err != nil {
				zap.L().Warn("dynamic weight resolution failed, using base weights", zap.Error(err))
				weights = nil
			}
		}

		result := env.Engine.Run(ctx, engine.Request{
			Prompt:         strings.Join(args, " "),
			Images:         images,
			DynamicWeights: weights,
		})

		if analyzeJSONOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		printResult(cmd, result)
		return nil
	},
}

func printResult(cmd *cobra.Command, result *engine.Result) {
	out := cmd.OutOrStdout()
	c := result.Consensus

	fmt.Fprintf(out, "Item:       %s\n", c.ItemName)
	fmt.Fprintf(out, "Value:      %s\n", formatUSD(c.EstimatedValue))
	fmt.Fprintf(out, "Decision:   %s\n", c.Decision)
	fmt.Fprintf(out, "Confidence: %d%%\n", c.Confidence)
	fmt.Fprintf(out, "Quality:    %s (%d votes)\n", c.Quality, c.VoteCount)
	fmt.Fprintln(out)

	for _, v := range result.Votes {
		fmt.Fprintf(out, "  %-24s %-8s %10s  %s (conf %.2f, weight %.2f, %dms)\n",
			v.ProviderName, v.Stage, formatUSD(v.EstimatedValue), v.Decision,
			v.Confidence, v.Weight, v.LatencyMs)
	}
}

var usdPrinter = message.NewPrinter(language.AmericanEnglish)

func formatUSD(v float64) string {
	return usdPrinter.Sprintf("$%v", number.Decimal(v,
		number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

func init() {
	analyzeCmd.Flags().StringArrayVar(&analyzeImages, "image", nil, "path to an item photo (repeatable)")
	analyzeCmd.Flags().BoolVar(&analyzeStatic, "static-weights", false, "skip dynamic weighting and use configured base weights only")
	analyzeCmd.Flags().BoolVar(&analyzeJSONOutput, "json", false, "print the full result as JSON")
	rootCmd.AddCommand(analyzeCmd)
}
