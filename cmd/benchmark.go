package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/benchmark"
	"github.com/sells-group/valuation-cli/internal/model"
)

var (
	benchmarkWeek  string
	exportOut      string
	rankingsMetric string
)

// parseWeekFlag parses --week, defaulting to the most recent Monday (UTC).
func parseWeekFlag() (time.Time, error) {
	if benchmarkWeek != "" {
		t, err := time.Parse("2006-01-02", benchmarkWeek)
		if err != nil {
			return time.Time{}, eris.Wrap(err, "parse --week (want YYYY-MM-DD)")
		}
		return t.UTC(), nil
	}
	now := time.Now().UTC()
	offset := (int(now.Weekday()) + 6) % 7
	return now.Truncate(24 * time.Hour).AddDate(0, 0, -offset), nil
}

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Weekly provider benchmarking against ground-truth sale prices",
}

var benchmarkRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Recompute scorecards and rankings for one week",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		week, err := parseWeekFlag()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		cards, err := benchmark.NewAggregator(st).RunWeek(ctx, week)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Week of %s: graded %d providers\n\n", week.Format("2006-01-02"), len(cards))
		for _, card := range cards {
			fmt.Fprintf(out, "  %-24s composite %5.1f  mape %5.1f%%  decisions %4.0f%%  p50 %dms  (%d/%d votes)\n",
				card.ProviderID, card.CompositeScore, card.MAPE,
				card.DecisionAccuracy*100, card.LatencyP50Ms,
				card.SuccessfulVotes, card.TotalVotes)
		}
		return nil
	},
}

var benchmarkExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export one week's scorecards and rankings to XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		week, err := parseWeekFlag()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		cards, err := st.ListScorecardsSince(ctx, week)
		if err != nil {
			return err
		}
		weekCards := cards[:0:0]
		for _, card := range cards {
			if card.WeekStart.Equal(week) {
				weekCards = append(weekCards, card)
			}
		}
		if len(weekCards) == 0 {
			return eris.Errorf("no scorecards for week %s; run `benchmark run` first", week.Format("2006-01-02"))
		}

		var rankings []model.CompetitiveRanking
		for _, metric := range []model.RankingMetric{model.RankingOverall, model.RankingPriceAccuracy, model.RankingSpeed} {
			r, err := st.GetRanking(ctx, metric, week)
			if err != nil {
				return err
			}
			if r != nil {
				rankings = append(rankings, *r)
			}
		}

		if err := benchmark.ExportXLSX(exportOut, weekCards, rankings); err != nil {
			return err
		}
		zap.L().Info("benchmark exported", zap.String("path", exportOut), zap.Int("providers", len(weekCards)))
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", exportOut)
		return nil
	},
}

var benchmarkRankingsCmd = &cobra.Command{
	Use:   "rankings",
	Short: "Show the competitive ranking for one metric and week",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		metric := model.RankingMetric(rankingsMetric)
		switch metric {
		case model.RankingOverall, model.RankingPriceAccuracy, model.RankingSpeed:
		default:
			return eris.Errorf("unknown metric %q (want overall, price_accuracy, or speed)", rankingsMetric)
		}

		week, err := parseWeekFlag()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		ranking, err := st.GetRanking(ctx, metric, week)
		if err != nil {
			return err
		}
		if ranking == nil {
			return eris.Errorf("no %s ranking for week %s", metric, week.Format("2006-01-02"))
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s ranking, week of %s\n\n", metric, week.Format("2006-01-02"))
		for _, e := range ranking.Entries {
			delta := "  new"
			if e.Delta != nil {
				delta = fmt.Sprintf("%+4d", *e.Delta)
			}
			fmt.Fprintf(out, "  %2d. %-24s %6.1f  %s\n", e.Rank, e.ProviderID, e.Score, delta)
		}
		return nil
	},
}

func init() {
	benchmarkCmd.PersistentFlags().StringVar(&benchmarkWeek, "week", "", "week start date YYYY-MM-DD (default: current week's Monday)")
	benchmarkExportCmd.Flags().StringVar(&exportOut, "out", "benchmark.xlsx", "output workbook path")
	benchmarkRankingsCmd.Flags().StringVar(&rankingsMetric, "metric", "overall", "ranking metric: overall, price_accuracy, speed")

	benchmarkCmd.AddCommand(benchmarkRunCmd)
	benchmarkCmd.AddCommand(benchmarkExportCmd)
	benchmarkCmd.AddCommand(benchmarkRankingsCmd)
	rootCmd.AddCommand(benchmarkCmd)
}
