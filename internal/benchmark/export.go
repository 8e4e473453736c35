package benchmark

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/valuation-cli/internal/model"
)

var scorecardHeader = []string{
	"provider", "week_start", "graded_votes", "vote_coverage",
	"mae", "mape_pct", "decision_accuracy", "latency_p50_ms", "latency_p95_ms",
	"over", "under", "accurate", "composite_score",
}

// ExportXLSX writes scorecards and rankings to an XLSX workbook at path:
// one Scorecards sheet, one sheet per ranking metric, and a Categories
// sheet when any scorecard has a category breakdown.
func ExportXLSX(path string, cards []model.WeeklyScorecard, rankings []model.CompetitiveRanking) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("Scorecards")
	if err != nil {
		return eris.Wrap(err, "export: add scorecards sheet")
	}
	addStringRow(sheet, scorecardHeader)
	for _, card := range cards {
		row := sheet.AddRow()
		row.AddCell().Value = card.ProviderID
		row.AddCell().Value = card.WeekStart.Format("2006-01-02")
		row.AddCell().SetInt(card.SuccessfulVotes)
		row.AddCell().Value = fmt.Sprintf("%d/%d", card.SuccessfulVotes, card.TotalVotes)
		row.AddCell().SetFloatWithFormat(card.MeanAbsoluteErr, "0.00")
		row.AddCell().SetFloatWithFormat(card.MAPE, "0.0")
		row.AddCell().SetFloatWithFormat(card.DecisionAccuracy*100, "0.0")
		row.AddCell().SetInt64(card.LatencyP50Ms)
		row.AddCell().SetInt64(card.LatencyP95Ms)
		row.AddCell().SetInt(card.OverCount)
		row.AddCell().SetInt(card.UnderCount)
		row.AddCell().SetInt(card.AccurateCount)
		row.AddCell().SetFloatWithFormat(card.CompositeScore, "0.0")
	}

	for _, ranking := range rankings {
		if err := addRankingSheet(f, ranking); err != nil {
			return err
		}
	}

	if err := addCategorySheet(f, cards); err != nil {
		return err
	}

	return eris.Wrap(f.Save(path), "export: save workbook")
}

func addRankingSheet(f *xlsx.File, ranking model.CompetitiveRanking) error {
	sheet, err := f.AddSheet("Ranking " + string(ranking.Metric))
	if err != nil {
		return eris.Wrapf(err, "export: add ranking sheet %s", ranking.Metric)
	}
	addStringRow(sheet, []string{"rank", "provider", "score", "delta"})
	for _, e := range ranking.Entries {
		row := sheet.AddRow()
		row.AddCell().SetInt(e.Rank)
		row.AddCell().Value = e.ProviderID
		row.AddCell().SetFloatWithFormat(e.Score, "0.0")
		if e.Delta != nil {
			row.AddCell().SetInt(*e.Delta)
		} else {
			row.AddCell().Value = "new"
		}
	}
	return nil
}

func addCategorySheet(f *xlsx.File, cards []model.WeeklyScorecard) error {
	type catRow struct {
		provider string
		category string
		metrics  model.CategoryMetrics
	}
	var rows []catRow
	for _, card := range cards {
		for name, m := range card.Categories {
			rows = append(rows, catRow{provider: card.ProviderID, category: name, metrics: m})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].provider != rows[j].provider {
			return rows[i].provider < rows[j].provider
		}
		return rows[i].category < rows[j].category
	})

	sheet, err := f.AddSheet("Categories")
	if err != nil {
		return eris.Wrap(err, "export: add categories sheet")
	}
	addStringRow(sheet, []string{"provider", "category", "votes", "mape_pct", "decision_accuracy"})
	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().Value = r.provider
		row.AddCell().Value = r.category
		row.AddCell().SetInt(r.metrics.Votes)
		row.AddCell().SetFloatWithFormat(r.metrics.MAPE, "0.0")
		row.AddCell().SetFloatWithFormat(r.metrics.DecisionAccuracy*100, "0.0")
	}
	return nil
}

func addStringRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().Value = v
	}
}
