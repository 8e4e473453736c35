package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/valuation-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS analyses (
	id                 TEXT PRIMARY KEY,
	prompt             TEXT NOT NULL,
	consensus          TEXT,
	ground_truth_price REAL,
	resolved_at        DATETIME,
	created_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS votes (
	analysis_id TEXT NOT NULL,
	provider_id TEXT NOT NULL,
	vote        TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (analysis_id, provider_id)
);

CREATE TABLE IF NOT EXISTS scorecards (
	provider_id TEXT NOT NULL,
	week_start  DATETIME NOT NULL,
	card        TEXT NOT NULL,
	PRIMARY KEY (provider_id, week_start)
);

CREATE TABLE IF NOT EXISTS rankings (
	metric     TEXT NOT NULL,
	week_start DATETIME NOT NULL,
	ranking    TEXT NOT NULL,
	PRIMARY KEY (metric, week_start)
);

CREATE INDEX IF NOT EXISTS idx_analyses_resolved ON analyses(resolved_at);
CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at);
CREATE INDEX IF NOT EXISTS idx_scorecards_week ON scorecards(week_start);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateAnalysis(ctx context.Context, id, prompt string, createdAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analyses (id, prompt, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		id, prompt, createdAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert analysis %s", id)
}

func (s *SQLiteStore) UpsertVote(ctx context.Context, analysisID string, vote model.ModelVote) error {
	payload, err := json.Marshal(vote)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal vote")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO votes (analysis_id, provider_id, vote) VALUES (?, ?, ?)
		 ON CONFLICT(analysis_id, provider_id) DO UPDATE SET vote = excluded.vote`,
		analysisID, vote.ProviderID, string(payload),
	)
	return eris.Wrapf(err, "sqlite: upsert vote %s/%s", analysisID, vote.ProviderID)
}

func (s *SQLiteStore) InsertConsensus(ctx context.Context, analysisID string, c model.ConsensusResult) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal consensus")
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE analyses SET consensus = ? WHERE id = ?`,
		string(payload), analysisID,
	)
	return eris.Wrapf(err, "sqlite: update consensus %s", analysisID)
}

func (s *SQLiteStore) AttachGroundTruth(ctx context.Context, analysisID string, price float64, resolvedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE analyses SET ground_truth_price = ?, resolved_at = ? WHERE id = ?`,
		price, resolvedAt.UTC(), analysisID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: attach ground truth %s", analysisID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: analysis %s not found", analysisID)
	}
	return nil
}

func (s *SQLiteStore) GetAnalysis(ctx context.Context, analysisID string) (*model.AnalysisRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, prompt, consensus, ground_truth_price, resolved_at, created_at FROM analyses WHERE id = ?`,
		analysisID,
	)
	rec, err := scanAnalysisRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("sqlite: analysis %s not found", analysisID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get analysis %s", analysisID)
	}

	votes, err := s.votesFor(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	rec.Votes = votes
	return rec, nil
}

func (s *SQLiteStore) ListResolvedAnalyses(ctx context.Context, weekStart, weekEnd time.Time) ([]model.AnalysisRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, prompt, consensus, ground_truth_price, resolved_at, created_at
		 FROM analyses
		 WHERE ground_truth_price IS NOT NULL AND created_at >= ? AND created_at < ?
		 ORDER BY created_at, id`,
		weekStart.UTC(), weekEnd.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list resolved analyses")
	}
	defer rows.Close()

	var records []model.AnalysisRecord
	for rows.Next() {
		rec, err := scanAnalysisRow(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan analysis")
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate analyses")
	}

	for i := range records {
		votes, err := s.votesFor(ctx, records[i].ID)
		if err != nil {
			return nil, err
		}
		records[i].Votes = votes
	}
	return records, nil
}

func (s *SQLiteStore) votesFor(ctx context.Context, analysisID string) ([]model.ModelVote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT vote FROM votes WHERE analysis_id = ? ORDER BY provider_id`,
		analysisID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list votes %s", analysisID)
	}
	defer rows.Close()

	var votes []model.ModelVote
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan vote")
		}
		var v model.ModelVote
		if err := json.Unmarshal([]byte(payload), &v); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal vote")
		}
		votes = append(votes, v)
	}
	return votes, eris.Wrap(rows.Err(), "sqlite: iterate votes")
}

func (s *SQLiteStore) SaveScorecard(ctx context.Context, card model.WeeklyScorecard) error {
	payload, err := json.Marshal(card)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal scorecard")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scorecards (provider_id, week_start, card) VALUES (?, ?, ?)
		 ON CONFLICT(provider_id, week_start) DO UPDATE SET card = excluded.card`,
		card.ProviderID, card.WeekStart.UTC(), string(payload),
	)
	return eris.Wrapf(err, "sqlite: save scorecard %s", card.ProviderID)
}

func (s *SQLiteStore) ListScorecardsSince(ctx context.Context, since time.Time) ([]model.WeeklyScorecard, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT card FROM scorecards WHERE week_start >= ? ORDER BY week_start, provider_id`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scorecards")
	}
	defer rows.Close()

	var cards []model.WeeklyScorecard
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan scorecard")
		}
		var card model.WeeklyScorecard
		if err := json.Unmarshal([]byte(payload), &card); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal scorecard")
		}
		cards = append(cards, card)
	}
	return cards, eris.Wrap(rows.Err(), "sqlite: iterate scorecards")
}

func (s *SQLiteStore) SaveRanking(ctx context.Context, r model.CompetitiveRanking) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal ranking")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rankings (metric, week_start, ranking) VALUES (?, ?, ?)
		 ON CONFLICT(metric, week_start) DO UPDATE SET ranking = excluded.ranking`,
		string(r.Metric), r.WeekStart.UTC(), string(payload),
	)
	return eris.Wrapf(err, "sqlite: save ranking %s", r.Metric)
}

func (s *SQLiteStore) GetRanking(ctx context.Context, metric model.RankingMetric, weekStart time.Time) (*model.CompetitiveRanking, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT ranking FROM rankings WHERE metric = ? AND week_start = ?`,
		string(metric), weekStart.UTC(),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get ranking %s", metric)
	}
	var r model.CompetitiveRanking
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal ranking")
	}
	return &r, nil
}

// scanAnalysisRow scans the shared analysis column set.
func scanAnalysisRow(scan func(dest ...any) error) (*model.AnalysisRecord, error) {
	var (
		rec        model.AnalysisRecord
		consensus  sql.NullString
		truth      sql.NullFloat64
		resolvedAt sql.NullTime
	)
	if err := scan(&rec.ID, &rec.Prompt, &consensus, &truth, &resolvedAt, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if consensus.Valid && consensus.String != "" {
		if err := json.Unmarshal([]byte(consensus.String), &rec.Consensus); err != nil {
			return nil, eris.Wrap(err, "unmarshal consensus")
		}
	}
	if truth.Valid {
		rec.GroundTruthPrice = &truth.Float64
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		rec.ResolvedAt = &t
	}
	return &rec, nil
}
