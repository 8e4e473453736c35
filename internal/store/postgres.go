package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/valuation-cli/internal/db"
	"github.com/sells-group/valuation-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}

	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS analyses (
	id                 TEXT PRIMARY KEY,
	prompt             TEXT NOT NULL,
	consensus          JSONB,
	ground_truth_price DOUBLE PRECISION,
	resolved_at        TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS votes (
	analysis_id TEXT NOT NULL,
	provider_id TEXT NOT NULL,
	vote        JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (analysis_id, provider_id)
);

CREATE TABLE IF NOT EXISTS scorecards (
	provider_id TEXT NOT NULL,
	week_start  TIMESTAMPTZ NOT NULL,
	card        JSONB NOT NULL,
	PRIMARY KEY (provider_id, week_start)
);

CREATE TABLE IF NOT EXISTS rankings (
	metric     TEXT NOT NULL,
	week_start TIMESTAMPTZ NOT NULL,
	ranking    JSONB NOT NULL,
	PRIMARY KEY (metric, week_start)
);

CREATE INDEX IF NOT EXISTS idx_analyses_resolved ON analyses(resolved_at);
CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at);
CREATE INDEX IF NOT EXISTS idx_scorecards_week ON scorecards(week_start);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateAnalysis(ctx context.Context, id, prompt string, createdAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analyses (id, prompt, created_at) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
		id, prompt, createdAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert analysis %s", id)
}

func (s *PostgresStore) UpsertVote(ctx context.Context, analysisID string, vote model.ModelVote) error {
	payload, err := json.Marshal(vote)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal vote")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO votes (analysis_id, provider_id, vote) VALUES ($1, $2, $3)
		 ON CONFLICT (analysis_id, provider_id) DO UPDATE SET vote = EXCLUDED.vote`,
		analysisID, vote.ProviderID, payload,
	)
	return eris.Wrapf(err, "postgres: upsert vote %s/%s", analysisID, vote.ProviderID)
}

func (s *PostgresStore) InsertConsensus(ctx context.Context, analysisID string, c model.ConsensusResult) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal consensus")
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE analyses SET consensus = $1 WHERE id = $2`,
		payload, analysisID,
	)
	return eris.Wrapf(err, "postgres: update consensus %s", analysisID)
}

func (s *PostgresStore) AttachGroundTruth(ctx context.Context, analysisID string, price float64, resolvedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE analyses SET ground_truth_price = $1, resolved_at = $2 WHERE id = $3`,
		price, resolvedAt.UTC(), analysisID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: attach ground truth %s", analysisID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: analysis %s not found", analysisID)
	}
	return nil
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, analysisID string) (*model.AnalysisRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, prompt, consensus, ground_truth_price, resolved_at, created_at FROM analyses WHERE id = $1`,
		analysisID,
	)
	rec, err := scanPgAnalysis(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: analysis %s not found", analysisID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get analysis %s", analysisID)
	}

	votes, err := s.votesFor(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	rec.Votes = votes
	return rec, nil
}

func (s *PostgresStore) ListResolvedAnalyses(ctx context.Context, weekStart, weekEnd time.Time) ([]model.AnalysisRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, prompt, consensus, ground_truth_price, resolved_at, created_at
		 FROM analyses
		 WHERE ground_truth_price IS NOT NULL AND created_at >= $1 AND created_at < $2
		 ORDER BY created_at, id`,
		weekStart.UTC(), weekEnd.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list resolved analyses")
	}
	defer rows.Close()

	var records []model.AnalysisRecord
	for rows.Next() {
		rec, err := scanPgAnalysis(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan analysis")
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate analyses")
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

func (s *PostgresStore) votesFor(ctx context.Context, analysisID string) ([]model.ModelVote, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT vote FROM votes WHERE analysis_id = $1 ORDER BY provider_id`,
		analysisID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list votes %s", analysisID)
	}
	defer rows.Close()

	var votes []model.ModelVote
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan vote")
		}
		var v model.ModelVote
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal vote")
		}
		votes = append(votes, v)
	}
	return votes, eris.Wrap(rows.Err(), "postgres: iterate votes")
}

func (s *PostgresStore) SaveScorecard(ctx context.Context, card model.WeeklyScorecard) error {
	payload, err := json.Marshal(card)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal scorecard")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO scorecards (provider_id, week_start, card) VALUES ($1, $2, $3)
		 ON CONFLICT (provider_id, week_start) DO UPDATE SET card = EXCLUDED.card`,
		card.ProviderID, card.WeekStart.UTC(), payload,
	)
	return eris.Wrapf(err, "postgres: save scorecard %s", card.ProviderID)
}

func (s *PostgresStore) ListScorecardsSince(ctx context.Context, since time.Time) ([]model.WeeklyScorecard, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT card FROM scorecards WHERE week_start >= $1 ORDER BY week_start, provider_id`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scorecards")
	}
	defer rows.Close()

	var cards []model.WeeklyScorecard
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan scorecard")
		}
		var card model.WeeklyScorecard
		if err := json.Unmarshal(payload, &card); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal scorecard")
		}
		cards = append(cards, card)
	}
	return cards, eris.Wrap(rows.Err(), "postgres: iterate scorecards")
}

func (s *PostgresStore) SaveRanking(ctx context.Context, r model.CompetitiveRanking) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal ranking")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO rankings (metric, week_start, ranking) VALUES ($1, $2, $3)
		 ON CONFLICT (metric, week_start) DO UPDATE SET ranking = EXCLUDED.ranking`,
		string(r.Metric), r.WeekStart.UTC(), payload,
	)
	return eris.Wrapf(err, "postgres: save ranking %s", r.Metric)
}

func (s *PostgresStore) GetRanking(ctx context.Context, metric model.RankingMetric, weekStart time.Time) (*model.CompetitiveRanking, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT ranking FROM rankings WHERE metric = $1 AND week_start = $2`,
		string(metric), weekStart.UTC(),
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get ranking %s", metric)
	}
	var r model.CompetitiveRanking
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal ranking")
	}
	return &r, nil
}

// scanPgAnalysis scans the shared analysis column set from a pgx row.
func scanPgAnalysis(scan func(dest ...any) error) (*model.AnalysisRecord, error) {
	var (
		rec       model.AnalysisRecord
		consensus []byte
		truth     *float64
		resolved  *time.Time
	)
	if err := scan(&rec.ID, &rec.Prompt, &consensus, &truth, &resolved, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if len(consensus) > 0 {
		if err := json.Unmarshal(consensus, &rec.Consensus); err != nil {
			return nil, eris.Wrap(err, "unmarshal consensus")
		}
	}
	rec.GroundTruthPrice = truth
	rec.ResolvedAt = resolved
	return &rec, nil
}
