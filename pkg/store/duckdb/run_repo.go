package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tunogya/shapecast/pkg/model"
)

// ErrRunNotFound indicates a run id with no stored run
var ErrRunNotFound = errors.New("duckdb: run not found")

// Run is one persisted scan with its matches, forecast and scenarios
type Run struct {
	ID        string
	Shape     []float64
	Metric    string
	Threshold float64
	CreatedAt time.Time

	Matches   []model.MatchedSegment
	Forecast  *model.Forecast
	Scenarios []model.ScenarioCluster
}

// RunRepo persists scan runs
type RunRepo struct {
	client *Client
}

// NewRunRepo creates a new run repository
func NewRunRepo(client *Client) *RunRepo {
	return &RunRepo{client: client}
}

type runRow struct {
	ID        string    `db:"run_id"`
	Shape     string    `db:"shape"`
	Metric    string    `db:"metric"`
	Threshold float64   `db:"threshold"`
	Horizon   int       `db:"horizon"`
	Mode      string    `db:"mode"`
	Samples   int       `db:"samples"`
	CreatedAt time.Time `db:"created_at"`
}

type matchRow struct {
	ID       string    `db:"match_id"`
	Series   string    `db:"series"`
	Start    int       `db:"start_offset"`
	EndTime  time.Time `db:"end_time"`
	Distance float64   `db:"distance"`
	Values   string    `db:"vals"`
}

type stepRow struct {
	Step       int     `db:"step"`
	Prediction float64 `db:"prediction"`
	Lower      float64 `db:"lower_bound"`
	Upper      float64 `db:"upper_bound"`
}

type scenarioRow struct {
	ClusterID   int     `db:"cluster_id"`
	Probability float64 `db:"probability"`
	Trajectory  string  `db:"trajectory"`
	Members     string  `db:"members"`
}

// Save stores a run and everything attached to it in a transaction,
// replacing any previous run with the same id
func (r *RunRepo) Save(ctx context.Context, run *Run) error {
	shape, err := json.Marshal(run.Shape)
	if err != nil {
		return fmt.Errorf("failed to marshal shape: %w", err)
	}
	fc := run.Forecast
	if fc == nil {
		fc = &model.Forecast{}
	}
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return r.client.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, table := range []string{"scenarios", "forecast_steps", "matches", "runs"} {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE run_id = ?", table), run.ID); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (run_id, shape, metric, threshold, horizon, mode, samples, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, run.ID, string(shape), run.Metric, run.Threshold, fc.Horizon, fc.Mode.String(), fc.Samples, createdAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		if err := insertMatches(ctx, tx, run.ID, run.Matches); err != nil {
			return err
		}
		if err := insertSteps(ctx, tx, run.ID, fc.Steps); err != nil {
			return err
		}
		return insertScenarios(ctx, tx, run.ID, run.Scenarios)
	})
}

func insertMatches(ctx context.Context, tx *sqlx.Tx, runID string, matches []model.MatchedSegment) error {
	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO matches (run_id, match_id, match_rank, series, start_offset, end_time, distance, vals)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, match_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, m := range matches {
		values, err := json.Marshal(m.Values)
		if err != nil {
			return fmt.Errorf("failed to marshal match values: %w", err)
		}
		_, err = stmt.ExecContext(ctx, runID, m.ID, i, m.Series, m.Start, m.EndTime.UTC(), m.Distance, string(values))
		if err != nil {
			return fmt.Errorf("failed to insert match: %w", err)
		}
	}
	return nil
}

func insertSteps(ctx context.Context, tx *sqlx.Tx, runID string, steps []model.ForecastStep) error {
	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO forecast_steps (run_id, step, prediction, lower_bound, upper_bound)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range steps {
		if _, err := stmt.ExecContext(ctx, runID, s.Step, s.Prediction, s.Lower, s.Upper); err != nil {
			return fmt.Errorf("failed to insert forecast step: %w", err)
		}
	}
	return nil
}

func insertScenarios(ctx context.Context, tx *sqlx.Tx, runID string, scenarios []model.ScenarioCluster) error {
	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO scenarios (run_id, cluster_id, probability, trajectory, members)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, sc := range scenarios {
		trajectory, err := json.Marshal(sc.Trajectory)
		if err != nil {
			return fmt.Errorf("failed to marshal trajectory: %w", err)
		}
		members, err := json.Marshal(sc.Members)
		if err != nil {
			return fmt.Errorf("failed to marshal members: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, runID, sc.ID, sc.Probability, string(trajectory), string(members)); err != nil {
			return fmt.Errorf("failed to insert scenario: %w", err)
		}
	}
	return nil
}

// Get loads a run by id
func (r *RunRepo) Get(ctx context.Context, runID string) (*Run, error) {
	db := r.client.DB()

	var row runRow
	err := db.GetContext(ctx, &row, "SELECT * FROM runs WHERE run_id = ?", runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	run := &Run{
		ID:        row.ID,
		Metric:    row.Metric,
		Threshold: row.Threshold,
		CreatedAt: row.CreatedAt,
	}
	if err := json.Unmarshal([]byte(row.Shape), &run.Shape); err != nil {
		return nil, fmt.Errorf("failed to unmarshal shape: %w", err)
	}

	if run.Matches, err = r.matches(ctx, runID); err != nil {
		return nil, err
	}

	mode, err := model.ParseForecastMode(row.Mode)
	if err != nil {
		return nil, err
	}
	run.Forecast = &model.Forecast{Horizon: row.Horizon, Mode: mode, Samples: row.Samples}
	var steps []stepRow
	err = db.SelectContext(ctx, &steps,
		"SELECT step, prediction, lower_bound, upper_bound FROM forecast_steps WHERE run_id = ? ORDER BY step", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load forecast: %w", err)
	}
	for _, s := range steps {
		run.Forecast.Steps = append(run.Forecast.Steps, model.ForecastStep(s))
	}

	if run.Scenarios, err = r.scenarios(ctx, runID); err != nil {
		return nil, err
	}
	return run, nil
}

func (r *RunRepo) matches(ctx context.Context, runID string) ([]model.MatchedSegment, error) {
	var rows []matchRow
	err := r.client.DB().SelectContext(ctx, &rows, `
		SELECT match_id, series, start_offset, end_time, distance, vals
		FROM matches WHERE run_id = ? ORDER BY match_rank
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load matches: %w", err)
	}

	out := make([]model.MatchedSegment, 0, len(rows))
	for _, row := range rows {
		m := model.MatchedSegment{
			ID:       row.ID,
			Series:   row.Series,
			Start:    row.Start,
			Distance: row.Distance,
			EndTime:  row.EndTime,
		}
		if err := json.Unmarshal([]byte(row.Values), &m.Values); err != nil {
			return nil, fmt.Errorf("failed to unmarshal match values: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *RunRepo) scenarios(ctx context.Context, runID string) ([]model.ScenarioCluster, error) {
	var rows []scenarioRow
	err := r.client.DB().SelectContext(ctx, &rows, `
		SELECT cluster_id, probability, trajectory, members
		FROM scenarios WHERE run_id = ? ORDER BY cluster_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scenarios: %w", err)
	}

	out := make([]model.ScenarioCluster, 0, len(rows))
	for _, row := range rows {
		sc := model.ScenarioCluster{ID: row.ClusterID, Probability: row.Probability}
		if err := json.Unmarshal([]byte(row.Trajectory), &sc.Trajectory); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trajectory: %w", err)
		}
		if err := json.Unmarshal([]byte(row.Members), &sc.Members); err != nil {
			return nil, fmt.Errorf("failed to unmarshal members: %w", err)
		}
		out = append(out, sc)
	}
	return out, nil
}

// List returns the stored run ids, newest first
func (r *RunRepo) List(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	err := r.client.DB().SelectContext(ctx, &ids,
		"SELECT run_id FROM runs ORDER BY created_at DESC, run_id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return ids, nil
}
