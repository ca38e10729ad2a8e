package duckdb

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tunogya/shapecast/pkg/data"
	"github.com/tunogya/shapecast/pkg/model"
)

const upsertObservation = `
	INSERT INTO observations (series, ts, value)
	VALUES (?, ?, ?)
	ON CONFLICT (series, ts) DO UPDATE SET
		value = EXCLUDED.value
`

// ObservationRepo stores series in long format and implements data.FrameProvider
type ObservationRepo struct {
	client *Client
}

var _ data.FrameProvider = (*ObservationRepo)(nil)

// NewObservationRepo creates a new observation repository
func NewObservationRepo(client *Client) *ObservationRepo {
	return &ObservationRepo{client: client}
}

type observationRow struct {
	Series string    `db:"series"`
	TS     time.Time `db:"ts"`
	Value  float64   `db:"value"`
}

// InsertFrame upserts every finite observation of frame in a transaction.
// It returns the number of rows written.
func (r *ObservationRepo) InsertFrame(ctx context.Context, frame *model.Frame) (int, error) {
	written := 0
	err := r.client.inTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, upsertObservation)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for i := range frame.Series {
			s := &frame.Series[i]
			for local, v := range s.Values {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					continue
				}
				if _, err := stmt.ExecContext(ctx, s.Name, frame.TimeAt(s, local), v); err != nil {
					return fmt.Errorf("failed to insert observation: %w", err)
				}
				written++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// Series returns the stored series names in order
func (r *ObservationRepo) Series(ctx context.Context) ([]string, error) {
	var names []string
	err := r.client.DB().SelectContext(ctx, &names,
		"SELECT DISTINCT series FROM observations ORDER BY series")
	if err != nil {
		return nil, fmt.Errorf("failed to list series: %w", err)
	}
	return names, nil
}

// Count returns the number of stored observations of a series, or of all
// series when name is empty
func (r *ObservationRepo) Count(ctx context.Context, name string) (int64, error) {
	var count int64
	var err error
	if name == "" {
		err = r.client.DB().GetContext(ctx, &count, "SELECT COUNT(*) FROM observations")
	} else {
		err = r.client.DB().GetContext(ctx, &count, "SELECT COUNT(*) FROM observations WHERE series = ?", name)
	}
	return count, err
}

// LoadFrame rebuilds a frame from the stored observations. The index is the
// union of all timestamps; timestamps a series lacks inside its span read
// back as NaN.
func (r *ObservationRepo) LoadFrame(ctx context.Context, names ...string) (*model.Frame, error) {
	query := "SELECT series, ts, value FROM observations"
	var args []interface{}
	if len(names) > 0 {
		var err error
		query, args, err = sqlx.In(query+" WHERE series IN (?)", names)
		if err != nil {
			return nil, fmt.Errorf("failed to build query: %w", err)
		}
		query = r.client.DB().Rebind(query)
	}

	var rows []observationRow
	if err := r.client.DB().SelectContext(ctx, &rows, query+" ORDER BY ts, series", args...); err != nil {
		return nil, fmt.Errorf("failed to load observations: %w", err)
	}
	if len(rows) == 0 {
		return nil, data.ErrNoSeries
	}

	frame, err := frameFromRows(rows)
	if err != nil {
		return nil, err
	}
	if len(names) > 0 {
		// verifies every requested series exists and keeps the requested order
		return data.Subset(frame, names...)
	}
	return frame, nil
}

// frameFromRows builds a frame from rows ordered by timestamp
func frameFromRows(rows []observationRow) (*model.Frame, error) {
	var index []time.Time
	position := make(map[int64]int)
	for _, row := range rows {
		key := row.TS.UnixNano()
		if _, ok := position[key]; ok {
			continue
		}
		position[key] = len(index)
		index = append(index, row.TS.UTC())
	}

	type span struct {
		first, last int
		at          map[int]float64
	}
	spans := make(map[string]*span)
	for _, row := range rows {
		pos := position[row.TS.UnixNano()]
		sp, ok := spans[row.Series]
		if !ok {
			sp = &span{first: pos, last: pos, at: make(map[int]float64)}
			spans[row.Series] = sp
		}
		sp.first = min(sp.first, pos)
		sp.last = max(sp.last, pos)
		sp.at[pos] = row.Value
	}

	names := make([]string, 0, len(spans))
	for name := range spans {
		names = append(names, name)
	}
	sort.Strings(names)

	series := make([]model.Series, 0, len(names))
	for _, name := range names {
		sp := spans[name]
		values := make([]float64, sp.last-sp.first+1)
		for i := range values {
			v, ok := sp.at[sp.first+i]
			if !ok {
				v = math.NaN()
			}
			values[i] = v
		}
		series = append(series, model.Series{Name: name, Start: sp.first, Values: values})
	}
	return model.NewFrame(index, series...)
}
