package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tunogya/shapecast/pkg/model"
)

// layouts tried in order when no explicit time layout is configured
var layouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CSVProvider implements FrameProvider for wide CSV files: a time column
// followed by one column per series. Blank cells mark missing observations,
// so a series may start late or end early.
type CSVProvider struct {
	filePath string
	layout   string

	once  sync.Once
	frame *model.Frame
	err   error
}

// NewCSVProvider creates a new CSV-based frame provider. An empty layout
// accepts RFC 3339, plain dates and unix milliseconds.
func NewCSVProvider(filePath, layout string) *CSVProvider {
	return &CSVProvider{
		filePath: filePath,
		layout:   layout,
	}
}

// loadIfNeeded loads the CSV file if not already loaded
func (p *CSVProvider) loadIfNeeded() error {
	p.once.Do(func() {
		file, err := os.Open(p.filePath)
		if err != nil {
			p.err = fmt.Errorf("failed to open CSV file: %w", err)
			return
		}
		defer file.Close()

		p.frame, p.err = ParseFrame(file, p.layout)
	})
	return p.err
}

// LoadFrame returns the named series of the file
func (p *CSVProvider) LoadFrame(ctx context.Context, names ...string) (*model.Frame, error) {
	if err := p.loadIfNeeded(); err != nil {
		return nil, err
	}
	return Subset(p.frame, names...)
}

type row struct {
	t     time.Time
	cells []string
}

// ParseFrame reads a wide CSV into a frame. Rows are ordered by time; cells
// blank before a series' first or after its last observation shorten it,
// interior blank cells become NaN.
func ParseFrame(r io.Reader, layout string) (*model.Frame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(header) < 2 {
		return nil, ErrNoSeries
	}
	names := header[1:]

	var rows []row
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		t, err := parseTime(record[0], layout)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row{t: t, cells: record[1:]})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].t.Before(rows[j].t)
	})

	index := make([]time.Time, len(rows))
	for i, r := range rows {
		index[i] = r.t
	}

	series := make([]model.Series, 0, len(names))
	for col, name := range names {
		s, ok, err := column(rows, col, strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		if ok {
			series = append(series, s)
		}
	}
	if len(series) == 0 {
		return nil, ErrNoSeries
	}

	return model.NewFrame(index, series...)
}

// column extracts one series; ok is false when the column is entirely blank
func column(rows []row, col int, name string) (model.Series, bool, error) {
	first, last := -1, -1
	for i, r := range rows {
		if strings.TrimSpace(r.cells[col]) != "" {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return model.Series{}, false, nil
	}

	values := make([]float64, 0, last-first+1)
	for i := first; i <= last; i++ {
		cell := strings.TrimSpace(rows[i].cells[col])
		if cell == "" {
			values = append(values, math.NaN())
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return model.Series{}, false, fmt.Errorf("invalid value %q for %s at %s: %w",
				cell, name, rows[i].t.Format(time.RFC3339), err)
		}
		values = append(values, v)
	}
	return model.Series{Name: name, Start: first, Values: values}, true, nil
}

func parseTime(s, layout string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if layout != "" {
		t, err := time.Parse(layout, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid time %q: %w", s, err)
		}
		return t, nil
	}

	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

// WriteFrame writes frame as a wide CSV readable by ParseFrame. Cells
// outside a series' span are blank; non-finite values are written as blank
// too, so they read back as NaN. An empty layout writes RFC 3339.
func WriteFrame(w io.Writer, frame *model.Frame, layout string) error {
	if layout == "" {
		layout = time.RFC3339
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(append([]string{"time"}, frame.Names()...)); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	record := make([]string, len(frame.Series)+1)
	for i, t := range frame.Index {
		record[0] = t.Format(layout)
		for j := range frame.Series {
			s := &frame.Series[j]
			record[j+1] = ""
			if local := i - s.Start; local >= 0 && local < s.Len() {
				if v := s.Values[local]; !math.IsNaN(v) && !math.IsInf(v, 0) {
					record[j+1] = strconv.FormatFloat(v, 'f', -1, 64)
				}
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
