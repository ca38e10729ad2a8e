package main

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/tunogya/shapecast/pkg/model"
	"github.com/tunogya/shapecast/pkg/outcome"
)

const plotWidth = 50

// textPlotter draws a forecast as one row per step: the band as dashes and
// the prediction as a star, on a scale shared with the shape
type textPlotter struct {
	w io.Writer
}

func (p textPlotter) Plot(shape *model.Shape, paths []outcome.Path, fc *model.Forecast) error {
	if fc.NoData() {
		_, err := fmt.Fprintln(p.w, "no continuation to plot")
		return err
	}

	lo, hi := 0.0, 1.0
	for _, path := range paths {
		for _, v := range path.Values {
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
	}
	for _, s := range fc.Steps {
		lo, hi = math.Min(lo, s.Lower), math.Max(hi, s.Upper)
	}
	col := func(v float64) int {
		return int(math.Round((v - lo) / (hi - lo) * (plotWidth - 1)))
	}

	var b strings.Builder
	for i, v := range shape.Values {
		row := []byte(strings.Repeat(" ", plotWidth))
		row[col(v)] = 'o'
		fmt.Fprintf(&b, "%5d |%s|\n", i-len(shape.Values)+1, row)
	}
	for _, s := range fc.Steps {
		row := []byte(strings.Repeat(" ", plotWidth))
		for c := col(s.Lower); c <= col(s.Upper); c++ {
			row[c] = '-'
		}
		row[col(s.Prediction)] = '*'
		fmt.Fprintf(&b, "%+5d |%s|\n", s.Step, row)
	}
	fmt.Fprintf(&b, "scale [%.3f, %.3f], %d continuations\n", lo, hi, len(paths))

	_, err := io.WriteString(p.w, b.String())
	return err
}
