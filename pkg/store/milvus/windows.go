package milvus

import (
	"github.com/tunogya/shapecast/pkg/feature"
	"github.com/tunogya/shapecast/pkg/model"
	"github.com/tunogya/shapecast/pkg/window"
)

// Embed converts a normalized window to the vector type Milvus stores
func Embed(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}

// WindowsFromFrame normalizes every scannable window of length w in the frame.
// step thins the output; windows with non-finite values are skipped.
func WindowsFromFrame(frame *model.Frame, w, step int) []*WindowData {
	if step <= 0 {
		step = 1
	}

	layout := window.Assemble(frame.Series, w)
	var out []*WindowData
	for n, pos := range layout.Starts() {
		if n%step != 0 {
			continue
		}
		values := layout.Window(pos)
		if !feature.IsFinite(values) {
			continue
		}

		sIdx, local := layout.Locate(pos)
		s := &frame.Series[sIdx]
		tEnd := frame.TimeAt(s, local+w-1)
		normalized, _ := feature.MinMaxNormalize(values)

		out = append(out, &WindowData{
			WindowID:  model.GenerateMatchID(s.Name, tEnd, w),
			Embedding: Embed(normalized),
			Series:    s.Name,
			Start:     int64(local),
			TEnd:      tEnd,
			W:         int32(w),
		})
	}
	return out
}

// ToSegment resolves a search hit back to the raw values in the frame.
// Returns false when the hit no longer fits the frame.
func ToSegment(frame *model.Frame, hit SearchResult) (model.MatchedSegment, bool) {
	s, ok := frame.Lookup(hit.Series)
	if !ok {
		return model.MatchedSegment{}, false
	}
	start, w := int(hit.Start), int(hit.W)
	if start < 0 || w <= 0 || start+w > s.Len() {
		return model.MatchedSegment{}, false
	}
	return model.NewMatchedSegment(
		s.Name,
		start,
		s.Values[start:start+w],
		float64(hit.Score),
		frame.TimeAt(s, start+w-1),
	), true
}
