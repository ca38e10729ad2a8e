package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/tunogya/shapecast/pkg/model"
)

// ErrNoSeries indicates a source holding no series columns
var ErrNoSeries = errors.New("data: no series")

// FrameProvider loads the parallel series to scan
type FrameProvider interface {
	// LoadFrame returns the named series, or every series when names is empty
	LoadFrame(ctx context.Context, names ...string) (*model.Frame, error)
}

// Subset returns a frame holding only the named series, sharing its index
// and values with frame. With no names it returns frame itself.
func Subset(frame *model.Frame, names ...string) (*model.Frame, error) {
	if len(names) == 0 {
		return frame, nil
	}

	series := make([]model.Series, 0, len(names))
	for _, name := range names {
		s, ok := frame.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", model.ErrUnknownSeries, name)
		}
		series = append(series, *s)
	}
	return model.NewFrame(frame.Index, series...)
}

// MemoryProvider implements FrameProvider over a frame held in memory
type MemoryProvider struct {
	frame *model.Frame
}

// NewMemoryProvider creates a new in-memory frame provider
func NewMemoryProvider(frame *model.Frame) *MemoryProvider {
	return &MemoryProvider{frame: frame}
}

// LoadFrame returns the named series of the held frame
func (p *MemoryProvider) LoadFrame(ctx context.Context, names ...string) (*model.Frame, error) {
	if p.frame == nil || len(p.frame.Series) == 0 {
		return nil, ErrNoSeries
	}
	return Subset(p.frame, names...)
}
