package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// DefaultCollectionPrefix prefixes one collection per window length
	DefaultCollectionPrefix = "shape_windows"

	fieldWindowID  = "window_id"
	fieldEmbedding = "embedding"
	fieldSeries    = "series"
	fieldStart     = "start"
	fieldTEnd      = "t_end"
	fieldWindow    = "w"
)

// CollectionName returns the collection holding windows of length w
func CollectionName(prefix string, w int) string {
	if prefix == "" {
		prefix = DefaultCollectionPrefix
	}
	return fmt.Sprintf("%s_w%d", prefix, w)
}

// CollectionConfig holds configuration for creating a collection
type CollectionConfig struct {
	Name      string
	Dimension int // window length
	Shards    int
}

// DefaultCollectionConfig returns default collection configuration for windows of length w
func DefaultCollectionConfig(w int) CollectionConfig {
	return CollectionConfig{
		Name:      CollectionName(DefaultCollectionPrefix, w),
		Dimension: w,
		Shards:    2,
	}
}

// CreateCollection creates the window collection if it does not exist
func (c *Client) CreateCollection(ctx context.Context, cfg CollectionConfig) error {
	exists, err := c.conn.HasCollection(ctx, cfg.Name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: cfg.Name,
		Description:    "Min-max normalized series windows",
		Fields: []*entity.Field{
			{
				Name:       fieldWindowID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     fieldEmbedding,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", cfg.Dimension),
				},
			},
			{
				Name:     fieldSeries,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     fieldStart,
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     fieldTEnd,
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     fieldWindow,
				DataType: entity.FieldTypeInt32,
			},
		},
	}

	if err := c.conn.CreateCollection(ctx, schema, int32(cfg.Shards)); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// WindowData holds one normalized window for insertion
type WindowData struct {
	WindowID  string
	Embedding []float32
	Series    string
	Start     int64 // local offset of the first value in its series
	TEnd      time.Time
	W         int32
}

// InsertBatch inserts multiple windows
func (c *Client) InsertBatch(ctx context.Context, collectionName string, dataList []*WindowData) error {
	if len(dataList) == 0 {
		return nil
	}

	ids := make([]string, len(dataList))
	embeddings := make([][]float32, len(dataList))
	series := make([]string, len(dataList))
	starts := make([]int64, len(dataList))
	tEnds := make([]int64, len(dataList))
	ws := make([]int32, len(dataList))

	for i, d := range dataList {
		ids[i] = d.WindowID
		embeddings[i] = d.Embedding
		series[i] = d.Series
		starts[i] = d.Start
		tEnds[i] = d.TEnd.Unix()
		ws[i] = d.W
	}

	columns := []entity.Column{
		entity.NewColumnVarChar(fieldWindowID, ids),
		entity.NewColumnFloatVector(fieldEmbedding, len(embeddings[0]), embeddings),
		entity.NewColumnVarChar(fieldSeries, series),
		entity.NewColumnInt64(fieldStart, starts),
		entity.NewColumnInt64(fieldTEnd, tEnds),
		entity.NewColumnInt32(fieldWindow, ws),
	}

	if _, err := c.conn.Insert(ctx, collectionName, "", columns...); err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}
	return nil
}

// SearchResult represents a single search hit
type SearchResult struct {
	WindowID string
	Score    float32 // squared L2 distance, lower is closer
	Series   string
	Start    int64
	TEnd     time.Time
	W        int32
}

// Search performs a TopK nearest-window search for a normalized shape
func (c *Client) Search(ctx context.Context, collectionName string, embedding []float32, filter string, topK int) ([]SearchResult, error) {
	vectors := []entity.Vector{entity.FloatVector(embedding)}

	sp, err := entity.NewIndexIvfFlatSearchParam(16) // nprobe
	if err != nil {
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	outputFields := []string{fieldWindowID, fieldSeries, fieldStart, fieldTEnd, fieldWindow}

	results, err := c.conn.Search(
		ctx,
		collectionName,
		nil,
		filter,
		outputFields,
		vectors,
		fieldEmbedding,
		entity.L2,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	if len(results) == 0 {
		return nil, nil
	}

	hits := make([]SearchResult, 0, results[0].ResultCount)
	for i := 0; i < results[0].ResultCount; i++ {
		hit := SearchResult{
			Score: results[0].Scores[i],
		}

		for _, field := range results[0].Fields {
			switch field.Name() {
			case fieldWindowID:
				if col, ok := field.(*entity.ColumnVarChar); ok {
					hit.WindowID, _ = col.ValueByIdx(i)
				}
			case fieldSeries:
				if col, ok := field.(*entity.ColumnVarChar); ok {
					hit.Series, _ = col.ValueByIdx(i)
				}
			case fieldStart:
				if col, ok := field.(*entity.ColumnInt64); ok {
					hit.Start, _ = col.ValueByIdx(i)
				}
			case fieldTEnd:
				if col, ok := field.(*entity.ColumnInt64); ok {
					val, _ := col.ValueByIdx(i)
					hit.TEnd = time.Unix(val, 0).UTC()
				}
			case fieldWindow:
				if col, ok := field.(*entity.ColumnInt32); ok {
					hit.W, _ = col.ValueByIdx(i)
				}
			}
		}

		hits = append(hits, hit)
	}

	return hits, nil
}

// SeriesFilter returns a boolean expression restricting a search to the given series
func SeriesFilter(series ...string) string {
	if len(series) == 0 {
		return ""
	}
	expr := fieldSeries + " in ["
	for i, s := range series {
		if i > 0 {
			expr += ", "
		}
		expr += fmt.Sprintf("%q", s)
	}
	return expr + "]"
}
