package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// Config holds Milvus connection configuration
type Config struct {
	Address  string `yaml:"address"` // e.g. "localhost:19530"
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		Address: "localhost:19530",
	}
}

// Client indexes normalized series windows and searches them by shape
type Client struct {
	conn client.Client
	addr string
}

// NewClient connects to Milvus
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	ccfg := client.Config{Address: cfg.Address}
	if cfg.Username != "" && cfg.Password != "" {
		ccfg.Username = cfg.Username
		ccfg.Password = cfg.Password
	}

	conn, err := client.NewClient(ctx, ccfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus at %s: %w", cfg.Address, err)
	}
	return &Client{conn: conn, addr: cfg.Address}, nil
}

// Close closes the Milvus connection
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Address returns the server address the client was opened with
func (c *Client) Address() string {
	return c.addr
}

// Reset drops the collection if it exists
func (c *Client) Reset(ctx context.Context, name string) error {
	exists, err := c.conn.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return nil
	}
	if err := c.conn.DropCollection(ctx, name); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", name, err)
	}
	return nil
}

// IndexWindows creates the collection when missing, inserts windows in
// batches and makes the collection searchable. It returns the number of
// windows written.
func (c *Client) IndexWindows(ctx context.Context, cfg CollectionConfig, windows []*WindowData, batchSize, nlist int) (int, error) {
	if batchSize <= 0 {
		batchSize = len(windows)
	}
	if err := c.CreateCollection(ctx, cfg); err != nil {
		return 0, err
	}

	written := 0
	for i := 0; i < len(windows); i += batchSize {
		end := min(i+batchSize, len(windows))
		if err := c.InsertBatch(ctx, cfg.Name, windows[i:end]); err != nil {
			return written, err
		}
		written = end
	}

	if err := c.seal(ctx, cfg.Name, nlist); err != nil {
		return written, err
	}
	return written, nil
}

// seal flushes the collection, builds an IVF_FLAT L2 index and loads it.
// Squared L2 over normalized windows is the Euclidean scan distance.
func (c *Client) seal(ctx context.Context, name string, nlist int) error {
	if err := c.conn.Flush(ctx, name, false); err != nil {
		return fmt.Errorf("failed to flush %s: %w", name, err)
	}

	indexes, err := c.conn.DescribeIndex(ctx, name, fieldEmbedding)
	if err != nil || len(indexes) == 0 {
		idx, err := entity.NewIndexIvfFlat(entity.L2, nlist)
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		if err := c.conn.CreateIndex(ctx, name, fieldEmbedding, idx, false); err != nil {
			return fmt.Errorf("failed to index %s: %w", name, err)
		}
	}

	if err := c.conn.LoadCollection(ctx, name, false); err != nil {
		return fmt.Errorf("failed to load %s: %w", name, err)
	}
	return nil
}

// Load makes an existing collection searchable
func (c *Client) Load(ctx context.Context, name string) error {
	if err := c.conn.LoadCollection(ctx, name, false); err != nil {
		return fmt.Errorf("failed to load %s: %w", name, err)
	}
	return nil
}
