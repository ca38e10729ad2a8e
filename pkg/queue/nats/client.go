package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Config holds NATS client configuration
type Config struct {
	URL           string        `yaml:"url"`
	StreamName    string        `yaml:"stream"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		StreamName:    "shapecast",
		RetryAttempts: 3,
		RetryDelay:    time.Second,
	}
}

// Client carries scan requests and results over JetStream
type Client struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config Config
}

// NewClient connects to NATS and opens a JetStream context
func NewClient(cfg Config) (*Client, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("shapecast"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.RetryAttempts),
		nats.ReconnectWait(cfg.RetryDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &Client{nc: nc, js: js, config: cfg}, nil
}

// EnsureStream creates or updates the work-queue stream holding both subjects
func (c *Client) EnsureStream(ctx context.Context) error {
	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      c.config.StreamName,
		Subjects:  Subjects(),
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

func (c *Client) publish(ctx context.Context, subject string, v interface{}) error {
	data, err := Encode(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if _, err := c.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// PublishRequest validates and publishes a scan request
func (c *Client) PublishRequest(ctx context.Context, req *ScanRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return c.publish(ctx, SubjectScanRequest, req)
}

// PublishResult publishes the answer to a scan request
func (c *Client) PublishResult(ctx context.Context, res *ScanResult) error {
	return c.publish(ctx, SubjectScanResult, res)
}

// Submit publishes req. With wait set it blocks until the matching result
// arrives or ctx is done.
func (c *Client) Submit(ctx context.Context, req *ScanRequest, wait bool) (*ScanResult, error) {
	if !wait {
		return nil, c.PublishRequest(ctx, req)
	}

	// subscribed before publishing so a fast worker is not missed
	sub, err := c.nc.SubscribeSync(SubjectScanResult)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to results: %w", err)
	}
	defer sub.Unsubscribe()

	if err := c.PublishRequest(ctx, req); err != nil {
		return nil, err
	}

	for {
		msg, err := sub.NextMsgWithContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to wait for result of %s: %w", req.ID, err)
		}
		res, err := DecodeScanResult(msg.Data)
		if err != nil || res.RequestID != req.ID {
			continue
		}
		return res, nil
	}
}

// ScanHandler answers one scan request. A returned error means the request
// should be delivered again; failures of the scan itself belong in the result.
type ScanHandler func(ctx context.Context, req *ScanRequest) (*ScanResult, error)

// ServeScans consumes scan requests with a durable consumer and publishes
// every result. Requests that do not decode are terminated.
func (c *Client) ServeScans(ctx context.Context, consumerName string, handler ScanHandler) (jetstream.ConsumeContext, error) {
	consumer, err := c.js.CreateOrUpdateConsumer(ctx, c.config.StreamName, jetstream.ConsumerConfig{
		Durable:       consumerName,
		FilterSubject: SubjectScanRequest,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       5 * time.Minute,
		MaxDeliver:    max(1, c.config.RetryAttempts),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		_ = settle(msg, c.handle(ctx, msg.Data(), handler), c.config.RetryDelay)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	return consumeCtx, nil
}

// errUndecodable marks a message no redelivery can fix
var errUndecodable = errors.New("nats: undecodable scan request")

func (c *Client) handle(ctx context.Context, data []byte, handler ScanHandler) error {
	req, err := DecodeScanRequest(data)
	if err != nil {
		return fmt.Errorf("%w: %v", errUndecodable, err)
	}
	res, err := handler(ctx, req)
	if err != nil {
		return err
	}
	return c.PublishResult(ctx, res)
}

// acker is the part of jetstream.Msg that settles a delivery
type acker interface {
	Ack() error
	NakWithDelay(delay time.Duration) error
	Term() error
}

func settle(msg acker, err error, delay time.Duration) error {
	switch {
	case err == nil:
		return msg.Ack()
	case errors.Is(err, errUndecodable):
		return msg.Term()
	default:
		return msg.NakWithDelay(delay)
	}
}

// Close closes the NATS connection
func (c *Client) Close() {
	if c.nc != nil {
		c.nc.Close()
	}
}

// IsConnected returns true if connected to NATS
func (c *Client) IsConnected() bool {
	return c.nc != nil && c.nc.IsConnected()
}
