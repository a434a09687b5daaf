package transport

import (
	"context"
	"log"
	"time"
)

// ChainConfig configures the delivery chain.
type ChainConfig struct {
	// Endpoint is the HTTP(S) batch ingest URL. Required.
	Endpoint string

	// StreamEndpoint, when set, is a ws:// or wss:// URL preferred
	// for ordinary flushes.
	StreamEndpoint string

	// APIKey, when set, is sent as a bearer token.
	APIKey string

	// Timeout bounds one delivery attempt (beacon sends use the
	// shorter BeaconTimeout regardless).
	Timeout time.Duration

	// Logger records fallback decisions. Nil means log.Default().
	Logger *log.Logger
}

// Chain holds the ordered delivery mechanisms and selects exactly one
// per send. Teardown flushes always use the beacon: it is the only
// mechanism expected to get the bytes out while the host dies.
// Ordinary flushes use the stream when configured, otherwise the
// keep-alive HTTP transport, degrading to the baseline transport if
// the keep-alive one cannot be built.
type Chain struct {
	beacon  Transport
	primary Transport
}

// NewChain builds the chain from config.
func NewChain(cfg ChainConfig) *Chain {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	c := &Chain{
		beacon: NewBeacon(cfg.Endpoint, cfg.APIKey),
	}

	if cfg.StreamEndpoint != "" {
		c.primary = NewStream(cfg.StreamEndpoint, cfg.APIKey, cfg.Timeout)
		return c
	}

	httpT, err := NewHTTP(cfg.Endpoint, cfg.APIKey, cfg.Timeout)
	if err != nil {
		logger.Printf("keep-alive transport unavailable (%v), using baseline transport", err)
		c.primary = NewBasic(cfg.Endpoint, cfg.APIKey, cfg.Timeout)
		return c
	}
	c.primary = httpT
	return c
}

// Send delivers one batch via a single mechanism. When teardown is
// set the beacon is used and the outcome only reflects hand-off, not
// server acceptance.
func (c *Chain) Send(ctx context.Context, body []byte, teardown bool) error {
	if teardown {
		return c.beacon.Send(ctx, body)
	}
	return c.primary.Send(ctx, body)
}

// Primary exposes the selected ordinary-flush mechanism (for logs and
// tests).
func (c *Chain) Primary() Transport { return c.primary }

// Close releases any transport-held connections.
func (c *Chain) Close() error {
	if closer, ok := c.primary.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
