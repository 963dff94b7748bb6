// Package metrics writes send and lifecycle observations to InfluxDB.
// Writes are batched and non-blocking; the gateway never waits on the
// metrics backend, and a dead backend costs only dropped points.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/maddy52/whatsappweb/internal/infrastructure/config"
	"github.com/maddy52/whatsappweb/internal/session"
)

// Default timeouts for InfluxDB operations.
const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	// msPerSecond converts the configured flush interval to milliseconds.
	msPerSecond = 1000
)

// Sentinel errors.
var (
	// ErrDisabled indicates metrics are not enabled in configuration.
	ErrDisabled = errors.New("metrics: influx disabled")

	// ErrConnectionFailed indicates the InfluxDB server was unreachable.
	ErrConnectionFailed = errors.New("metrics: connection failed")

	// ErrNotConnected indicates the client has been closed.
	ErrNotConnected = errors.New("metrics: not connected")
)

// Client records gateway observations in InfluxDB. It satisfies the
// session manager's Metrics interface. All methods are safe for concurrent
// use; points are buffered and flushed in the background.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.InfluxConfig

	mu        sync.RWMutex
	connected bool
	onError   func(err error)
}

// Connect creates a batched, token-authenticated InfluxDB client and
// verifies connectivity with a ping.
func Connect(cfg config.InfluxConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 10
	}

	// #nosec G115 -- values clamped positive above
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*msPerSecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := &Client{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:       cfg,
		connected: true,
	}

	go c.handleWriteErrors(c.writeAPI.Errors())

	return c, nil
}

// handleWriteErrors forwards async write failures to the error callback.
func (c *Client) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()
		if callback != nil {
			callback(err)
		}
	}
}

// ObserveSend records one send attempt: tenant and kind as tags, outcome
// and latency as fields.
func (c *Client) ObserveSend(tenantID, kind, outcome string, elapsed time.Duration) {
	if !c.IsConnected() {
		return
	}
	p := influxdb2.NewPoint("wagateway_send",
		map[string]string{
			"tenant":  tenantID,
			"kind":    kind,
			"outcome": outcome,
		},
		map[string]interface{}{
			"duration_ms": elapsed.Milliseconds(),
			"count":       1,
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(p)
}

// ObserveTransition records one lifecycle transition.
func (c *Client) ObserveTransition(tenantID string, phase session.Phase) {
	if !c.IsConnected() {
		return
	}
	p := influxdb2.NewPoint("wagateway_session",
		map[string]string{
			"tenant": tenantID,
			"phase":  string(phase),
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(p)
}

// SetOnError sets a callback invoked for asynchronous write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// HealthCheck verifies the InfluxDB server is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influx health check failed: %w", err)
	}
	if !healthy {
		return errors.New("influx health check failed: server not healthy")
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Flush blocks until all buffered points are written. Safe after Close.
func (c *Client) Flush() {
	if c.writeAPI == nil || !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// Close flushes pending writes and shuts the client down.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
