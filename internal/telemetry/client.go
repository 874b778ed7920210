// Package telemetry exports zone runs and zone state samples to InfluxDB.
// Writes are non-blocking and batched by the client library; an
// unreachable server never stalls the control loop.
package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/sweeney/sprinkler-controller/internal/config"
	"github.com/sweeney/sprinkler-controller/internal/history"
	"github.com/sweeney/sprinkler-controller/internal/zone"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultBatchSize      = 50
	defaultFlushInterval  = 10 * time.Second

	measurementRun   = "zone_run"
	measurementState = "zone_state"
)

// Client writes points to one bucket.
// Safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	device   string

	mu      sync.RWMutex
	onError func(err error)
}

// Connect creates the client and verifies the server answers a ping.
// device tags every point, normally the MQTT client id.
func Connect(cfg config.InfluxDBConfig, device string) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushInterval
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batch)).
			SetFlushInterval(uint(flush.Milliseconds())),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
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
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		device:   device,
	}
	go c.handleWriteErrors(c.writeAPI.Errors())
	return c, nil
}

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

// SetOnError sets a callback for asynchronous write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	c.onError = callback
	c.mu.Unlock()
}

// WriteRun records a completed run.
func (c *Client) WriteRun(r history.Run) {
	c.writeAPI.WritePoint(runPoint(c.device, r))
}

// WriteZoneStates records one state sample per zone.
func (c *Client) WriteZoneStates(zones []zone.Zone, now time.Time) {
	for _, p := range statePoints(c.device, zones, now) {
		c.writeAPI.WritePoint(p)
	}
}

// Close flushes pending points and closes the client.
func (c *Client) Close() {
	c.writeAPI.Flush()
	c.client.Close()
}

func runPoint(device string, r history.Run) *write.Point {
	return write.NewPoint(
		measurementRun,
		map[string]string{
			"device": device,
			"zone":   strconv.Itoa(r.Zone),
			"name":   r.Name,
			"cause":  string(r.Cause),
		},
		map[string]interface{}{
			"duration_s": r.Duration().Seconds(),
		},
		r.End,
	)
}

func statePoints(device string, zones []zone.Zone, now time.Time) []*write.Point {
	points := make([]*write.Point, 0, len(zones))
	for _, z := range zones {
		on := 0
		if z.State == zone.StateOn {
			on = 1
		}
		points = append(points, write.NewPoint(
			measurementState,
			map[string]string{
				"device": device,
				"zone":   strconv.Itoa(z.Index),
				"name":   z.Name,
			},
			map[string]interface{}{
				"on": on,
			},
			now,
		))
	}
	return points
}
