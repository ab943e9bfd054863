// Package influx writes the numeric metrics of each published view to InfluxDB.
package influx

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/nvxd/internal/adapter"
	"github.com/dokzlo13/nvxd/internal/config"
	"github.com/dokzlo13/nvxd/internal/derive"
	"github.com/dokzlo13/nvxd/internal/eventbus"
)

const (
	metricsMeasurement = "nvx_metrics"
	pollMeasurement    = "nvx_poll"
	pingTimeout        = 10 * time.Second

	millisecondsPerSecond = 1000
)

var (
	// ErrDisabled is returned by Connect when the sink is disabled.
	ErrDisabled = errors.New("influx: disabled in configuration")
	// ErrConnectionFailed is returned when the server cannot be reached.
	ErrConnectionFailed = errors.New("influx: connection failed")
)

// Writer turns view events into points on a non-blocking write API.
type Writer struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
}

// Connect creates the client and verifies the server answers a ping.
func Connect(ctx context.Context, cfg config.InfluxConfig) (*Writer, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	w := &Writer{client: client, writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket)}
	go func(errs <-chan error) {
		for err := range errs {
			log.Warn().Err(err).Msg("InfluxDB write failed")
		}
	}(w.writeAPI.Errors())

	log.Info().Str("url", cfg.URL).Str("bucket", cfg.Bucket).Msg("InfluxDB sink connected")
	return w, nil
}

// Attach subscribes the writer to the bus
func (w *Writer) Attach(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeView, w.handleView)
	bus.Subscribe(eventbus.EventTypePollFailed, w.handlePollFailed)
}

func (w *Writer) handleView(e eventbus.Event) {
	// Control-driven views repeat the last poll with a patched value.
	if reason, _ := e.Data["reason"].(string); reason != "poll" {
		return
	}
	view, ok := e.Data["view"].(derive.View)
	if !ok {
		return
	}
	deviceID, _ := e.Data["device_id"].(string)
	at, _ := e.Data["at"].(time.Time)

	if p := metricsPoint(deviceID, view, at); p != nil {
		w.writeAPI.WritePoint(p)
	}
	stats, _ := e.Data["stats"].(adapter.PollStats)
	w.writeAPI.WritePoint(pollPoint(deviceID, &stats, at))
}

func (w *Writer) handlePollFailed(e eventbus.Event) {
	deviceID, _ := e.Data["device_id"].(string)
	w.writeAPI.WritePoint(pollPoint(deviceID, nil, time.Now()))
}

// Close flushes pending points and closes the client.
func (w *Writer) Close() {
	w.writeAPI.Flush()
	w.client.Close()
}

// metricsPoint returns nil when the view has no numeric metric.
func metricsPoint(deviceID string, view derive.View, at time.Time) *write.Point {
	fields := make(map[string]any)
	for name, value := range view.Metrics {
		if value == derive.None {
			continue
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		fields[name] = f
	}
	if len(fields) == 0 {
		return nil
	}

	tags := map[string]string{"device_id": deviceID}
	if model := view.Metrics[derive.PropModel]; model != "" && model != derive.None {
		tags["model"] = model
	}
	if mode := view.Metrics[derive.PropDeviceMode]; mode != "" && mode != derive.None {
		tags["mode"] = mode
	}
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(metricsMeasurement, tags, fields, at)
}

// pollPoint records one cycle; stats is nil for a failed cycle.
func pollPoint(deviceID string, stats *adapter.PollStats, at time.Time) *write.Point {
	fields := map[string]any{"success": stats != nil}
	if stats != nil {
		fields["duration_ms"] = float64(stats.Duration) / float64(time.Millisecond)
		fields["groups_fetched"] = stats.Attempted - stats.Failed
		fields["groups_failed"] = stats.Failed
	}
	return write.NewPoint(pollMeasurement, map[string]string{"device_id": deviceID}, fields, at)
}

func writeOptions(cfg config.InfluxConfig) *influxdb2.Options {
	return influxdb2.DefaultOptions().
		SetBatchSize(cfg.BatchSize).
		SetFlushInterval(cfg.FlushInterval * millisecondsPerSecond)
}
