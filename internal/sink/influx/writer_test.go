package influx

import (
	"testing"
	"time"

	"github.com/dokzlo13/nvxd/internal/adapter"
	"github.com/dokzlo13/nvxd/internal/config"
	"github.com/dokzlo13/nvxd/internal/derive"
)

func TestMetricsPoint(t *testing.T) {
	view := derive.NewView()
	view.Metrics[derive.PropModel] = "DM-NVX-352"
	view.Metrics[derive.PropDeviceMode] = "Receiver"
	view.Metrics[derive.PropAnalogAudioVolume] = "-20"
	view.Metrics[derive.PropTTL] = "64"
	view.Metrics[derive.PropIGMPSupport] = "v3"
	view.Metrics[derive.PropIPID] = derive.None
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	p := metricsPoint("lobby-rx", view, at)
	if p == nil {
		t.Fatal("metricsPoint() = nil")
	}
	if p.Name() != metricsMeasurement {
		t.Errorf("Name() = %q", p.Name())
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["device_id"] != "lobby-rx" || tags["model"] != "DM-NVX-352" || tags["mode"] != "Receiver" {
		t.Errorf("tags = %v", tags)
	}

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	want := map[string]float64{derive.PropAnalogAudioVolume: -20, derive.PropTTL: 64}
	if len(fields) != len(want) {
		t.Fatalf("fields = %v, want %v", fields, want)
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("field %s = %v, want %v", k, fields[k], v)
		}
	}
}

func TestMetricsPointWithoutNumbers(t *testing.T) {
	view := derive.NewView()
	view.Metrics[derive.PropModel] = "DM-NVX-E30"
	view.Metrics[derive.PropTTL] = derive.None

	if p := metricsPoint("x", view, time.Now()); p != nil {
		t.Errorf("metricsPoint() = %v, want nil", p)
	}
}

func TestPollPoint(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	fieldsOf := func(stats *adapter.PollStats) map[string]any {
		fields := map[string]any{}
		for _, f := range pollPoint("lobby-rx", stats, at).FieldList() {
			fields[f.Key] = f.Value
		}
		return fields
	}

	failed := fieldsOf(nil)
	if len(failed) != 1 || failed["success"] != false {
		t.Errorf("failed cycle fields = %v", failed)
	}

	ok := fieldsOf(&adapter.PollStats{Attempted: 12, Failed: 2, Duration: 1500 * time.Millisecond})
	want := map[string]any{
		"success":        true,
		"duration_ms":    float64(1500),
		"groups_fetched": int64(10),
		"groups_failed":  int64(2),
	}
	for k, v := range want {
		if ok[k] != v {
			t.Errorf("field %s = %v (%T), want %v", k, ok[k], ok[k], v)
		}
	}
}

func TestWriteOptions(t *testing.T) {
	opts := writeOptions(config.InfluxConfig{BatchSize: 50, FlushInterval: 10})
	if opts.FlushInterval() != 10000 {
		t.Errorf("FlushInterval() = %d ms, want 10000", opts.FlushInterval())
	}
	if opts.BatchSize() != 50 {
		t.Errorf("BatchSize() = %d, want 50", opts.BatchSize())
	}
}
