// Package adapter is the synchronization engine for one NVX endpoint. It owns
// the raw cache, the selection filters and the published view, and serializes
// poll cycles against control actions.
package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/nvxd/internal/derive"
	"github.com/dokzlo13/nvxd/internal/eventbus"
	"github.com/dokzlo13/nvxd/internal/ledger"
	"github.com/dokzlo13/nvxd/internal/nvx"
	"github.com/dokzlo13/nvxd/internal/state"
)

// Device is the REST surface the adapter needs. *nvx.Client implements it.
type Device interface {
	Fetch(ctx context.Context, spec nvx.GroupSpec) (nvx.Document, error)
	Send(ctx context.Context, cmd nvx.Command) (nvx.ActionResults, error)
}

// Pinger measures the round trip to the device.
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Recorder persists control audit entries. *ledger.Ledger implements it.
type Recorder interface {
	Append(e *ledger.Entry) error
}

// Publisher receives adapter events. *eventbus.Bus implements it.
type Publisher interface {
	Publish(e eventbus.Event)
}

// Options configures an Adapter. Pinger, Recorder and Publisher are optional.
type Options struct {
	DeviceID        string
	IncludeControls bool
	Pinger          Pinger
	Recorder        Recorder
	Publisher       Publisher
}

// Adapter holds the state of one device.
type Adapter struct {
	device Device
	opts   Options

	// mu is held for a whole poll cycle and a whole control action
	mu       sync.Mutex
	cache    *state.RawCache
	filters  *state.FilterStore
	view     *derive.View
	viewAt   time.Time
	lastPoll PollStats
}

// PollStats describes the last completed poll cycle.
type PollStats struct {
	CycleID   string        `json:"cycle_id"`
	Mode      string        `json:"mode"`
	Model     string        `json:"model"`
	Attempted int           `json:"attempted"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
	At        time.Time     `json:"at"`
}

// New creates an adapter for device. No request is made until the first poll.
func New(device Device, opts Options) *Adapter {
	return &Adapter{
		device:  device,
		opts:    opts,
		filters: state.NewFilterStore(),
	}
}

// DeviceID returns the configured device identifier
func (a *Adapter) DeviceID() string {
	return a.opts.DeviceID
}

// Snapshot returns a copy of the last published view.
func (a *Adapter) Snapshot() (derive.View, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Adapter) snapshotLocked() (derive.View, error) {
	if a.view == nil {
		return derive.View{}, ErrNoView
	}
	return a.view.Clone(), nil
}

// GetView runs one poll cycle and returns the resulting view.
func (a *Adapter) GetView(ctx context.Context) (derive.View, error) {
	if err := a.Poll(ctx); err != nil {
		return derive.View{}, err
	}
	return a.Snapshot()
}

// Ready reports whether a view has been published.
func (a *Adapter) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view != nil
}

// LastPoll returns statistics of the last successful poll cycle
func (a *Adapter) LastPoll() PollStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastPoll
}

// Filters returns the current selection filter values
func (a *Adapter) Filters() map[string]string {
	return a.filters.Snapshot()
}

// Ping measures the device round trip with the configured pinger.
func (a *Adapter) Ping(ctx context.Context) (time.Duration, error) {
	if a.opts.Pinger == nil {
		return 0, ErrPingDisabled
	}
	return a.opts.Pinger.Ping(ctx)
}

// rederive recomputes the view from the held cache and filters and writes
// back any filter the derivation had to correct. Caller holds mu.
func (a *Adapter) rederive() {
	res := derive.Derive(derive.Input{
		Source:  a.cache,
		Filters: a.filters.Snapshot(),
		Options: derive.Options{IncludeControls: a.opts.IncludeControls},
	})
	for k, v := range res.Corrections {
		log.Debug().Str("filter", k).Str("value", v).Msg("Filter reset to first option")
		a.filters.Set(k, v)
	}
	view := res.View
	a.view = &view
	a.viewAt = time.Now()
}

func (a *Adapter) publish(t eventbus.EventType, data map[string]any) {
	if a.opts.Publisher == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["device_id"] = a.opts.DeviceID
	a.opts.Publisher.Publish(eventbus.Event{Type: t, Data: data})
}

// publishViewLocked sends a copy of the current view. Caller holds mu.
func (a *Adapter) publishViewLocked(reason string) {
	if a.view == nil {
		return
	}
	data := map[string]any{
		"view":   a.view.Clone(),
		"reason": reason,
		"at":     a.viewAt,
	}
	if reason == "poll" {
		data["stats"] = a.lastPoll
	}
	a.publish(eventbus.EventTypeView, data)
}

func (a *Adapter) record(e *ledger.Entry) {
	if a.opts.Recorder == nil {
		return
	}
	e.DeviceID = a.opts.DeviceID
	if err := a.opts.Recorder.Append(e); err != nil {
		log.Warn().Err(err).Str("event", string(e.EventType)).Msg("Failed to write ledger entry")
	}
}
