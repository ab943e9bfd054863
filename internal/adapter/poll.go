package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/nvxd/internal/eventbus"
	"github.com/dokzlo13/nvxd/internal/ledger"
	"github.com/dokzlo13/nvxd/internal/nvx"
	"github.com/dokzlo13/nvxd/internal/state"
)

// Poll runs one refresh cycle: probe the device mode, fetch every group that
// applies to the mode and model, swap the raw cache and re-derive the view.
// On failure the previous view stays published.
func (a *Adapter) Poll(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cycleID := uuid.NewString()
	logger := log.With().Str("cycle", cycleID).Str("device", a.opts.DeviceID).Logger()
	start := time.Now()

	cache, err := a.fetchCycle(ctx, cycleID)
	if err != nil {
		logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Poll cycle failed")
		a.publish(eventbus.EventTypePollFailed, map[string]any{"cycle_id": cycleID, "error": err.Error()})
		if !errors.Is(err, context.Canceled) {
			a.record(&ledger.Entry{EventType: ledger.EventPollFailed, ControlID: cycleID, Error: err.Error()})
		}
		return err
	}

	a.cache = cache
	a.rederive()
	a.lastPoll = PollStats{
		CycleID:   cycleID,
		Mode:      cache.Mode().String(),
		Model:     cache.Model(),
		Attempted: cache.Attempted(),
		Failed:    cache.Failures(),
		Duration:  time.Since(start),
		At:        cache.FetchedAt(),
	}

	logger.Info().
		Str("mode", cache.Mode().String()).
		Str("model", cache.Model()).
		Int("groups", cache.Groups()).
		Int("failed", cache.Failures()).
		Int("metrics", len(a.view.Metrics)).
		Dur("elapsed", a.lastPoll.Duration).
		Msg("Poll cycle completed")

	a.publishViewLocked("poll")
	return nil
}

func (a *Adapter) fetchCycle(ctx context.Context, cycleID string) (*state.RawCache, error) {
	mode, probe, err := a.resolveMode(ctx)
	if err != nil {
		return nil, err
	}

	b := state.NewBuilder(mode)
	b.Put(nvx.GroupDeviceSpecific, probe)

	attempted, failed := 0, 0
	var lastErr error
	for _, spec := range nvx.Groups {
		if spec.Group == nvx.GroupDeviceSpecific {
			continue
		}
		if !spec.Mode.Matches(mode) {
			continue
		}
		if spec.ModelGate != nil && !spec.ModelGate(b.Model()) {
			log.Debug().Str("cycle", cycleID).Str("group", string(spec.Group)).Str("model", b.Model()).Msg("Group not available on model")
			continue
		}

		attempted++
		doc, err := a.device.Fetch(ctx, spec)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, nvx.ErrAuthFailed) {
				return nil, classify(err)
			}
			log.Warn().Err(err).Str("cycle", cycleID).Str("group", string(spec.Group)).Msg("Group fetch failed")
			b.Fail(spec.Group, err)
			failed++
			lastErr = err
			continue
		}
		b.Put(spec.Group, doc)

		if spec.Group == nvx.GroupDeviceInfo && !nvx.IsUnsupported(doc) {
			if v, ok := nvx.Lookup(doc, "Model"); ok {
				model, _ := nvx.Text(v)
				b.SetModel(model)
			}
		}
	}

	if attempted > 0 && failed == attempted {
		return nil, fmt.Errorf("%w: all %d groups failed: %w", ErrUnreachable, attempted, lastErr)
	}
	return b.Build(), nil
}
