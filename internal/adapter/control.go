package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/nvxd/internal/derive"
	"github.com/dokzlo13/nvxd/internal/eventbus"
	"github.com/dokzlo13/nvxd/internal/ledger"
	"github.com/dokzlo13/nvxd/internal/nvx"
)

// ControlRequest is one property change requested by the host.
type ControlRequest struct {
	Property string `json:"property"`
	Value    string `json:"value"`
}

// UnmarshalJSON accepts a string, number or boolean value. Numbers keep
// their JSON text, booleans become "true" or "false", null is empty.
func (r *ControlRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Property string          `json:"property"`
		Value    json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	value, err := controlValue(raw.Value)
	if err != nil {
		return fmt.Errorf("control %q: %w", raw.Property, err)
	}
	r.Property, r.Value = raw.Property, value
	return nil
}

func controlValue(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("%w: value must be a string, number or boolean", ErrInvalidValue)
	}
}

// Apply changes one property. A filter property only re-derives the view
// from the held cache; any other property is sent to the device and, on
// success, patched into the view until the next poll.
func (a *Adapter) Apply(ctx context.Context, name, value string) error {
	controlID := uuid.NewString()
	logger := log.With().Str("control", controlID).Str("property", name).Str("value", value).Logger()

	a.mu.Lock()
	filter, err := a.applyLocked(ctx, name, value)
	if err == nil {
		a.publishViewLocked("control")
	}
	a.mu.Unlock()

	entry := &ledger.Entry{ControlID: controlID, Property: name, Value: value}
	data := map[string]any{"control_id": controlID, "property": name, "value": value}

	switch {
	case err != nil:
		logger.Warn().Err(err).Msg("Control failed")
		entry.EventType = ledger.EventControlFailed
		entry.Error = err.Error()
		data["error"] = err.Error()
		a.publish(eventbus.EventTypeControlFailed, data)
	case filter:
		logger.Debug().Msg("Filter changed")
		entry.EventType = ledger.EventFilterChanged
		a.publish(eventbus.EventTypeFilterChanged, data)
	default:
		logger.Info().Msg("Control applied")
		entry.EventType = ledger.EventControlApplied
		a.publish(eventbus.EventTypeControlApplied, data)
	}
	a.record(entry)
	return err
}

// applyLocked reports whether name was a filter. Caller holds mu.
func (a *Adapter) applyLocked(ctx context.Context, name, value string) (bool, error) {
	if a.view == nil {
		return false, ErrNoView
	}

	if derive.IsFilterKey(name) {
		a.filters.Set(name, value)
		a.rederive()
		return true, nil
	}

	spec, ok := commands[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownProperty, name)
	}
	// Only what the last cycle derived can be changed: a group that failed
	// or does not apply to the mode leaves nothing to control.
	if _, ok := a.view.Metrics[name]; !ok {
		return false, fmt.Errorf("%w: %s is not in the current view", ErrUnknownProperty, name)
	}

	cmd, p, err := spec.build(commandEnv{cache: a.cache, view: a.view}, value)
	if err != nil {
		return false, &CommandError{Property: name, Value: value, Err: err}
	}
	if _, err := a.device.Send(ctx, cmd); err != nil {
		if errors.Is(err, nvx.ErrAuthFailed) {
			err = classify(err)
		}
		return false, &CommandError{Property: name, Value: value, Err: err}
	}

	if len(p) == 0 {
		p = patch{"": value}
	}
	for k, v := range p {
		if k == "" {
			k = name
		}
		if !a.view.SetValue(k, v) {
			log.Debug().Str("property", k).Msg("Patch target not in view, skipped")
		}
	}
	return false, nil
}

// ApplyBatch applies reqs in order. A failing request is logged and does not
// stop the rest; the joined errors are returned.
func (a *Adapter) ApplyBatch(ctx context.Context, reqs []ControlRequest) error {
	if len(reqs) == 0 {
		return ErrEmptyBatch
	}

	var errs []error
	for _, r := range reqs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := a.Apply(ctx, r.Property, r.Value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
