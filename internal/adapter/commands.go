package adapter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dokzlo13/nvxd/internal/derive"
	"github.com/dokzlo13/nvxd/internal/nvx"
	"github.com/dokzlo13/nvxd/internal/state"
)

// patch is the set of view entries a successful command rewrites. The empty
// key stands for the controlled property itself.
type patch map[string]string

// commandEnv is what a command builder may read: the cache and view the
// command is about to change.
type commandEnv struct {
	cache *state.RawCache
	view  *derive.View
}

type buildFunc func(env commandEnv, value string) (nvx.Command, patch, error)

type commandSpec struct {
	build buildFunc
}

var commands = map[string]commandSpec{
	derive.PropIGMPSupport:       {build: oneOf("Ethernet/IgmpVersion", derive.IGMPVersions)},
	derive.PropCloudService:      {build: toggle("CloudSettings/XioCloud/IsEnabled")},
	derive.PropAnalogAudioVolume: {build: buildVolume},
	derive.PropAutoUpdate:        {build: toggle("AutoUpdateMaster/IsEnabled")},
	derive.PropTimeZone:          {build: enumCode("SystemClock/TimeZone", derive.TimeZones)},
	derive.PropDate:              {build: buildClock(derive.DateLayout)},
	derive.PropTime:              {build: buildClock(derive.TimeLayout)},
	derive.PropSynchronizeNow:    {build: press("SystemClock/Ntp/SynchronizeNow")},
	derive.PropReboot:            {build: buildReboot},
	derive.PropDiscoveryAgent:    {build: toggle("DiscoveryConfig/DiscoveryAgent")},
	derive.PropTTL:               {build: intRange("DiscoveryConfig/Ttl", 1, 255)},
	derive.PropReceiveMode:       {build: buildMode},
	derive.PropTransmitMode:      {build: buildMode},
	derive.PropAutomaticRouting:  {build: toggle("DeviceSpecific/AutomaticStreamRoutingEnabled")},
	derive.PropAudioSource:       {build: enumCode("DeviceSpecific/AudioSource", derive.AudioSources)},
	derive.PropVideoSource:       {build: enumCode("DeviceSpecific/VideoSource", derive.VideoSources)},
	derive.PropAnalogAudioMode:   {build: enumCode("DeviceSpecific/AudioMode", derive.AudioModes)},
}

// Writable reports whether name is accepted by the command table.
func Writable(name string) bool {
	_, ok := commands[name]
	return ok
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidValue, fmt.Sprintf(format, args...))
}

func parseSwitch(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on", "yes":
		return true, nil
	case "0", "false", "off", "no":
		return false, nil
	}
	return false, invalid("%q is not a switch value", value)
}

func switchValue(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// toggle writes a boolean.
func toggle(path string) buildFunc {
	return func(_ commandEnv, value string) (nvx.Command, patch, error) {
		b, err := parseSwitch(value)
		if err != nil {
			return nvx.Command{}, nil, err
		}
		return nvx.NewCommand(path, b), patch{"": switchValue(b)}, nil
	}
}

// oneOf writes value verbatim if it is among options.
func oneOf(path string, options []string) buildFunc {
	return func(_ commandEnv, value string) (nvx.Command, patch, error) {
		for _, o := range options {
			if o == value {
				return nvx.NewCommand(path, value), patch{"": value}, nil
			}
		}
		return nvx.Command{}, nil, invalid("%q is not one of %v", value, options)
	}
}

// enumCode accepts a label (or code) and writes the device code.
func enumCode(path string, e *derive.Enum) buildFunc {
	return func(_ commandEnv, value string) (nvx.Command, patch, error) {
		code, ok := e.Code(value)
		if !ok {
			return nvx.Command{}, nil, invalid("unknown option %q", value)
		}
		label, _ := e.Label(code)
		return nvx.NewCommand(path, code), patch{"": label}, nil
	}
}

func intRange(path string, lo, hi int) buildFunc {
	return func(_ commandEnv, value string) (nvx.Command, patch, error) {
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nvx.Command{}, nil, invalid("%q is not a number", value)
		}
		n := int(math.Round(f))
		if n < lo || n > hi {
			return nvx.Command{}, nil, invalid("%d is outside %d..%d", n, lo, hi)
		}
		return nvx.NewCommand(path, n), patch{"": strconv.Itoa(n)}, nil
	}
}

// press writes true to a trigger; the button reads "0" again afterwards.
func press(path string) buildFunc {
	return func(commandEnv, string) (nvx.Command, patch, error) {
		return nvx.NewCommand(path, true), patch{"": "0"}, nil
	}
}

func buildReboot(commandEnv, string) (nvx.Command, patch, error) {
	return nvx.NewObjectCommand("DeviceOperations", map[string]any{"Reboot": true}), patch{"": "0"}, nil
}

// buildVolume addresses the output currently selected by the output filter.
// Earlier outputs are sent as empty objects so the array index lines up.
func buildVolume(env commandEnv, value string) (nvx.Command, patch, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return nvx.Command{}, nil, invalid("%q is not a number", value)
	}
	if f < -100 || f > 100 {
		return nvx.Command{}, nil, invalid("volume %v is outside -100..100", f)
	}
	n := int(math.Round(f))

	idx := 0
	if s, ok := env.view.Metrics[derive.PropOutputNo]; ok {
		if i, err := strconv.Atoi(s); err == nil && i > 0 {
			idx = i - 1
		}
	}
	outputs := make([]any, idx+1)
	for i := 0; i < idx; i++ {
		outputs[i] = map[string]any{}
	}
	outputs[idx] = map[string]any{
		"Ports": []any{map[string]any{"Audio": map[string]any{"Volume": n}}},
	}

	v := strconv.Itoa(n)
	return nvx.NewCommand("AudioVideoInputOutput/Outputs", outputs),
		patch{"": v, derive.PropAnalogAudioCurrent: v}, nil
}

// deviceClock returns the device time from the cache, keeping its offset.
func deviceClock(env commandEnv) time.Time {
	if doc, ok := env.cache.Get(nvx.GroupDateTime); ok {
		if v, ok := nvx.Lookup(doc, "CurrentTime"); ok {
			if s, ok := nvx.Text(v); ok {
				if t, err := time.Parse(time.RFC3339, s); err == nil {
					return t
				}
			}
		}
	}
	return time.Now()
}

// buildClock replaces the date or the time-of-day part of the device clock
// and writes the result with the device offset.
func buildClock(layout string) buildFunc {
	return func(env commandEnv, value string) (nvx.Command, patch, error) {
		in, err := time.Parse(layout, strings.TrimSpace(value))
		if err != nil {
			return nvx.Command{}, nil, invalid("%q does not match %s", value, layout)
		}
		cur := deviceClock(env)

		var next time.Time
		if layout == derive.DateLayout {
			next = time.Date(in.Year(), in.Month(), in.Day(), cur.Hour(), cur.Minute(), cur.Second(), 0, cur.Location())
		} else {
			next = time.Date(cur.Year(), cur.Month(), cur.Day(), in.Hour(), in.Minute(), 0, 0, cur.Location())
		}

		return nvx.NewCommand("SystemClock/CurrentTimeWithOffset", next.Format(time.RFC3339)),
			patch{
				derive.PropDate:            next.Format(derive.DateLayout),
				derive.PropTime:            next.Format(derive.TimeLayout),
				derive.PropCurrentDateTime: next.Format(time.RFC3339),
			}, nil
	}
}

func buildMode(env commandEnv, value string) (nvx.Command, patch, error) {
	mode := nvx.ParseMode(value)
	if mode == nvx.ModeUnknown {
		return nvx.Command{}, nil, invalid("unknown device mode %q", value)
	}
	model := env.cache.Model()
	if model == "" {
		model = env.view.Metrics[derive.PropModel]
	}
	if !nvx.SwitchableModel(model) {
		return nvx.Command{}, nil, invalid("model %q has a fixed role", model)
	}
	return nvx.NewCommand("DeviceSpecific/DeviceMode", string(mode)),
		patch{"": string(mode), derive.PropDeviceMode: string(mode)}, nil
}
