package nvx

import "strings"

// Mode is the operating role of an NVX endpoint.
type Mode string

const (
	ModeUnknown     Mode = ""
	ModeTransmitter Mode = "Transmitter"
	ModeReceiver    Mode = "Receiver"
)

// Modes lists the selectable operating roles in display order.
var Modes = []Mode{ModeTransmitter, ModeReceiver}

// ParseMode maps the DeviceMode field of the DeviceSpecific document to a Mode.
func ParseMode(s string) Mode {
	switch {
	case strings.EqualFold(s, string(ModeTransmitter)):
		return ModeTransmitter
	case strings.EqualFold(s, string(ModeReceiver)):
		return ModeReceiver
	default:
		return ModeUnknown
	}
}

// Matches reports whether a requirement of m is satisfied by the device mode.
// An empty requirement matches everything, and an unknown device mode matches
// every requirement.
func (m Mode) Matches(device Mode) bool {
	return m == ModeUnknown || device == ModeUnknown || m == device
}

func (m Mode) String() string {
	if m == ModeUnknown {
		return "None"
	}
	return string(m)
}

// Known hardware models.
const (
	ModelE30 = "DM-NVX-E30"
	ModelD30 = "DM-NVX-D30"
	Model350 = "DM-NVX-350"
	Model352 = "DM-NVX-352"
)

// SwitchableModel reports whether the model can change between transmitter and
// receiver roles. The E-series encoders and D-series decoders have a fixed role.
func SwitchableModel(model string) bool {
	m := strings.ToUpper(strings.TrimSpace(model))
	switch {
	case m == "" || m == "NONE":
		return false
	case m == Model350 || m == Model352:
		return true
	case strings.HasPrefix(m, "DM-NVX-E"), strings.HasPrefix(m, "DM-NVX-D"):
		return false
	default:
		return strings.HasPrefix(m, "DM-NVX-")
	}
}
