package nvx

import "strings"

// Group identifies one logical REST resource of the device.
type Group string

const (
	GroupDeviceInfo         Group = "DeviceInfo"
	GroupDeviceSpecific     Group = "DeviceSpecific"
	GroupDeviceOperations   Group = "DeviceOperations"
	GroupNetwork            Group = "Network"
	GroupXioCloud           Group = "XioCloud"
	GroupControlSystem      Group = "ControlSystem"
	GroupAudioVideo         Group = "AudioVideo"
	GroupAutoUpdate         Group = "AutoUpdate"
	GroupDateTime           Group = "DateTime"
	GroupDiscovery          Group = "DiscoveryConfig"
	GroupStreamReceive      Group = "StreamReceive"
	GroupStreamTransmit     Group = "StreamTransmit"
	GroupStreamSubscription Group = "StreamSubscription"
	GroupStreamAvailable    Group = "StreamAvailable"
	GroupInputRouting       Group = "InputRouting"
)

// GroupSpec describes how a group is fetched.
type GroupSpec struct {
	Group Group
	Path  string // Request path relative to the device root, e.g. Device/Ethernet

	// Mode restricts polling to devices in this role; ModeUnknown polls always.
	Mode Mode

	// ModelGate, when set, must return true for the device model resolved
	// earlier in the same cycle.
	ModelGate func(model string) bool
}

// Segments returns the path split into the keys used to unwrap the response.
func (s GroupSpec) Segments() []string {
	return strings.Split(s.Path, "/")
}

// Groups is the ordered refresh table. DeviceInfo comes first so that the
// model is known before model-gated groups are considered.
var Groups = []GroupSpec{
	{Group: GroupDeviceInfo, Path: "Device/DeviceInfo"},
	{Group: GroupDeviceSpecific, Path: "Device/DeviceSpecific"},
	{Group: GroupDeviceOperations, Path: "Device/DeviceOperations"},
	{Group: GroupNetwork, Path: "Device/Ethernet"},
	{Group: GroupXioCloud, Path: "Device/CloudSettings/XioCloud"},
	{Group: GroupControlSystem, Path: "Device/IpTable"},
	{Group: GroupAudioVideo, Path: "Device/AudioVideoInputOutput"},
	{Group: GroupAutoUpdate, Path: "Device/AutoUpdateMaster"},
	{Group: GroupDateTime, Path: "Device/SystemClock"},
	{Group: GroupDiscovery, Path: "Device/DiscoveryConfig"},
	{Group: GroupStreamReceive, Path: "Device/StreamReceive", Mode: ModeReceiver},
	{Group: GroupStreamTransmit, Path: "Device/StreamTransmit", Mode: ModeTransmitter},
	{Group: GroupStreamSubscription, Path: "Device/XioSubscription", Mode: ModeReceiver},
	{Group: GroupStreamAvailable, Path: "Device/DiscoveredStreams", Mode: ModeReceiver},
	{Group: GroupInputRouting, Path: "Device/AvRouting", ModelGate: SwitchableModel},
}

// Spec returns the table entry for g.
func Spec(g Group) (GroupSpec, bool) {
	for _, s := range Groups {
		if s.Group == g {
			return s, true
		}
	}
	return GroupSpec{}, false
}

// MustSpec is like Spec but panics on an unknown group.
func MustSpec(g Group) GroupSpec {
	s, ok := Spec(g)
	if !ok {
		panic("nvx: unknown group " + string(g))
	}
	return s
}
