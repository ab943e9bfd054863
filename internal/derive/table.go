package derive

import (
	"strconv"
	"time"

	"github.com/dokzlo13/nvxd/internal/nvx"
)

// Property names referenced outside the table.
const (
	PropModel      = "Model"
	PropDeviceMode = "DeviceMode"
	PropReboot     = "Reboot"

	PropAddressSchema = "Network#AddressSchema"
	PropIGMPSupport   = "Network#IGMPSupport"
	PropCloudService  = "Network#CloudConfigurationServiceConnection"

	PropIPID = "ControlSystem#IPID"

	PropInputNo = "Input#InputNo"

	PropOutputNo           = "Output#OutputNo"
	PropAnalogAudioVolume  = "Output#AnalogAudioVolume"
	PropAnalogAudioCurrent = "Output#AnalogAudioCurrentVolume"
	PropAutoUpdate         = "AutoUpdate#AutoUpdate"
	PropTimeZone           = "DateTime#TimeZone"
	PropDate               = "DateTime#Date"
	PropTime               = "DateTime#Time"
	PropCurrentDateTime    = "DateTime#CurrentDateTime"
	PropSynchronizeNow     = "DateTime#SynchronizeNow"
	PropNTPServerPrefix    = "DateTime#NTPTimeServers"
	PropDiscoveryAgent     = "DiscoveryConfig#DiscoveryAgent"
	PropTTL                = "DiscoveryConfig#TTL"
	PropReceiveUUID        = "StreamReceive#UUID"
	PropReceiveMode        = "StreamReceive#Mode"
	PropTransmitUUID       = "StreamTransmit#UUID"
	PropTransmitMode       = "StreamTransmit#Mode"
	PropSubscriptionID     = "StreamSubscription#UniqueId"
	PropAvailableID        = "StreamAvailable#UniqueId"
	PropRouteID            = "InputRouting#UniqueId"
	PropAudioSource        = "InputRouting#AudioSource"
	PropVideoSource        = "InputRouting#VideoSource"
	PropAnalogAudioMode    = "InputRouting#AnalogAudioMode"
	PropAutomaticRouting   = "InputRouting#AutomaticInputRouting"
	PropActiveAudioSource  = "InputRouting#ActiveAudioSource"
	PropActiveVideoSource  = "InputRouting#ActiveVideoSource"
)

const (
	DateLayout = "01/02/2006"
	TimeLayout = "15:04"
)

// property is one row of the derivation table.
type property struct {
	name     string
	group    nvx.Group
	mode     nvx.Mode
	requires func(nvx.Document) bool
	strategy strategy
}

func has(p ...string) func(nvx.Document) bool {
	return func(doc nvx.Document) bool {
		_, ok := nvx.Lookup(doc, p...)
		return ok
	}
}

func positive(p ...string) func(nvx.Document) bool {
	return func(doc nvx.Document) bool {
		v, ok := nvx.Lookup(doc, p...)
		if !ok {
			return false
		}
		s, _ := nvx.Text(v)
		n, err := strconv.ParseFloat(s, 64)
		return err == nil && n > 0
	}
}

// streamFields are the per-stream values shared by the receive and transmit groups.
func streamFields(prefix string, group nvx.Group, mode nvx.Mode, scope string) []property {
	names := []string{"StreamLocation", "MulticastAddress", "Status", "HorizontalResolution", "VerticalResolution"}
	out := make([]property, 0, len(names))
	for _, n := range names {
		out = append(out, property{name: prefix + n, group: group, mode: mode, strategy: field{in(scope, n)}})
	}
	return out
}

// sessionFields are shared by subscriptions and discovered streams.
func sessionFields(prefix string, group nvx.Group, mode nvx.Mode, scope string) []property {
	fields := []struct{ name, key string }{
		{"SessionName", "SessionName"},
		{"RTSPAddress", "RtspUri"},
		{"MulticastAddress", "MulticastAddress"},
		{"Resolution", "Resolution"},
		{"AudioFormat", "AudioFormat"},
		{"Bitrate", "Bitrate"},
		{"Transport", "Transport"},
		{"Encryption", "Encryption"},
	}
	out := make([]property, 0, len(fields))
	for _, f := range fields {
		out = append(out, property{name: prefix + f.name, group: group, mode: mode, strategy: field{in(scope, f.key)}})
	}
	return out
}

func buildTable() []property {
	const (
		gInfo = nvx.GroupDeviceInfo
		gSpec = nvx.GroupDeviceSpecific
		gOps  = nvx.GroupDeviceOperations
		gNet  = nvx.GroupNetwork
		gIP   = nvx.GroupControlSystem
		gAV   = nvx.GroupAudioVideo
		gUpd  = nvx.GroupAutoUpdate
		gTime = nvx.GroupDateTime
		gDisc = nvx.GroupDiscovery
		gRx   = nvx.GroupStreamReceive
		gTx   = nvx.GroupStreamTransmit
		gSub  = nvx.GroupStreamSubscription
		gAvl  = nvx.GroupStreamAvailable
		gRt   = nvx.GroupInputRouting
		rx    = nvx.ModeReceiver
		tx    = nvx.ModeTransmitter
	)

	t := []property{
		// General
		{name: PropModel, group: gInfo, strategy: field{path("Model")}},
		{name: "FirmwareVersion", group: gInfo, strategy: field{path("DeviceVersion")}},
		{name: "FirmwareBuildDate", group: gInfo, strategy: field{path("BuildDate")}},
		{name: "SerialNumber", group: gInfo, strategy: field{path("SerialNumber")}},
		{name: "DeviceManufacturer", group: gInfo, strategy: field{path("Manufacturer")}},
		{name: "DeviceID", group: gInfo, strategy: field{path("DeviceId")}},
		{name: "DeviceName", group: gInfo, strategy: field{path("Name")}},
		{name: "PUFVersion", group: gInfo, strategy: field{path("PufVersion")}},
		{name: "Devicekey", group: gInfo, strategy: field{path("Devicekey")}},
		{name: "RebootReason", group: gInfo, strategy: field{path("RebootReason")}},
		{name: PropDeviceMode, group: gSpec, strategy: field{path("DeviceMode")}},
		{name: "DeviceReady", group: gSpec, strategy: field{path("DeviceReady")}},
		{name: "FrontPanelLockout", group: gSpec, strategy: field{path("IsFrontPanelLockoutEnabled")}},
		{name: "FirmwareUpgradedStatus", group: gOps, strategy: field{path("UpgradeStatus")}},
		{name: PropReboot, group: gOps, strategy: button{label: "Reboot", pressed: "Rebooting", grace: 3 * time.Minute}},

		// Network
		{name: "Network#HostName", group: gNet, strategy: field{path("HostName")}},
		{name: "Network#DomainName", group: gNet, strategy: field{path("DomainName")}},
		{name: PropIGMPSupport, group: gNet, strategy: staticDropdown{at: path("IgmpVersion"), options: IGMPVersions}},
		{name: PropAddressSchema, group: gNet, strategy: indexedByField{array: path("Adapters"), key: "AddressSchema", scope: "adapter", sub: "schema"}},
		{name: "Network#LinkActive", group: gNet, strategy: field{in("adapter", "LinkStatus")}},
		{name: "Network#MacAddress", group: gNet, strategy: field{in("adapter", "MacAddress")}},
		{name: "Network#DHCPEnabled", group: gNet, strategy: field{in("schema", "IsDhcpEnabled")}},
		{name: "Network#DefaultGateway", group: gNet, strategy: field{in("schema", "DefaultGateway")}},
		{name: "Network#IPAddress", group: gNet, strategy: field{in("schema", "Addresses", "0", "Address")}},
		{name: "Network#SubnetMask", group: gNet, strategy: field{in("schema", "Addresses", "0", "SubnetMask")}},
		{name: "Network#PrimaryStaticDNS", group: gNet, strategy: field{in("schema", "DnsServers", "0")}},
		{name: "Network#SecondaryStaticDNS", group: gNet, strategy: field{in("schema", "DnsServers", "1")}},
		{name: PropCloudService, group: nvx.GroupXioCloud, strategy: switchCtl{path("IsEnabled")}},

		// Control system
		{name: "ControlSystem#EncryptConnection", group: gIP, strategy: field{path("EncryptConnection")}},
		{name: PropIPID, group: gIP, requires: positive("MaxEntries"), strategy: indexedByField{array: path("Entries"), key: "IpId", scope: "ipentry"}},
		{name: "ControlSystem#RoomID", group: gIP, strategy: field{in("ipentry", "RoomId")}},
		{name: "ControlSystem#IPAddress", group: gIP, strategy: field{in("ipentry", "Address")}},
		{name: "ControlSystem#Type", group: gIP, strategy: field{in("ipentry", "Type")}},
		{name: "ControlSystem#ServerPort", group: gIP, strategy: field{in("ipentry", "Port")}},
		{name: "ControlSystem#Connection", group: gIP, strategy: field{in("ipentry", "ConnectionType")}},
		{name: "ControlSystem#Status", group: gIP, strategy: field{in("ipentry", "Status")}},

		// Inputs
		{name: PropInputNo, group: gAV, strategy: indexed{array: path("Inputs"), elem: []string{"Ports", "0"}, root: "input", scope: "inport"}},
		{name: "Input#Name", group: gAV, strategy: field{in("input", "Name")}},
		{name: "Input#InputUUID", group: gAV, strategy: field{in("input", "Uuid")}},
		{name: "Input#PortUUID", group: gAV, strategy: field{in("inport", "Uuid")}},
		{name: "Input#SyncDetected", group: gAV, strategy: yesNo(in("inport", "IsSyncDetected"))},
		{name: "Input#HorizontalResolution", group: gAV, strategy: field{in("inport", "HorizontalResolution")}},
		{name: "Input#VerticalResolution", group: gAV, strategy: field{in("inport", "VerticalResolution")}},
		{name: "Input#Interlaced", group: gAV, strategy: yesNo(in("inport", "IsInterlacedDetected"))},
		{name: "Input#AspectRatio", group: gAV, strategy: field{in("inport", "AspectRatio")}},
		{name: "Input#ContentStreamType", group: gAV, strategy: field{in("inport", "ContentStreamType")}},
		{name: "Input#HDCPState", group: gAV, strategy: field{in("inport", "Hdmi", "HdcpState")}},
		{name: "Input#HdcpReceiverCapability", group: gAV, strategy: field{in("inport", "Hdmi", "HdcpReceiverCapability")}},
		{name: "Input#AudioFormat", group: gAV, strategy: field{in("inport", "Audio", "Digital", "Format")}},
		{name: "Input#AudioChannel", group: gAV, strategy: field{in("inport", "Audio", "Digital", "Channels")}},
		{name: "Input#EDID", group: gAV, strategy: field{in("inport", "Edid", "CurrentEdid")}},

		// Outputs
		{name: PropOutputNo, group: gAV, strategy: indexed{array: path("Outputs"), elem: []string{"Ports", "0"}, root: "output", scope: "outport"}},
		{name: "Output#Name", group: gAV, strategy: field{in("output", "Name")}},
		{name: "Output#OutputUUID", group: gAV, strategy: field{in("output", "Uuid")}},
		{name: "Output#PortUUID", group: gAV, strategy: field{in("outport", "Uuid")}},
		{name: "Output#SinkConnected", group: gAV, strategy: yesNo(in("outport", "IsSinkConnected"))},
		{name: "Output#Resolution", group: gAV, strategy: field{in("outport", "Resolution")}},
		{name: "Output#AspectRatio", group: gAV, strategy: field{in("outport", "AspectRatio")}},
		{name: "Output#HDCPState", group: gAV, strategy: field{in("outport", "Hdmi", "HdcpState")}},
		{name: "Output#DisabledByHDCP", group: gAV, strategy: yesNo(in("outport", "Hdmi", "DisabledByHdcp"))},
		{name: PropAnalogAudioVolume, group: gAV, strategy: slider{at: in("outport", "Audio", "Volume"), min: -100, max: 100, companion: PropAnalogAudioCurrent}},

		// Auto update
		{name: PropAutoUpdate, group: gUpd, strategy: switchCtl{path("IsEnabled")}},
		{name: "AutoUpdate#CustomUrl", group: gUpd, strategy: field{path("IsCustomUrlEnabled")}},
		{name: "AutoUpdate#CustomUrlPath", group: gUpd, strategy: field{path("ManifestPath")}},
		{name: "AutoUpdate#ScheduleDayOfWeek", group: gUpd, requires: has("AutoUpdateSchedule"), strategy: field{path("AutoUpdateSchedule", "DayOfWeek")}},
		{name: "AutoUpdate#ScheduleTimeOfDay", group: gUpd, requires: has("AutoUpdateSchedule"), strategy: field{path("AutoUpdateSchedule", "TimeOfDay")}},
		{name: "AutoUpdate#SchedulePollInterval", group: gUpd, requires: has("AutoUpdateSchedule"), strategy: field{path("AutoUpdateSchedule", "CheckInterval")}},

		// Date and time
		{name: PropTimeZone, group: gTime, requires: has("Ntp"), strategy: enumLabel{at: path("TimeZone"), enum: TimeZones, dropdown: true}},
		{name: PropDate, group: gTime, requires: has("Ntp"), strategy: clockText{at: path("CurrentTime"), layout: DateLayout}},
		{name: PropTime, group: gTime, requires: has("Ntp"), strategy: clockText{at: path("CurrentTime"), layout: TimeLayout}},
		{name: PropCurrentDateTime, group: gTime, requires: has("Ntp"), strategy: field{path("CurrentTime")}},
		{name: PropNTPServerPrefix, group: gTime, requires: has("Ntp"), strategy: ntpServers{}},
		{name: PropSynchronizeNow, group: gTime, requires: has("Ntp"), strategy: button{label: "Sync", pressed: "Syncing", grace: 5 * time.Second}},

		// Discovery
		{name: PropDiscoveryAgent, group: gDisc, strategy: switchCtl{path("DiscoveryAgent")}},
		{name: PropTTL, group: gDisc, strategy: numeric{path("Ttl")}},

		// Stream receive
		{name: PropReceiveUUID, group: gRx, mode: rx, strategy: indexedByField{array: path("Streams"), key: "UUID", scope: "rxstream"}},
		{name: PropReceiveMode, group: gRx, mode: rx, strategy: modeSelect{}},
	}
	t = append(t, streamFields("StreamReceive#", gRx, rx, "rxstream")...)

	// Stream transmit
	t = append(t,
		property{name: PropTransmitUUID, group: gTx, mode: tx, strategy: indexedByField{array: path("Streams"), key: "UUID", scope: "txstream"}},
		property{name: PropTransmitMode, group: gTx, mode: tx, strategy: modeSelect{}},
	)
	t = append(t, streamFields("StreamTransmit#", gTx, tx, "txstream")...)

	// Subscriptions and discovered streams
	t = append(t, property{name: PropSubscriptionID, group: gSub, mode: rx, strategy: keyed{object: path("Subscriptions"), scope: "subscription"}})
	t = append(t, sessionFields("StreamSubscription#", gSub, rx, "subscription")...)
	t = append(t, property{name: PropAvailableID, group: gAvl, mode: rx, strategy: keyed{object: path("Streams"), scope: "available"}})
	t = append(t, sessionFields("StreamAvailable#", gAvl, rx, "available")...)

	// Input routing: source selection lives in DeviceSpecific, routes in AvRouting
	t = append(t,
		property{name: PropAudioSource, group: gSpec, strategy: enumLabel{at: path("AudioSource"), enum: AudioSources, dropdown: true}},
		property{name: PropVideoSource, group: gSpec, strategy: enumLabel{at: path("VideoSource"), enum: VideoSources, dropdown: true, always: true}},
		property{name: PropActiveAudioSource, group: gSpec, strategy: enumLabel{at: path("ActiveAudioSource"), enum: AudioSources}},
		property{name: PropActiveVideoSource, group: gSpec, strategy: enumLabel{at: path("ActiveVideoSource"), enum: VideoSources}},
		property{name: PropAnalogAudioMode, group: gSpec, strategy: enumLabel{at: path("AudioMode"), enum: AudioModes, dropdown: true}},
		property{name: PropAutomaticRouting, group: gSpec, strategy: switchCtl{path("AutomaticStreamRoutingEnabled")}},
		property{name: PropRouteID, group: gRt, strategy: keyed{object: path("Routes"), scope: "route"}},
		property{name: "InputRouting#RouteName", group: gRt, strategy: field{in("route", "Name")}},
		property{name: "InputRouting#RouteAudioSource", group: gRt, strategy: field{in("route", "AudioSource")}},
		property{name: "InputRouting#RouteVideoSource", group: gRt, strategy: field{in("route", "VideoSource")}},
	)
	return t
}

var (
	table      = buildTable()
	filterKeys = func() map[string]bool {
		keys := make(map[string]bool)
		for _, p := range table {
			if _, ok := p.strategy.(selector); ok {
				keys[p.name] = true
			}
		}
		return keys
	}()
)

// IsFilterKey reports whether name is a selector property. Controlling a
// selector only changes the filter store and re-derives locally.
func IsFilterKey(name string) bool {
	return filterKeys[name]
}

// FilterKeys returns every selector property name.
func FilterKeys() []string {
	out := make([]string, 0, len(filterKeys))
	for _, p := range table {
		if filterKeys[p.name] {
			out = append(out, p.name)
		}
	}
	return out
}
