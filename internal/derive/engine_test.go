package derive

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/dokzlo13/nvxd/internal/nvx"
	"github.com/dokzlo13/nvxd/internal/state"
)

func cacheOf(t *testing.T, mode nvx.Mode, model string, docs map[nvx.Group]string) *state.RawCache {
	t.Helper()
	b := state.NewBuilder(mode)
	b.SetModel(model)
	for g, js := range docs {
		doc, err := nvx.Decode(strings.NewReader(js))
		if err != nil {
			t.Fatalf("fixture %s: %v", g, err)
		}
		b.Put(g, doc)
	}
	return b.Build()
}

func derive(src Source, filters map[string]string) Result {
	return Derive(Input{Source: src, Filters: filters, Options: Options{IncludeControls: true}})
}

const (
	deviceInfoJSON = `{"Model":"DM-NVX-352","DeviceVersion":"7.1.5213.00154","SerialNumber":"2051JBH01234","Manufacturer":"Crestron","Name":"nvx-lobby"}`
	deviceSpecJSON = `{"DeviceMode":"Transmitter","DeviceReady":true,"AudioSource":"Input1","VideoSource":"Stream","ActiveAudioSource":"Input2","ActiveVideoSource":"Input1","AudioMode":"Insert","AutomaticStreamRoutingEnabled":false}`
	ipTableJSON    = `{"MaxEntries":4,"EncryptConnection":"Off","Entries":[
		{"IpId":"03","RoomId":"R1","Address":"10.0.0.10","Type":"Peer","Port":41794,"ConnectionType":"Gateway","Status":"Online"},
		{"IpId":"04","RoomId":"R2","Address":"10.0.0.11","Type":"Peer","Port":41796,"ConnectionType":"Gateway","Status":"Offline"}]}`
	audioVideoJSON = `{
		"Inputs":[
			{"Name":"HDMI 1","Uuid":"in-1","Ports":[{"Uuid":"p-1","IsSyncDetected":true,"HorizontalResolution":1920,"VerticalResolution":1080,"IsInterlacedDetected":false,"Hdmi":{"HdcpState":"Hdcp1x"},"Audio":{"Digital":{"Format":"PCM","Channels":2}},"Edid":{"CurrentEdid":"Crestron Default"}}]},
			{"Name":"HDMI 2","Uuid":"in-2","Ports":[{"Uuid":"p-2","IsSyncDetected":false,"HorizontalResolution":0,"VerticalResolution":0}]}],
		"Outputs":[
			{"Name":"HDMI Out","Uuid":"out-1","Ports":[{"Uuid":"op-1","IsSinkConnected":true,"Resolution":"1920x1080@60","Hdmi":{"DisabledByHdcp":false},"Audio":{"Volume":-20}}]}]}`
	ethernetJSON = `{"HostName":"nvx-lobby","DomainName":"av.local","IgmpVersion":"v3","Adapters":[
		{"AddressSchema":"IPv4","LinkStatus":true,"MacAddress":"00:10:7f:aa:bb:cc","IPv4":{"IsDhcpEnabled":false,"DefaultGateway":"10.0.0.1","Addresses":[{"Address":"10.0.0.50","SubnetMask":"255.255.255.0"}],"DnsServers":["10.0.0.2","10.0.0.3"]}},
		{"AddressSchema":"IPv6","LinkStatus":true,"MacAddress":"00:10:7f:aa:bb:cc","IPv6":{"IsDhcpEnabled":true}}]}`
	systemClockJSON = `{"TimeZone":"010","CurrentTime":"2024-05-30T14:36:18+07:00","Ntp":{"ServersCurrentKeyList":["Server1"],"Servers":{"Server1":{"Address":"pool.ntp.org"}}}}`
	subscriptionJSON = `{"Subscriptions":{
		"b-uuid":{"SessionName":"Second","RtspUri":"rtsp://10.0.0.60:554/live.sdp","Resolution":"1920x1080"},
		"a-uuid":{"SessionName":"First","RtspUri":"rtsp://10.0.0.61:554/live.sdp","Resolution":"3840x2160"}}}`
	streamReceiveJSON = `{"Streams":[{"UUID":"rx-1","StreamLocation":"rtsp://10.0.0.61/live.sdp","MulticastAddress":"239.8.0.2","Status":"Streaming","HorizontalResolution":3840,"VerticalResolution":2160}]}`
	streamTransmitJSON = `{"Streams":[{"UUID":"tx-1","StreamLocation":"rtsp://10.0.0.50/live.sdp","MulticastAddress":"239.8.0.1","Status":"Streaming"}]}`
)

func TestModelPresentInputAbsent(t *testing.T) {
	src := cacheOf(t, nvx.ModeTransmitter, "", map[nvx.Group]string{
		nvx.GroupDeviceInfo:     deviceInfoJSON,
		nvx.GroupDeviceSpecific: deviceSpecJSON,
	})

	view := derive(src, nil).View
	if got := view.Metrics[PropModel]; got != "DM-NVX-352" {
		t.Errorf("Model = %q, want DM-NVX-352", got)
	}
	if _, ok := view.Metrics["Input#Name"]; ok {
		t.Error("Input#Name present without audio/video group")
	}
	if _, ok := view.Metrics[PropInputNo]; ok {
		t.Error("Input#InputNo present without audio/video group")
	}
	if got := view.Metrics["PUFVersion"]; got != None {
		t.Errorf("PUFVersion = %q, want None for missing field", got)
	}
}

func TestIPIDFallback(t *testing.T) {
	src := cacheOf(t, nvx.ModeReceiver, "DM-NVX-352", map[nvx.Group]string{nvx.GroupControlSystem: ipTableJSON})

	res := derive(src, map[string]string{PropIPID: "FA"})
	if got := res.View.Metrics[PropIPID]; got != "03" {
		t.Errorf("IPID = %q, want 03", got)
	}
	if got := res.View.Metrics["ControlSystem#RoomID"]; got != "R1" {
		t.Errorf("RoomID = %q, want R1", got)
	}
	if got := res.Corrections[PropIPID]; got != "03" {
		t.Errorf("correction = %q, want 03", got)
	}

	c, ok := res.View.Control(PropIPID)
	if !ok {
		t.Fatal("IPID control missing")
	}
	if !reflect.DeepEqual(c.Options, []string{"03", "04"}) {
		t.Errorf("IPID options = %v", c.Options)
	}
}

func TestIPIDSelection(t *testing.T) {
	src := cacheOf(t, nvx.ModeReceiver, "DM-NVX-352", map[nvx.Group]string{nvx.GroupControlSystem: ipTableJSON})

	res := derive(src, map[string]string{PropIPID: "04"})
	if got := res.View.Metrics["ControlSystem#Status"]; got != "Offline" {
		t.Errorf("Status = %q, want Offline", got)
	}
	if got := res.View.Metrics["ControlSystem#ServerPort"]; got != "41796" {
		t.Errorf("ServerPort = %q, want 41796", got)
	}
	if len(res.Corrections) != 0 {
		t.Errorf("Corrections = %v, want none", res.Corrections)
	}
}

func TestIPIDRequiresEntries(t *testing.T) {
	src := cacheOf(t, nvx.ModeReceiver, "", map[nvx.Group]string{
		nvx.GroupControlSystem: `{"MaxEntries":0,"EncryptConnection":"Off","Entries":[{"IpId":"03"}]}`,
	})
	view := derive(src, nil).View
	if _, ok := view.Metrics[PropIPID]; ok {
		t.Error("IPID present with MaxEntries 0")
	}
	if _, ok := view.Metrics["ControlSystem#RoomID"]; ok {
		t.Error("RoomID present without selected entry")
	}
	if got := view.Metrics["ControlSystem#EncryptConnection"]; got != "Off" {
		t.Errorf("EncryptConnection = %q", got)
	}
}

func TestInputSelection(t *testing.T) {
	src := cacheOf(t, nvx.ModeTransmitter, "DM-NVX-352", map[nvx.Group]string{nvx.GroupAudioVideo: audioVideoJSON})

	tests := []struct {
		name       string
		filter     string
		wantNo     string
		wantName   string
		wantSync   string
		correction bool
	}{
		{"default", "", "1", "HDMI 1", "Yes", false},
		{"second", "2", "2", "HDMI 2", "No", false},
		{"out of range", "7", "1", "HDMI 1", "Yes", true},
		{"garbage", "abc", "1", "HDMI 1", "Yes", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filters := map[string]string{}
			if tt.filter != "" {
				filters[PropInputNo] = tt.filter
			}
			res := derive(src, filters)
			if got := res.View.Metrics[PropInputNo]; got != tt.wantNo {
				t.Errorf("InputNo = %q, want %q", got, tt.wantNo)
			}
			if got := res.View.Metrics["Input#Name"]; got != tt.wantName {
				t.Errorf("Name = %q, want %q", got, tt.wantName)
			}
			if got := res.View.Metrics["Input#SyncDetected"]; got != tt.wantSync {
				t.Errorf("SyncDetected = %q, want %q", got, tt.wantSync)
			}
			if _, ok := res.Corrections[PropInputNo]; ok != tt.correction {
				t.Errorf("correction present = %v, want %v", ok, tt.correction)
			}
		})
	}
}

func TestInputPortFields(t *testing.T) {
	src := cacheOf(t, nvx.ModeTransmitter, "DM-NVX-352", map[nvx.Group]string{nvx.GroupAudioVideo: audioVideoJSON})
	m := derive(src, nil).View.Metrics

	want := map[string]string{
		"Input#HorizontalResolution": "1920",
		"Input#Interlaced":           "No",
		"Input#HDCPState":            "Hdcp1x",
		"Input#AudioFormat":          "PCM",
		"Input#AudioChannel":         "2",
		"Input#EDID":                 "Crestron Default",
		"Input#PortUUID":             "p-1",
		"Input#ContentStreamType":    None,
		"Output#SinkConnected":       "Yes",
		"Output#DisabledByHDCP":      "No",
		"Output#Resolution":          "1920x1080@60",
		PropAnalogAudioCurrent:       "-20",
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s = %q, want %q", k, m[k], v)
		}
	}
}

func TestVolumeSlider(t *testing.T) {
	src := cacheOf(t, nvx.ModeTransmitter, "", map[nvx.Group]string{nvx.GroupAudioVideo: audioVideoJSON})
	c, ok := derive(src, nil).View.Control(PropAnalogAudioVolume)
	if !ok {
		t.Fatal("volume control missing")
	}
	if c.Type != ControlSlider || c.RangeStart != -100 || c.RangeEnd != 100 || c.Value != "-20" {
		t.Errorf("volume control = %+v", c)
	}
}

func TestNetworkAdapterSelection(t *testing.T) {
	src := cacheOf(t, nvx.ModeTransmitter, "", map[nvx.Group]string{
		nvx.GroupNetwork:  ethernetJSON,
		nvx.GroupXioCloud: `{"IsEnabled":true}`,
	})

	res := derive(src, nil)
	m := res.View.Metrics
	want := map[string]string{
		PropAddressSchema:            "IPv4",
		"Network#LinkActive":         "True",
		"Network#DHCPEnabled":        "False",
		"Network#IPAddress":          "10.0.0.50",
		"Network#SubnetMask":         "255.255.255.0",
		"Network#PrimaryStaticDNS":   "10.0.0.2",
		"Network#SecondaryStaticDNS": "10.0.0.3",
		PropIGMPSupport:              "v3",
		PropCloudService:             "1",
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s = %q, want %q", k, m[k], v)
		}
	}

	res = derive(src, map[string]string{PropAddressSchema: "IPv6"})
	if got := res.View.Metrics["Network#DHCPEnabled"]; got != "True" {
		t.Errorf("IPv6 DHCPEnabled = %q, want True", got)
	}
	if got := res.View.Metrics["Network#IPAddress"]; got != None {
		t.Errorf("IPv6 IPAddress = %q, want None", got)
	}

	sw, ok := res.View.Control(PropCloudService)
	if !ok || sw.Type != ControlSwitch || sw.Value != "1" || sw.LabelOn != "On" {
		t.Errorf("cloud switch = %+v, %v", sw, ok)
	}
	dd, ok := res.View.Control(PropIGMPSupport)
	if !ok || !reflect.DeepEqual(dd.Options, []string{"v2", "v3"}) {
		t.Errorf("igmp dropdown = %+v, %v", dd, ok)
	}
}

func TestKeyedSelection(t *testing.T) {
	src := cacheOf(t, nvx.ModeReceiver, "DM-NVX-352", map[nvx.Group]string{nvx.GroupStreamSubscription: subscriptionJSON})

	res := derive(src, nil)
	if got := res.View.Metrics[PropSubscriptionID]; got != "a-uuid" {
		t.Errorf("UniqueId = %q, want a-uuid", got)
	}
	if got := res.View.Metrics["StreamSubscription#SessionName"]; got != "First" {
		t.Errorf("SessionName = %q, want First", got)
	}

	res = derive(src, map[string]string{PropSubscriptionID: "b-uuid"})
	if got := res.View.Metrics["StreamSubscription#RTSPAddress"]; got != "rtsp://10.0.0.60:554/live.sdp" {
		t.Errorf("RTSPAddress = %q", got)
	}

	res = derive(src, map[string]string{PropSubscriptionID: "gone"})
	if got := res.Corrections[PropSubscriptionID]; got != "a-uuid" {
		t.Errorf("correction = %q, want a-uuid", got)
	}
}

func TestModeGating(t *testing.T) {
	docs := map[nvx.Group]string{
		nvx.GroupStreamReceive:  streamReceiveJSON,
		nvx.GroupStreamTransmit: streamTransmitJSON,
	}

	rx := derive(cacheOf(t, nvx.ModeReceiver, "DM-NVX-352", docs), nil).View
	if _, ok := rx.Metrics[PropTransmitUUID]; ok {
		t.Error("transmit stream present in receiver mode")
	}
	if got := rx.Metrics["StreamReceive#MulticastAddress"]; got != "239.8.0.2" {
		t.Errorf("receive MulticastAddress = %q", got)
	}

	tx := derive(cacheOf(t, nvx.ModeTransmitter, "DM-NVX-352", docs), nil).View
	if _, ok := tx.Metrics[PropReceiveUUID]; ok {
		t.Error("receive stream present in transmitter mode")
	}
	if got := tx.Metrics["StreamTransmit#HorizontalResolution"]; got != None {
		t.Errorf("transmit HorizontalResolution = %q, want None", got)
	}
}

func TestModeDropdownByModel(t *testing.T) {
	docs := map[nvx.Group]string{nvx.GroupStreamReceive: streamReceiveJSON}

	tests := []struct {
		model       string
		wantControl bool
	}{
		{"DM-NVX-352", true},
		{"DM-NVX-350", true},
		{"DM-NVX-D30", false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			view := derive(cacheOf(t, nvx.ModeReceiver, tt.model, docs), nil).View
			if got := view.Metrics[PropReceiveMode]; got != "Receiver" {
				t.Errorf("Mode = %q, want Receiver", got)
			}
			_, ok := view.Control(PropReceiveMode)
			if ok != tt.wantControl {
				t.Errorf("mode control present = %v, want %v", ok, tt.wantControl)
			}
		})
	}
}

func TestDateTime(t *testing.T) {
	src := cacheOf(t, nvx.ModeReceiver, "", map[nvx.Group]string{nvx.GroupDateTime: systemClockJSON})
	view := derive(src, nil).View

	want := map[string]string{
		PropDate:                       "05/30/2024",
		PropTime:                       "14:36",
		PropTimeZone:                   "(UTC-06:00) Central Time (US & Canada)",
		PropCurrentDateTime:            "2024-05-30T14:36:18+07:00",
		PropNTPServerPrefix + "Server1": "pool.ntp.org",
	}
	for k, v := range want {
		if view.Metrics[k] != v {
			t.Errorf("%s = %q, want %q", k, view.Metrics[k], v)
		}
	}
	if c, ok := view.Control(PropTimeZone); !ok || len(c.Options) != len(timeZoneEntries) {
		t.Errorf("timezone control = %v, %v", len(c.Options), ok)
	}
	if c, ok := view.Control(PropSynchronizeNow); !ok || c.Type != ControlButton {
		t.Errorf("sync button = %+v, %v", c, ok)
	}
}

func TestDateTimeRequiresNtp(t *testing.T) {
	src := cacheOf(t, nvx.ModeReceiver, "", map[nvx.Group]string{
		nvx.GroupDateTime: `{"TimeZone":"010","CurrentTime":"2024-05-30T14:36:18+07:00"}`,
	})
	if _, ok := derive(src, nil).View.Metrics[PropDate]; ok {
		t.Error("Date present without Ntp object")
	}
}

func TestRoutingEnums(t *testing.T) {
	src := cacheOf(t, nvx.ModeTransmitter, "DM-NVX-352", map[nvx.Group]string{
		nvx.GroupDeviceSpecific: `{"DeviceMode":"Transmitter","AudioSource":"Mystery","VideoSource":"Weird","AudioMode":"Extract","AutomaticStreamRoutingEnabled":true}`,
	})
	view := derive(src, nil).View

	if got := view.Metrics[PropAudioSource]; got != None {
		t.Errorf("AudioSource = %q, want None", got)
	}
	if _, ok := view.Control(PropAudioSource); ok {
		t.Error("AudioSource control present for unknown code")
	}
	if c, ok := view.Control(PropVideoSource); !ok || c.Value != None {
		t.Errorf("VideoSource control = %+v, %v", c, ok)
	}
	if got := view.Metrics[PropAnalogAudioMode]; got != "Extract" {
		t.Errorf("AnalogAudioMode = %q", got)
	}
	if got := view.Metrics[PropAutomaticRouting]; got != "1" {
		t.Errorf("AutomaticInputRouting = %q, want 1", got)
	}

	src = cacheOf(t, nvx.ModeTransmitter, "DM-NVX-352", map[nvx.Group]string{nvx.GroupDeviceSpecific: deviceSpecJSON})
	view = derive(src, nil).View
	if got := view.Metrics[PropAudioSource]; got != "Input 1" {
		t.Errorf("AudioSource = %q, want Input 1", got)
	}
	if got := view.Metrics[PropActiveAudioSource]; got != "Input 2" {
		t.Errorf("ActiveAudioSource = %q, want Input 2", got)
	}
}

func TestUnsupportedGroupSkipped(t *testing.T) {
	b := state.NewBuilder(nvx.ModeReceiver)
	b.Put(nvx.GroupDeviceInfo, "UnSupportedRestApi")
	view := derive(b.Build(), nil).View
	if len(view.Metrics) != 0 {
		t.Errorf("Metrics = %v, want empty", view.Metrics)
	}
}

func TestIncludeControlsOff(t *testing.T) {
	src := cacheOf(t, nvx.ModeTransmitter, "DM-NVX-352", map[nvx.Group]string{
		nvx.GroupAudioVideo: audioVideoJSON,
		nvx.GroupNetwork:    ethernetJSON,
	})
	with := derive(src, nil).View
	without := Derive(Input{Source: src}).View

	if len(without.Controls) != 0 {
		t.Errorf("Controls = %d, want 0", len(without.Controls))
	}
	if !reflect.DeepEqual(with.Metrics, without.Metrics) {
		t.Error("metrics differ when controls are disabled")
	}
}

func TestDeriveIdempotent(t *testing.T) {
	src := cacheOf(t, nvx.ModeReceiver, "DM-NVX-352", map[nvx.Group]string{
		nvx.GroupDeviceInfo:         deviceInfoJSON,
		nvx.GroupDeviceSpecific:     deviceSpecJSON,
		nvx.GroupControlSystem:      ipTableJSON,
		nvx.GroupAudioVideo:         audioVideoJSON,
		nvx.GroupNetwork:            ethernetJSON,
		nvx.GroupDateTime:           systemClockJSON,
		nvx.GroupStreamSubscription: subscriptionJSON,
		nvx.GroupStreamReceive:      streamReceiveJSON,
	})
	filters := map[string]string{PropInputNo: "2"}

	a := derive(src, filters).View
	b := derive(src, filters).View
	if !reflect.DeepEqual(a, b) {
		t.Fatal("two derivations differ")
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Error("serialized views differ")
	}
}

func TestNilSource(t *testing.T) {
	res := Derive(Input{})
	if len(res.View.Metrics) != 0 || len(res.View.Controls) != 0 {
		t.Errorf("View = %+v, want empty", res.View)
	}
}

func TestIsFilterKey(t *testing.T) {
	for _, k := range []string{PropIPID, PropInputNo, PropOutputNo, PropAddressSchema, PropSubscriptionID, PropAvailableID, PropReceiveUUID, PropTransmitUUID, PropRouteID} {
		if !IsFilterKey(k) {
			t.Errorf("IsFilterKey(%q) = false", k)
		}
	}
	for _, k := range []string{PropModel, PropIGMPSupport, PropAnalogAudioVolume, "Input#Name"} {
		if IsFilterKey(k) {
			t.Errorf("IsFilterKey(%q) = true", k)
		}
	}
	if len(FilterKeys()) != 9 {
		t.Errorf("FilterKeys() = %v", FilterKeys())
	}
}

func TestEnumLookup(t *testing.T) {
	if code, ok := TimeZones.Code("(UTC-05:00) Eastern Time (US & Canada)"); !ok || code != "014" {
		t.Errorf("Code() = %q, %v, want 014", code, ok)
	}
	if code, ok := AudioSources.Code("AnalogAudio"); !ok || code != "AnalogAudio" {
		t.Errorf("Code(code) = %q, %v", code, ok)
	}
	if _, ok := VideoSources.Label("Input3"); ok {
		t.Error("Label(Input3) = ok")
	}
}
