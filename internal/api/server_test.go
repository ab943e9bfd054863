package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dokzlo13/nvxd/internal/adapter"
	"github.com/dokzlo13/nvxd/internal/derive"
	"github.com/dokzlo13/nvxd/internal/ledger"
	"github.com/dokzlo13/nvxd/internal/nvx"
)

type fakeEngine struct {
	mu       sync.Mutex
	ready    bool
	view     derive.View
	applied  []adapter.ControlRequest
	applyErr error
	pingErr  error
}

func (f *fakeEngine) DeviceID() string { return "nvx-test" }

func (f *fakeEngine) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeEngine) Snapshot() (derive.View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ready {
		return derive.View{}, adapter.ErrNoView
	}
	return f.view.Clone(), nil
}

func (f *fakeEngine) Apply(_ context.Context, name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, adapter.ControlRequest{Property: name, Value: value})
	f.view.SetValue(name, value)
	return nil
}

func (f *fakeEngine) ApplyBatch(ctx context.Context, reqs []adapter.ControlRequest) error {
	if len(reqs) == 0 {
		return adapter.ErrEmptyBatch
	}
	var errs []error
	for _, r := range reqs {
		if err := f.Apply(ctx, r.Property, r.Value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fakeEngine) Ping(context.Context) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return 12 * time.Millisecond, f.pingErr
}

func (f *fakeEngine) LastPoll() adapter.PollStats { return adapter.PollStats{CycleID: "c1"} }

func (f *fakeEngine) Filters() map[string]string { return map[string]string{derive.PropInputNo: "1"} }

type fakePoller struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *fakePoller) PollNow(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.err
}

func (p *fakePoller) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func readyEngine() *fakeEngine {
	view := derive.NewView()
	view.Metrics[derive.PropModel] = "DM-NVX-352"
	view.Metrics[derive.PropIGMPSupport] = "v3"
	view.SetControl(derive.Control{Name: derive.PropIGMPSupport, Type: derive.ControlDropdown, Value: "v3", Options: []string{"v2", "v3"}})
	return &fakeEngine{ready: true, view: view}
}

func newTestServer(t *testing.T, engine Engine, poller Poller, hub *Hub) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(NewServer("127.0.0.1", 0, engine, poller, hub).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestHealthAndReady(t *testing.T) {
	engine := &fakeEngine{}
	ts := newTestServer(t, engine, nil, nil)

	if code := doJSON(t, http.MethodGet, ts.URL+"/health", "", nil); code != http.StatusOK {
		t.Errorf("/health = %d", code)
	}
	if code := doJSON(t, http.MethodGet, ts.URL+"/ready", "", nil); code != http.StatusServiceUnavailable {
		t.Errorf("/ready before poll = %d, want 503", code)
	}
	var e Error
	if code := doJSON(t, http.MethodGet, ts.URL+"/api/v1/view", "", &e); code != http.StatusServiceUnavailable || e.Code != ErrCodeNotReady {
		t.Errorf("/view before poll = %d %+v", code, e)
	}

	engine.mu.Lock()
	engine.ready = true
	engine.view = derive.NewView()
	engine.mu.Unlock()
	if code := doJSON(t, http.MethodGet, ts.URL+"/ready", "", nil); code != http.StatusOK {
		t.Errorf("/ready after poll = %d, want 200", code)
	}
}

func TestView(t *testing.T) {
	ts := newTestServer(t, readyEngine(), nil, nil)

	var view derive.View
	if code := doJSON(t, http.MethodGet, ts.URL+"/api/v1/view", "", &view); code != http.StatusOK {
		t.Fatalf("/view = %d", code)
	}
	if view.Metrics[derive.PropModel] != "DM-NVX-352" {
		t.Errorf("Model = %q", view.Metrics[derive.PropModel])
	}
	if c, ok := view.Control(derive.PropIGMPSupport); !ok || len(c.Options) != 2 {
		t.Errorf("control = %+v, %v", c, ok)
	}
}

func TestControl(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		applyErr error
		wantCode int
		wantErr  string
	}{
		{"single", `{"property":"Network#IGMPSupport","value":"v2"}`, nil, http.StatusOK, ""},
		{"batch", `[{"property":"Network#IGMPSupport","value":"v2"},{"property":"Input#InputNo","value":"2"}]`, nil, http.StatusOK, ""},
		{"empty batch", `[]`, nil, http.StatusBadRequest, ErrCodeValidation},
		{"missing property", `{"value":"v2"}`, nil, http.StatusBadRequest, ErrCodeValidation},
		{"bad json", `{"property":`, nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"empty body", ``, nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"unknown", `{"property":"Model","value":"x"}`, fmt.Errorf("%w: Model", adapter.ErrUnknownProperty), http.StatusNotFound, ErrCodeNotFound},
		{"invalid", `{"property":"Network#IGMPSupport","value":"v9"}`,
			&adapter.CommandError{Property: derive.PropIGMPSupport, Value: "v9", Err: adapter.ErrInvalidValue}, http.StatusBadRequest, ErrCodeValidation},
		{"rejected", `{"property":"Network#IGMPSupport","value":"v2"}`,
			&adapter.CommandError{Property: derive.PropIGMPSupport, Value: "v2", Err: nvx.ErrCommandRejected}, http.StatusBadGateway, ErrCodeRejected},
		{"login failed", `{"property":"Network#IGMPSupport","value":"v2"}`,
			&adapter.CommandError{Property: derive.PropIGMPSupport, Value: "v2", Err: fmt.Errorf("%w: status 403", nvx.ErrAuthFailed)}, http.StatusBadGateway, ErrCodeUnauthorized},
		{"object value", `{"property":"Network#IGMPSupport","value":{"v":2}}`, nil, http.StatusBadRequest, ErrCodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := readyEngine()
			engine.applyErr = tt.applyErr
			ts := newTestServer(t, engine, nil, nil)

			var raw json.RawMessage
			code := doJSON(t, http.MethodPost, ts.URL+"/api/v1/control", tt.body, &raw)
			if code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", code, tt.wantCode, raw)
			}
			if tt.wantErr != "" {
				var e Error
				_ = json.Unmarshal(raw, &e)
				if e.Code != tt.wantErr {
					t.Errorf("code = %q, want %q", e.Code, tt.wantErr)
				}
				return
			}
			var view derive.View
			if err := json.Unmarshal(raw, &view); err != nil {
				t.Fatalf("decode view: %v", err)
			}
			if view.Metrics[derive.PropIGMPSupport] != "v2" {
				t.Errorf("IGMPSupport = %q, want v2", view.Metrics[derive.PropIGMPSupport])
			}
		})
	}
}

func TestPoll(t *testing.T) {
	ts := newTestServer(t, readyEngine(), nil, nil)
	if code := doJSON(t, http.MethodPost, ts.URL+"/api/v1/poll", "", nil); code != http.StatusNotFound {
		t.Errorf("/poll without poller = %d, want 404", code)
	}

	p := &fakePoller{}
	ts = newTestServer(t, readyEngine(), p, nil)
	if code := doJSON(t, http.MethodPost, ts.URL+"/api/v1/poll", "", nil); code != http.StatusOK || p.Calls() != 1 {
		t.Errorf("/poll = %d, calls = %d", code, p.Calls())
	}

	p.mu.Lock()
	p.err = fmt.Errorf("%w: boom", adapter.ErrUnreachable)
	p.mu.Unlock()
	var e Error
	if code := doJSON(t, http.MethodPost, ts.URL+"/api/v1/poll", "", &e); code != http.StatusBadGateway || e.Code != ErrCodeUnreachable {
		t.Errorf("/poll failing = %d %+v", code, e)
	}
}

func TestPing(t *testing.T) {
	engine := readyEngine()
	ts := newTestServer(t, engine, nil, nil)

	var out map[string]any
	if code := doJSON(t, http.MethodGet, ts.URL+"/api/v1/ping", "", &out); code != http.StatusOK || out["latency_ms"] != float64(12) {
		t.Errorf("/ping = %d %v", code, out)
	}

	engine.mu.Lock()
	engine.pingErr = adapter.ErrPingDisabled
	engine.mu.Unlock()
	if code := doJSON(t, http.MethodGet, ts.URL+"/api/v1/ping", "", nil); code != http.StatusNotFound {
		t.Errorf("/ping disabled = %d, want 404", code)
	}
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t, readyEngine(), nil, nil)

	var out struct {
		DeviceID string            `json:"device_id"`
		LastPoll adapter.PollStats `json:"last_poll"`
		Filters  map[string]string `json:"filters"`
	}
	if code := doJSON(t, http.MethodGet, ts.URL+"/api/v1/status", "", &out); code != http.StatusOK {
		t.Fatalf("/status = %d", code)
	}
	if out.DeviceID != "nvx-test" || out.LastPoll.CycleID != "c1" || out.Filters[derive.PropInputNo] != "1" {
		t.Errorf("status = %+v", out)
	}
}

func TestStream(t *testing.T) {
	hub := NewHub()
	ts := newTestServer(t, readyEngine(), nil, hub)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d, want 1", hub.ClientCount())
	}

	hub.Broadcast("view", map[string]any{"device_id": "nvx-test"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg StreamMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if msg.Type != "view" {
		t.Errorf("Type = %q, want view", msg.Type)
	}
	payload, _ := msg.Payload.(map[string]any)
	if payload["device_id"] != "nvx-test" {
		t.Errorf("Payload = %v", msg.Payload)
	}
}

func TestControlValueTypes(t *testing.T) {
	engine := readyEngine()
	ts := newTestServer(t, engine, nil, nil)

	body := `[{"property":"Output#AnalogAudioVolume","value":-20},{"property":"AutoUpdate#AutoUpdate","value":true},{"property":"DiscoveryConfig#TTL","value":"15"}]`
	if code := doJSON(t, http.MethodPost, ts.URL+"/api/v1/control", body, nil); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}

	want := []adapter.ControlRequest{
		{Property: derive.PropAnalogAudioVolume, Value: "-20"},
		{Property: derive.PropAutoUpdate, Value: "true"},
		{Property: derive.PropTTL, Value: "15"},
	}
	engine.mu.Lock()
	defer engine.mu.Unlock()
	if len(engine.applied) != len(want) {
		t.Fatalf("applied = %+v", engine.applied)
	}
	for i := range want {
		if engine.applied[i] != want[i] {
			t.Errorf("applied[%d] = %+v, want %+v", i, engine.applied[i], want[i])
		}
	}
}

type fakeHistory struct {
	entries []*ledger.Entry
	gotType ledger.EventType
	gotFrom time.Time
	limit   int
}

func (h *fakeHistory) GetByType(t ledger.EventType, limit int) ([]*ledger.Entry, error) {
	h.gotType, h.limit = t, limit
	return h.entries, nil
}

func (h *fakeHistory) GetByTimeRange(start, _ time.Time, limit int) ([]*ledger.Entry, error) {
	h.gotFrom, h.limit = start, limit
	return h.entries, nil
}

func (h *fakeHistory) LastApplied(deviceID, property string) (*ledger.Entry, error) {
	for _, e := range h.entries {
		if e.DeviceID == deviceID && e.Property == property && e.EventType == ledger.EventControlApplied {
			return e, nil
		}
	}
	return nil, nil
}

func TestLedger(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	history := &fakeHistory{entries: []*ledger.Entry{
		{ID: 2, EventType: ledger.EventControlApplied, Timestamp: at, DeviceID: "nvx-test", Property: derive.PropIGMPSupport, Value: "v2"},
	}}
	ts := httptest.NewServer(NewServer("127.0.0.1", 0, readyEngine(), nil, nil).WithHistory(history).Handler())
	t.Cleanup(ts.Close)

	var entries []ledger.Entry
	if code := doJSON(t, http.MethodGet, ts.URL+"/api/v1/ledger?type=control_applied&limit=5", "", &entries); code != http.StatusOK {
		t.Fatalf("/ledger?type = %d", code)
	}
	if len(entries) != 1 || entries[0].Value != "v2" || history.gotType != ledger.EventControlApplied || history.limit != 5 {
		t.Errorf("entries = %+v, type = %q, limit = %d", entries, history.gotType, history.limit)
	}

	if code := doJSON(t, http.MethodGet, ts.URL+"/api/v1/ledger?since=2026-03-01T00:00:00Z", "", &entries); code != http.StatusOK {
		t.Fatalf("/ledger?since = %d", code)
	}
	if !history.gotFrom.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) || history.limit != defaultLedgerLimit {
		t.Errorf("since = %v, limit = %d", history.gotFrom, history.limit)
	}

	for _, q := range []string{"type=bogus", "limit=0", "since=yesterday"} {
		if code := doJSON(t, http.MethodGet, ts.URL+"/api/v1/ledger?"+q, "", nil); code != http.StatusBadRequest {
			t.Errorf("/ledger?%s = %d, want 400", q, code)
		}
	}

	var last ledger.Entry
	if code := doJSON(t, http.MethodGet, ts.URL+"/api/v1/ledger/last?property=Network%23IGMPSupport", "", &last); code != http.StatusOK || last.ID != 2 {
		t.Errorf("/ledger/last = %d %+v", code, last)
	}
	if code := doJSON(t, http.MethodGet, ts.URL+"/api/v1/ledger/last?property=Reboot", "", nil); code != http.StatusNotFound {
		t.Errorf("/ledger/last unknown = %d, want 404", code)
	}

	plain := newTestServer(t, readyEngine(), nil, nil)
	if code := doJSON(t, http.MethodGet, plain.URL+"/api/v1/ledger", "", nil); code != http.StatusNotFound {
		t.Errorf("/ledger without history = %d, want 404", code)
	}
}
