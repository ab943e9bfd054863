package derive

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/nvxd/internal/nvx"
)

// strategy turns the backing document of a property into metrics and
// controls on the run.
type strategy interface {
	resolve(r *run, p *property, doc nvx.Document)
}

// selector is implemented by strategies whose property doubles as a filter
// key: they choose one element of a collection and publish it as a scope.
type selector interface {
	strategy
	selects()
}

// at locates a value either in the group document or, when scope is set,
// in the element a selector chose earlier in the same run.
type at struct {
	scope string
	path  []string
}

func path(p ...string) at { return at{path: p} }

func in(scope string, p ...string) at { return at{scope: scope, path: p} }

// base returns the root the path is evaluated against; false means the
// scope was never selected and the property must be skipped.
func (a at) base(r *run, doc nvx.Document) (nvx.Document, bool) {
	if a.scope == "" {
		return doc, true
	}
	v, ok := r.scopes[a.scope]
	return v, ok
}

func (a at) lookup(base nvx.Document) (nvx.Document, bool) {
	if len(a.path) == 0 {
		return base, base != nil
	}
	return nvx.Lookup(base, a.path...)
}

// text resolves the value to its display string, None if missing.
func (a at) text(r *run, doc nvx.Document) (string, bool) {
	base, ok := a.base(r, doc)
	if !ok {
		return "", false
	}
	v, ok := a.lookup(base)
	return scalar(v, ok), true
}

func scalar(v nvx.Document, ok bool) string {
	if !ok {
		return None
	}
	s, ok := nvx.Text(v)
	if !ok || strings.TrimSpace(s) == "" {
		return None
	}
	return s
}

func truthy(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	default:
		return false, false
	}
}

type field struct{ at }

func (s field) resolve(r *run, p *property, doc nvx.Document) {
	if v, ok := s.text(r, doc); ok {
		r.metric(p.name, v)
	}
}

type boolLabel struct {
	at
	yes, no string
}

func yesNo(a at) boolLabel { return boolLabel{at: a, yes: "Yes", no: "No"} }

func (s boolLabel) resolve(r *run, p *property, doc nvx.Document) {
	v, ok := s.text(r, doc)
	if !ok {
		return
	}
	if b, ok := truthy(v); ok && v != None {
		if b {
			v = s.yes
		} else {
			v = s.no
		}
	}
	r.metric(p.name, v)
}

// enumLabel maps a device code to its label. With dropdown set the label
// becomes editable; always keeps the dropdown even for unknown codes.
type enumLabel struct {
	at
	enum     *Enum
	dropdown bool
	always   bool
}

func (s enumLabel) resolve(r *run, p *property, doc nvx.Document) {
	code, ok := s.text(r, doc)
	if !ok {
		return
	}
	label, known := s.enum.Label(code)
	if !known {
		label = None
	}
	r.metric(p.name, label)
	if s.dropdown && (known || s.always) {
		r.control(Control{Name: p.name, Type: ControlDropdown, Value: label, Options: s.enum.Labels()})
	}
}

type switchCtl struct{ at }

func (s switchCtl) resolve(r *run, p *property, doc nvx.Document) {
	v, ok := s.text(r, doc)
	if !ok {
		return
	}
	b, known := truthy(v)
	if v == None || !known {
		r.metric(p.name, v)
		return
	}
	value := "0"
	if b {
		value = "1"
	}
	r.metric(p.name, value)
	r.control(Control{Name: p.name, Type: ControlSwitch, Value: value, LabelOff: "Off", LabelOn: "On"})
}

type staticDropdown struct {
	at
	options []string
}

func (s staticDropdown) resolve(r *run, p *property, doc nvx.Document) {
	v, ok := s.text(r, doc)
	if !ok {
		return
	}
	r.metric(p.name, v)
	if v != None {
		r.control(Control{Name: p.name, Type: ControlDropdown, Value: v, Options: append([]string(nil), s.options...)})
	}
}

// slider renders a numeric value as a ranged slider and mirrors the raw
// value into a read-only companion metric.
type slider struct {
	at
	min, max  float64
	companion string
}

func (s slider) resolve(r *run, p *property, doc nvx.Document) {
	v, ok := s.text(r, doc)
	if !ok {
		return
	}
	r.metric(p.name, v)
	if _, err := strconv.ParseFloat(v, 64); err != nil {
		return
	}
	r.control(Control{Name: p.name, Type: ControlSlider, Value: v, RangeStart: s.min, RangeEnd: s.max})
	if s.companion != "" {
		r.metric(s.companion, v)
	}
}

type numeric struct{ at }

func (s numeric) resolve(r *run, p *property, doc nvx.Document) {
	v, ok := s.text(r, doc)
	if !ok {
		return
	}
	r.metric(p.name, v)
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		r.control(Control{Name: p.name, Type: ControlNumeric, Value: v})
	}
}

// clockText renders an RFC 3339 timestamp with layout as an editable text.
type clockText struct {
	at
	layout string
}

func (s clockText) resolve(r *run, p *property, doc nvx.Document) {
	v, ok := s.text(r, doc)
	if !ok {
		return
	}
	if v == None {
		r.metric(p.name, None)
		return
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		log.Debug().Err(err).Str("property", p.name).Msg("Unparseable device time")
		r.metric(p.name, None)
		return
	}
	display := t.Format(s.layout)
	r.metric(p.name, display)
	r.control(Control{Name: p.name, Type: ControlText, Value: display})
}

type button struct {
	label, pressed string
	grace          time.Duration
}

func (s button) resolve(r *run, p *property, _ nvx.Document) {
	r.metric(p.name, "0")
	r.control(Control{
		Name:         p.name,
		Type:         ControlButton,
		Value:        "0",
		Label:        s.label,
		LabelPressed: s.pressed,
		GracePeriod:  s.grace.Milliseconds(),
	})
}

// modeSelect shows the device role, editable only on models that can switch.
type modeSelect struct{}

func (modeSelect) resolve(r *run, p *property, _ nvx.Document) {
	if r.mode == nvx.ModeUnknown {
		r.metric(p.name, None)
		return
	}
	value := string(r.mode)
	r.metric(p.name, value)
	if nvx.SwitchableModel(r.currentModel()) {
		opts := make([]string, len(nvx.Modes))
		for i, m := range nvx.Modes {
			opts[i] = string(m)
		}
		r.control(Control{Name: p.name, Type: ControlDropdown, Value: value, Options: opts})
	}
}

// ntpServers emits one metric per configured NTP server, suffixed with the
// server key.
type ntpServers struct{}

func (ntpServers) resolve(r *run, p *property, doc nvx.Document) {
	keys, ok := nvx.Lookup(doc, "Ntp", "ServersCurrentKeyList")
	if !ok {
		return
	}
	list, _ := keys.([]any)
	for _, k := range list {
		key, ok := nvx.Text(k)
		if !ok || key == "" {
			continue
		}
		v, ok := nvx.Lookup(doc, "Ntp", "Servers", key, "Address")
		r.metric(p.name+key, scalar(v, ok))
	}
}

// indexed selects one element of an array by its 1-based position. The
// element is published as root, and its sub-document at elem as scope.
type indexed struct {
	array at
	elem  []string
	root  string
	scope string
}

func (indexed) selects() {}

func (s indexed) resolve(r *run, p *property, doc nvx.Document) {
	base, ok := s.array.base(r, doc)
	if !ok {
		return
	}
	v, _ := s.array.lookup(base)
	arr, _ := v.([]any)
	if len(arr) == 0 {
		return
	}

	idx := 0
	if stored, ok := r.filters[p.name]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(stored))
		if err == nil && n >= 1 && n <= len(arr) {
			idx = n - 1
		} else {
			r.correct(p.name, "1")
		}
	}

	elem := arr[idx]
	if s.root != "" {
		r.scopes[s.root] = elem
	}
	if inner, ok := nvx.Lookup(elem, s.elem...); ok {
		r.scopes[s.scope] = inner
	}

	options := make([]string, len(arr))
	for i := range arr {
		options[i] = strconv.Itoa(i + 1)
	}
	value := options[idx]
	r.metric(p.name, value)
	r.control(Control{Name: p.name, Type: ControlDropdown, Value: value, Options: options})
}

// indexedByField selects an array element by the value of its key field.
// When sub is set, the element's member named after the selected key is
// published too (adapters nest their settings under the schema name).
type indexedByField struct {
	array at
	key   string
	scope string
	sub   string
}

func (indexedByField) selects() {}

func (s indexedByField) resolve(r *run, p *property, doc nvx.Document) {
	base, ok := s.array.base(r, doc)
	if !ok {
		return
	}
	v, _ := s.array.lookup(base)
	arr, _ := v.([]any)
	if len(arr) == 0 {
		return
	}

	stored, has := r.filters[p.name]
	keys := make([]string, len(arr))
	chosen := -1
	for i, e := range arr {
		k, ok := nvx.Lookup(e, s.key)
		keys[i] = scalar(k, ok)
		if has && chosen < 0 && keys[i] == stored {
			chosen = i
		}
	}
	if chosen < 0 {
		chosen = 0
		if has {
			r.correct(p.name, keys[0])
		}
	}

	elem := arr[chosen]
	r.scopes[s.scope] = elem
	if s.sub != "" {
		if inner, ok := nvx.Lookup(elem, keys[chosen]); ok {
			r.scopes[s.sub] = inner
		}
	}

	r.metric(p.name, keys[chosen])
	r.control(Control{Name: p.name, Type: ControlDropdown, Value: keys[chosen], Options: keys})
}

// keyed selects one member of an object by key. Keys are offered in
// lexicographic order and the first one is the default.
type keyed struct {
	object at
	scope  string
}

func (keyed) selects() {}

func (s keyed) resolve(r *run, p *property, doc nvx.Document) {
	base, ok := s.object.base(r, doc)
	if !ok {
		return
	}
	v, _ := s.object.lookup(base)
	m, _ := v.(map[string]any)
	if len(m) == 0 {
		return
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	key := keys[0]
	if stored, ok := r.filters[p.name]; ok {
		if _, found := m[stored]; found {
			key = stored
		} else {
			r.correct(p.name, key)
		}
	}

	r.scopes[s.scope] = m[key]
	r.metric(p.name, key)
	r.control(Control{Name: p.name, Type: ControlDropdown, Value: key, Options: keys})
}
