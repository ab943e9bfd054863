package derive

// None is the value of a property whose raw field is missing or empty.
const None = "None"

// ControlType is the kind of UI element a control descriptor renders as.
type ControlType string

const (
	ControlSwitch   ControlType = "Switch"
	ControlDropdown ControlType = "DropDown"
	ControlSlider   ControlType = "Slider"
	ControlText     ControlType = "Text"
	ControlNumeric  ControlType = "Numeric"
	ControlButton   ControlType = "Button"
)

// Control describes an editable property. The descriptor carries no
// timestamps so that deriving the same input twice is identical.
type Control struct {
	Name  string      `json:"name"`
	Type  ControlType `json:"type"`
	Value string      `json:"value"`

	// DropDown
	Options []string `json:"options,omitempty"`

	// Switch
	LabelOff string `json:"label_off,omitempty"`
	LabelOn  string `json:"label_on,omitempty"`

	// Slider
	RangeStart float64 `json:"range_start,omitempty"`
	RangeEnd   float64 `json:"range_end,omitempty"`

	// Button
	Label        string `json:"label,omitempty"`
	LabelPressed string `json:"label_pressed,omitempty"`
	GracePeriod  int64  `json:"grace_period_ms,omitempty"`
}

func (c Control) clone() Control {
	if c.Options != nil {
		c.Options = append([]string(nil), c.Options...)
	}
	return c
}

// View is the flat list of derived metrics plus the control descriptors.
type View struct {
	Metrics  map[string]string `json:"metrics"`
	Controls []Control         `json:"controls"`
}

// NewView returns an empty view
func NewView() View {
	return View{Metrics: make(map[string]string), Controls: []Control{}}
}

// Clone returns a deep copy of v
func (v View) Clone() View {
	out := View{
		Metrics:  make(map[string]string, len(v.Metrics)),
		Controls: make([]Control, len(v.Controls)),
	}
	for k, val := range v.Metrics {
		out.Metrics[k] = val
	}
	for i, c := range v.Controls {
		out.Controls[i] = c.clone()
	}
	return out
}

// Control returns the descriptor named name
func (v View) Control(name string) (Control, bool) {
	for _, c := range v.Controls {
		if c.Name == name {
			return c, true
		}
	}
	return Control{}, false
}

// SetControl inserts c, replacing any descriptor with the same name.
func (v *View) SetControl(c Control) {
	for i := range v.Controls {
		if v.Controls[i].Name == c.Name {
			v.Controls[i] = c
			return
		}
	}
	v.Controls = append(v.Controls, c)
}

// SetValue updates the metric name and the value of its control, if any.
// A metric the view does not carry is left absent and false is returned.
func (v *View) SetValue(name, value string) bool {
	if _, ok := v.Metrics[name]; !ok {
		return false
	}
	v.Metrics[name] = value
	for i := range v.Controls {
		if v.Controls[i].Name == name {
			v.Controls[i].Value = value
			break
		}
	}
	return true
}
