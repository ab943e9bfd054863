package derive

import "testing"

func TestSetValue(t *testing.T) {
	view := NewView()
	view.Metrics[PropTTL] = "5"
	view.SetControl(Control{Name: PropTTL, Type: ControlNumeric, Value: "5"})

	if !view.SetValue(PropTTL, "10") {
		t.Fatal("SetValue() on present metric = false")
	}
	if view.Metrics[PropTTL] != "10" {
		t.Errorf("metric = %q, want 10", view.Metrics[PropTTL])
	}
	if c, _ := view.Control(PropTTL); c.Value != "10" {
		t.Errorf("control value = %q, want 10", c.Value)
	}

	if view.SetValue(PropAnalogAudioCurrent, "-20") {
		t.Error("SetValue() on absent metric = true")
	}
	if _, ok := view.Metrics[PropAnalogAudioCurrent]; ok {
		t.Error("SetValue() created an absent metric")
	}

	var empty View
	if empty.SetValue(PropTTL, "1") || empty.Metrics != nil {
		t.Error("SetValue() on zero view created metrics")
	}
}
