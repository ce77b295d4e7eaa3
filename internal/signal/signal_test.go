package signal

import "testing"

func TestSignal_Number(t *testing.T) {
	sig := Signal{Data: map[string]any{
		"f":    0.75,
		"i":    3,
		"b":    true,
		"text": "hot",
	}}

	tests := []struct {
		field  string
		want   float64
		wantOK bool
	}{
		{"f", 0.75, true},
		{"i", 3, true},
		{"b", 1, true},
		{"text", 0, false},
		{"missing", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			got, ok := sig.Number(tt.field)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Number(%q) = %v, %v; want %v, %v", tt.field, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestCloneData_Independent(t *testing.T) {
	orig := map[string]any{
		"nested": map[string]any{"v": 1.0},
		"list":   []any{1.0, 2.0},
	}
	cpy := CloneData(orig)
	cpy["nested"].(map[string]any)["v"] = 2.0
	cpy["list"].([]any)[0] = 9.0

	if orig["nested"].(map[string]any)["v"] != 1.0 {
		t.Error("nested map shared between copies")
	}
	if orig["list"].([]any)[0] != 1.0 {
		t.Error("slice shared between copies")
	}
}

func TestPriority_Text(t *testing.T) {
	var p Priority
	if err := p.UnmarshalText([]byte("critical")); err != nil || p != PriorityCritical {
		t.Errorf("UnmarshalText(critical) = %v, %v", p, err)
	}
	if err := p.UnmarshalText([]byte("5")); err != nil || p != PrioritySystem {
		t.Errorf("UnmarshalText(5) = %v, %v", p, err)
	}
	if err := p.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("UnmarshalText(bogus) expected error")
	}
	b, _ := PriorityHigh.MarshalText()
	if string(b) != "HIGH" {
		t.Errorf("MarshalText = %s", b)
	}
}

func TestOperator_Compare(t *testing.T) {
	tests := []struct {
		op   Operator
		a, b float64
		want bool
	}{
		{OpGreater, 2, 1, true},
		{OpGreater, 1, 1, false},
		{OpGreaterEqual, 1, 1, true},
		{OpLess, 0.5, 1, true},
		{OpLessEqual, 1.5, 1, false},
		{OpEqual, 0.1 + 0.2, 0.3, true},
		{OpNotEqual, 1, 2, true},
	}
	for _, tt := range tests {
		got, err := tt.op.Compare(tt.a, tt.b)
		if err != nil {
			t.Fatalf("%v %s %v: unexpected error %v", tt.a, tt.op, tt.b, err)
		}
		if got != tt.want {
			t.Errorf("%v %s %v = %v, want %v", tt.a, tt.op, tt.b, got, tt.want)
		}
	}

	if _, err := Operator("~").Compare(1, 1); err == nil {
		t.Error("unknown operator: expected error")
	}
}
