package personality

import (
	"encoding/json"
	"testing"
)

func TestResolveLevel_Thresholds(t *testing.T) {
	tests := []struct {
		name string
		v    TraitValue
		want Level
	}{
		{"zero", Scalar(0), Low},
		{"at low ceiling", Scalar(0.4), Low},
		{"just above low", Scalar(0.41), Medium},
		{"at medium ceiling", Scalar(0.7), Medium},
		{"just above medium", Scalar(0.71), High},
		{"one", Scalar(1), High},
		{"categorical low", Categorical(Low), Low},
		{"categorical high", Categorical(High), High},
		{"unknown category", Categorical("extreme"), Medium},
		{"unset", TraitValue{}, Medium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveLevel(tt.v); got != tt.want {
				t.Errorf("ResolveLevel(%v) = %q, want %q", tt.v, got, tt.want)
			}
		})
	}
}

func TestScalar_Clamps(t *testing.T) {
	if f, _ := Scalar(-0.5).Float(); f != 0 {
		t.Errorf("Scalar(-0.5) = %v, want 0", f)
	}
	if f, _ := Scalar(3).Float(); f != 1 {
		t.Errorf("Scalar(3) = %v, want 1", f)
	}
}

func TestParseTraitValue(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want TraitValue
	}{
		{"float", 0.65, Scalar(0.65)},
		{"ten point scale", 8.0, Scalar(0.8)},
		{"int", 1, Scalar(1)},
		{"json number", json.Number("0.2"), Scalar(0.2)},
		{"level string", "HIGH", Categorical(High)},
		{"numeric string", "0.3", Scalar(0.3)},
		{"level_category object", map[string]any{"level_category": "low"}, Categorical(Low)},
		{"level object", map[string]any{"level": 0.9}, Scalar(0.9)},
		{"garbage", []int{1}, Categorical(Medium)},
		{"unknown string", "sometimes", Categorical(Medium)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTraitValue(tt.raw)
			if !got.Equal(tt.want) {
				t.Errorf("ParseTraitValue(%v) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestTraitValue_JSON(t *testing.T) {
	data, err := json.Marshal(map[string]TraitValue{"a": Scalar(0.25), "b": Categorical(Low)})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"a":0.25,"b":"low"}` {
		t.Errorf("Marshal = %s", data)
	}

	var back map[string]TraitValue
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back["a"].Equal(Scalar(0.25)) || !back["b"].Equal(Categorical(Low)) {
		t.Errorf("round trip = %v", back)
	}
}
