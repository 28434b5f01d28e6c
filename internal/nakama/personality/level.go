package personality

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Level is the categorical strength of a trait.
type Level string

const (
	Low    Level = "low"
	Medium Level = "medium"
	High   Level = "high"
)

// Thresholds used to categorise scalar trait values.
const (
	lowCeiling    = 0.4
	mediumCeiling = 0.7
)

// ParseLevel recognises "low", "medium" and "high" (case-insensitive).
func ParseLevel(s string) (Level, bool) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case Low:
		return Low, true
	case Medium:
		return Medium, true
	case High:
		return High, true
	}
	return "", false
}

// ResolveScalar maps a value in [0,1] to a Level:
// ≤ 0.4 is low, (0.4, 0.7] is medium, above 0.7 is high.
func ResolveScalar(v float64) Level {
	switch {
	case v <= lowCeiling:
		return Low
	case v <= mediumCeiling:
		return Medium
	default:
		return High
	}
}

type valueKind uint8

const (
	kindUnset valueKind = iota
	kindCategorical
	kindScalar
)

// TraitValue is either Categorical(low|medium|high) or Scalar(0..1).
// The zero value is unset and resolves to medium.
type TraitValue struct {
	kind   valueKind
	level  Level
	scalar float64
}

// Categorical returns a categorical TraitValue. Unknown levels become medium.
func Categorical(l Level) TraitValue {
	if _, ok := ParseLevel(string(l)); !ok {
		l = Medium
	}
	return TraitValue{kind: kindCategorical, level: l}
}

// Scalar returns a numeric TraitValue clamped to [0,1].
func Scalar(v float64) TraitValue {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return TraitValue{kind: kindScalar, scalar: v}
}

// IsScalar reports whether v carries a numeric value.
func (v TraitValue) IsScalar() bool { return v.kind == kindScalar }

// IsSet reports whether v was assigned at all.
func (v TraitValue) IsSet() bool { return v.kind != kindUnset }

// Float returns the numeric value and true for scalar values.
func (v TraitValue) Float() (float64, bool) {
	if v.kind != kindScalar {
		return 0, false
	}
	return v.scalar, true
}

// Level resolves v to a category.
func (v TraitValue) Level() Level { return ResolveLevel(v) }

// Equal compares representation and value.
func (v TraitValue) Equal(o TraitValue) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case kindScalar:
		return v.scalar == o.scalar
	case kindCategorical:
		return v.level == o.level
	}
	return true
}

func (v TraitValue) String() string {
	switch v.kind {
	case kindScalar:
		return strconv.FormatFloat(v.scalar, 'f', -1, 64)
	case kindCategorical:
		return string(v.level)
	}
	return string(Medium)
}

// ResolveLevel maps any TraitValue to a Level. Categorical values pass
// through, scalars use the fixed thresholds and unset values are medium.
func ResolveLevel(v TraitValue) Level {
	switch v.kind {
	case kindScalar:
		return ResolveScalar(v.scalar)
	case kindCategorical:
		return v.level
	}
	return Medium
}

// ParseTraitValue is the single normalisation point for loosely typed trait
// input (decoded JSON, YAML or form values). It accepts:
//
//   - numbers: [0,1] as-is, (1,10] as a ten-point scale
//   - "low" / "medium" / "high", or a numeric string
//   - {"level_category": ...} and {"level": ...} objects
//
// Anything else yields Categorical(medium).
func ParseTraitValue(raw any) TraitValue {
	switch x := raw.(type) {
	case TraitValue:
		return x
	case Level:
		return Categorical(x)
	case float64:
		return scalarFromNumber(x)
	case float32:
		return scalarFromNumber(float64(x))
	case int:
		return scalarFromNumber(float64(x))
	case int64:
		return scalarFromNumber(float64(x))
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return scalarFromNumber(f)
		}
	case string:
		if l, ok := ParseLevel(x); ok {
			return Categorical(l)
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return scalarFromNumber(f)
		}
	case map[string]any:
		if lc, ok := x["level_category"]; ok {
			return ParseTraitValue(lc)
		}
		if l, ok := x["level"]; ok {
			return ParseTraitValue(l)
		}
	}
	return Categorical(Medium)
}

func scalarFromNumber(f float64) TraitValue {
	if f > 1 && f <= 10 {
		f /= 10
	}
	return Scalar(f)
}

// MarshalJSON encodes scalars as numbers and categories as strings.
func (v TraitValue) MarshalJSON() ([]byte, error) {
	if v.kind == kindScalar {
		return json.Marshal(v.scalar)
	}
	return json.Marshal(string(ResolveLevel(v)))
}

// UnmarshalJSON accepts every shape understood by ParseTraitValue.
func (v *TraitValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("personality: decode trait value: %w", err)
	}
	*v = ParseTraitValue(raw)
	return nil
}
