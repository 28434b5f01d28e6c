// Package personality models the AI teammate's persona: trait levels, the
// deterministic trait-to-behaviour mapping, and the prompt modifiers that
// condition both the turn-taking decision and response generation.
package personality

import (
	"encoding/json"
	"fmt"
	"maps"
	"sort"
)

// Communication style dials, in the order they are rendered.
const (
	StyleFormality  = "formality"
	StyleDirectness = "directness"
	StyleEnthusiasm = "enthusiasm"
	StyleRespect    = "respect"
	StyleHumor      = "humor"
)

// StyleDials lists every communication style dial in render order.
func StyleDials() []string {
	return []string{StyleFormality, StyleDirectness, StyleEnthusiasm, StyleRespect, StyleHumor}
}

// ResponseLength is the response_characteristics key for preferred length.
const ResponseLength = "response_length"

// Trait is either single-valued (Value plus free-text Description) or a
// composite of independently levelled sub-components.
type Trait struct {
	Value       TraitValue
	Description string
	Components  map[string]TraitValue
}

// Single builds a single-valued trait.
func Single(v TraitValue, description string) Trait {
	return Trait{Value: v, Description: description}
}

// Composite builds a trait from sub-component values.
func Composite(components map[string]TraitValue) Trait {
	return Trait{Components: maps.Clone(components)}
}

// IsComposite reports whether the trait has sub-components.
func (t Trait) IsComposite() bool { return len(t.Components) > 0 }

// LevelOf resolves the level of one sub-component. A single-valued trait
// answers with its own level for every component. Missing components are
// medium.
func (t Trait) LevelOf(component string) Level {
	if !t.IsComposite() {
		return ResolveLevel(t.Value)
	}
	if component == "" {
		return Medium
	}
	return ResolveLevel(t.Components[component])
}

func (t Trait) clone() Trait {
	t.Components = maps.Clone(t.Components)
	return t
}

// ParseTrait normalises a decoded trait. Objects carrying a "level" key are
// single-valued; any other object is read as sub-components. Bare values
// become single-valued traits.
func ParseTrait(raw any) Trait {
	m, ok := raw.(map[string]any)
	if !ok {
		return Single(ParseTraitValue(raw), "")
	}
	if lvl, ok := m["level"]; ok {
		desc, _ := m["description"].(string)
		return Single(ParseTraitValue(lvl), desc)
	}
	comps := make(map[string]TraitValue, len(m))
	for k, v := range m {
		comps[k] = ParseTraitValue(v)
	}
	return Trait{Components: comps}
}

// ParseTraits applies ParseTrait to every entry of a decoded trait map.
func ParseTraits(raw map[string]any) map[string]Trait {
	out := make(map[string]Trait, len(raw))
	for name, v := range raw {
		out[name] = ParseTrait(v)
	}
	return out
}

// MarshalJSON writes composites as {component: value} and single-valued
// traits as {"level": value, "description": text}.
func (t Trait) MarshalJSON() ([]byte, error) {
	if t.IsComposite() {
		return json.Marshal(t.Components)
	}
	single := struct {
		Level       TraitValue `json:"level"`
		Description string     `json:"description,omitempty"`
	}{t.Value, t.Description}
	return json.Marshal(single)
}

// UnmarshalJSON accepts every shape understood by ParseTrait.
func (t *Trait) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("personality: decode trait: %w", err)
	}
	*t = ParseTrait(raw)
	return nil
}

// Personality is the persona bound to a room.
type Personality struct {
	Name                    string             `json:"name"`
	Description             string             `json:"description"`
	Traits                  map[string]Trait   `json:"traits"`
	CommunicationStyle      map[string]float64 `json:"communication_style"`
	ResponseCharacteristics map[string]string  `json:"response_characteristics"`
}

// Default returns the stock "AI Teammate" persona.
func Default() *Personality {
	c := Categorical
	return &Personality{
		Name:        "AI Teammate",
		Description: "A helpful and professional AI teammate focused on clear communication and effective collaboration.",
		Traits: map[string]Trait{
			EmotionalStability: Composite(map[string]TraitValue{"adjustment": c(High), "self_esteem": c(High)}),
			Extraversion: Composite(map[string]TraitValue{
				"dominance": c(Medium), "affiliation": c(Medium),
				"social_perceptiveness": c(Medium), "expressivity": c(Medium),
			}),
			Openness:          Composite(map[string]TraitValue{"flexibility": c(Medium)}),
			Agreeableness:     Composite(map[string]TraitValue{"trust": c(High), "cooperation": c(High)}),
			Conscientiousness: Composite(map[string]TraitValue{"dependability": c(High), "achievement": c(High)}),
		},
		CommunicationStyle:      map[string]float64{},
		ResponseCharacteristics: map[string]string{ResponseLength: "medium"},
	}
}

// Clone returns a deep copy.
func (p *Personality) Clone() *Personality {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Traits = make(map[string]Trait, len(p.Traits))
	for k, t := range p.Traits {
		cp.Traits[k] = t.clone()
	}
	cp.CommunicationStyle = maps.Clone(p.CommunicationStyle)
	cp.ResponseCharacteristics = maps.Clone(p.ResponseCharacteristics)
	return &cp
}

// BehaviorFragments returns the behaviour sentences for this persona.
func (p *Personality) BehaviorFragments() []string {
	return BehaviorFragments(p.Traits)
}

// TraitNames returns the trait names in sorted order.
func (p *Personality) TraitNames() []string {
	names := make([]string, 0, len(p.Traits))
	for n := range p.Traits {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// personalityWire mirrors Personality with loosely typed fields so older
// stored encodings can be upgraded on load.
type personalityWire struct {
	Name                    string           `json:"name"`
	Description             string           `json:"description"`
	Traits                  map[string]Trait `json:"traits"`
	CommunicationStyle      json.RawMessage  `json:"communication_style"`
	ResponseCharacteristics map[string]any   `json:"response_characteristics"`
}

// UnmarshalJSON decodes a stored persona, upgrading a string-valued
// communication_style to the dial mapping and single-valued base traits to
// their sub-components.
func (p *Personality) UnmarshalJSON(data []byte) error {
	var w personalityWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("personality: decode: %w", err)
	}
	style, err := decodeCommunicationStyle(w.CommunicationStyle)
	if err != nil {
		return err
	}
	*p = Personality{
		Name:                    w.Name,
		Description:             w.Description,
		Traits:                  w.Traits,
		CommunicationStyle:      style,
		ResponseCharacteristics: stringifyValues(w.ResponseCharacteristics),
	}
	if p.Traits == nil {
		p.Traits = map[string]Trait{}
	}
	for name, t := range p.Traits {
		if comps := Components(name); len(comps) > 0 && !t.IsComposite() {
			p.Traits[name] = expandTrait(t, comps)
		}
	}
	return nil
}

// expandTrait spreads a single-valued trait over components. Base traits
// were stored this way before sub-components existed.
func expandTrait(t Trait, components []string) Trait {
	v := t.Value
	if !v.IsSet() {
		v = Categorical(Medium)
	}
	out := Trait{Components: make(map[string]TraitValue, len(components))}
	for _, c := range components {
		out.Components[c] = v
	}
	return out
}

func decodeCommunicationStyle(raw json.RawMessage) (map[string]float64, error) {
	out := map[string]float64{}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	var legacy string
	if err := json.Unmarshal(raw, &legacy); err == nil {
		return UpgradeLegacyStyle(legacy), nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("personality: decode communication_style: %w", err)
	}
	return NormalizeStyle(m), nil
}

func stringifyValues(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}
