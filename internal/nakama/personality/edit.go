package personality

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidEdits is returned by DecodeEdits when the payload does not match
// the edits schema.
var ErrInvalidEdits = errors.New("personality: invalid edits")

// singleValueKey addresses the value of a single-valued trait in Edits.
const singleValueKey = "level"

// Edits is a partial update. Traits are addressed per sub-component; for a
// single-valued trait use the "level" key.
type Edits struct {
	Name                    *string                          `json:"name,omitempty"`
	Description             *string                          `json:"description,omitempty"`
	Traits                  map[string]map[string]TraitValue `json:"traits,omitempty"`
	CommunicationStyle      map[string]float64               `json:"communication_style,omitempty"`
	ResponseCharacteristics map[string]string                `json:"response_characteristics,omitempty"`
}

// SetComponent records a sub-component edit.
func (e *Edits) SetComponent(trait, component string, v TraitValue) {
	if e.Traits == nil {
		e.Traits = make(map[string]map[string]TraitValue)
	}
	if e.Traits[trait] == nil {
		e.Traits[trait] = make(map[string]TraitValue)
	}
	e.Traits[trait][component] = v
}

// Empty reports whether the edits change nothing.
func (e Edits) Empty() bool {
	return e.Name == nil && e.Description == nil && len(e.Traits) == 0 &&
		len(e.CommunicationStyle) == 0 && len(e.ResponseCharacteristics) == 0
}

// Apply merges e into p one sub-component at a time and reports whether any
// trait value actually changed. Name and description are only touched when
// present in e.
func (p *Personality) Apply(e Edits) (traitsChanged bool) {
	if p.Traits == nil {
		p.Traits = make(map[string]Trait)
	}
	for name, comps := range e.Traits {
		table := Components(name)
		existing, ok := p.Traits[name]
		if ok && !existing.IsComposite() && len(table) > 0 {
			existing = expandTrait(existing, table)
		}
		var single bool
		switch {
		case ok:
			single = !existing.IsComposite()
		case len(table) == 0:
			_, hasLevel := comps[singleValueKey]
			single = hasLevel && len(comps) == 1
		}
		if single {
			v, has := comps[singleValueKey]
			if !has {
				continue
			}
			if !ok || !existing.Value.Equal(v) {
				existing.Value = v
				p.Traits[name] = existing
				traitsChanged = true
			}
			continue
		}
		existing = existing.clone()
		if existing.Components == nil {
			existing.Components = make(map[string]TraitValue, len(comps))
		}
		for comp, v := range comps {
			targets := []string{comp}
			if comp == singleValueKey {
				targets = spreadTargets(existing, table)
			}
			for _, c := range targets {
				if cur, has := existing.Components[c]; has && cur.Equal(v) {
					continue
				}
				existing.Components[c] = v
				traitsChanged = true
			}
		}
		p.Traits[name] = existing
	}

	if len(e.CommunicationStyle) > 0 && p.CommunicationStyle == nil {
		p.CommunicationStyle = make(map[string]float64, len(e.CommunicationStyle))
	}
	for k, v := range e.CommunicationStyle {
		p.CommunicationStyle[k] = v
	}
	if len(e.ResponseCharacteristics) > 0 && p.ResponseCharacteristics == nil {
		p.ResponseCharacteristics = make(map[string]string, len(e.ResponseCharacteristics))
	}
	for k, v := range e.ResponseCharacteristics {
		p.ResponseCharacteristics[k] = v
	}

	if e.Name != nil {
		p.Name = *e.Name
	}
	if e.Description != nil {
		p.Description = *e.Description
	}
	return traitsChanged
}

// spreadTargets lists the components a whole-trait "level" edit applies to.
func spreadTargets(t Trait, table []string) []string {
	if len(table) > 0 {
		return table
	}
	if len(t.Components) == 0 {
		return []string{singleValueKey}
	}
	out := make([]string, 0, len(t.Components))
	for c := range t.Components {
		out = append(out, c)
	}
	return out
}

// FromForm builds Edits from flat form fields: trait_<trait> sets every
// sub-component of a trait, trait_<trait>_<component> sets one, and
// response_length, name and description are copied through. Sub-component
// fields win over whole-trait fields.
func FromForm(form map[string]string) Edits {
	var e Edits
	for _, trait := range append(BaseTraits(), Proactivity) {
		v, ok := form["trait_"+trait]
		if !ok {
			continue
		}
		comps := Components(trait)
		if len(comps) == 0 {
			e.SetComponent(trait, singleValueKey, ParseTraitValue(v))
			continue
		}
		for _, c := range comps {
			e.SetComponent(trait, c, ParseTraitValue(v))
		}
	}
	for _, trait := range BaseTraits() {
		for _, c := range Components(trait) {
			if v, ok := form["trait_"+trait+"_"+c]; ok {
				e.SetComponent(trait, c, ParseTraitValue(v))
			}
		}
	}
	if v, ok := form[ResponseLength]; ok {
		e.ResponseCharacteristics = map[string]string{ResponseLength: v}
	}
	if v, ok := form["name"]; ok && v != "" {
		e.Name = &v
	}
	if v, ok := form["description"]; ok && v != "" {
		e.Description = &v
	}
	return e
}

//go:embed schema/edits.schema.json
var editsSchemaJSON string

var editsSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.CompileString("edits.schema.json", editsSchemaJSON)
})

// DecodeEdits validates a JSON edits payload against the embedded schema
// and decodes it.
func DecodeEdits(data []byte) (Edits, error) {
	schema, err := editsSchema()
	if err != nil {
		return Edits{}, fmt.Errorf("personality: compile edits schema: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Edits{}, fmt.Errorf("%w: %v", ErrInvalidEdits, err)
	}
	if err := schema.Validate(doc); err != nil {
		return Edits{}, fmt.Errorf("%w: %v", ErrInvalidEdits, err)
	}

	var e Edits
	if err := json.Unmarshal(data, &e); err != nil {
		return Edits{}, fmt.Errorf("%w: %v", ErrInvalidEdits, err)
	}
	return e, nil
}
