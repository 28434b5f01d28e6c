package personality

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// presetFile is the on-disk layout of a persona presets document:
//
//	personas:
//	  Analyst:
//	    description: Careful, data-driven teammate.
//	    traits:
//	      agreeableness: {trust: high, cooperation: medium}
//	    communication_style: {formality: 0.8}
//	    response_characteristics: {response_length: short}
type presetFile struct {
	Personas map[string]presetDoc `yaml:"personas"`
}

type presetDoc struct {
	Description             string            `yaml:"description"`
	Traits                  map[string]any    `yaml:"traits"`
	CommunicationStyle      any               `yaml:"communication_style"`
	ResponseCharacteristics map[string]string `yaml:"response_characteristics"`
}

// ParsePresets decodes a YAML presets document. Base traits missing from a
// preset are filled in at medium.
func ParsePresets(data []byte) (map[string]*Personality, error) {
	var f presetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("personality: parse presets: %w", err)
	}
	if len(f.Personas) == 0 {
		return nil, fmt.Errorf("personality: presets document has no personas")
	}

	out := make(map[string]*Personality, len(f.Personas))
	for name, doc := range f.Personas {
		desc := doc.Description
		if desc == "" {
			desc = "AI personality: " + name
		}
		p := &Personality{
			Name:                    name,
			Description:             desc,
			Traits:                  Standardize(ParseTraits(doc.Traits)),
			CommunicationStyle:      presetStyle(doc.CommunicationStyle),
			ResponseCharacteristics: map[string]string{ResponseLength: "medium"},
		}
		for k, v := range doc.ResponseCharacteristics {
			p.ResponseCharacteristics[k] = v
		}
		out[name] = p
	}
	return out, nil
}

// LoadPresetsFile reads and parses a presets file.
func LoadPresetsFile(path string) (map[string]*Personality, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("personality: read presets %s: %w", path, err)
	}
	return ParsePresets(data)
}

func presetStyle(raw any) map[string]float64 {
	switch x := raw.(type) {
	case string:
		return UpgradeLegacyStyle(x)
	case map[string]any:
		return NormalizeStyle(x)
	}
	return map[string]float64{}
}

// Standardize returns a copy of traits in which every base trait is present
// as a composite carrying all of its sub-components; missing ones are
// medium. A single-valued base trait is expanded onto its components.
func Standardize(traits map[string]Trait) map[string]Trait {
	out := make(map[string]Trait, len(traits)+len(BaseTraits()))
	for k, t := range traits {
		out[k] = t.clone()
	}
	for _, name := range BaseTraits() {
		t, ok := out[name]
		comps := make(map[string]TraitValue)
		for _, c := range Components(name) {
			switch {
			case ok && t.IsComposite():
				if v, has := t.Components[c]; has {
					comps[c] = v
					continue
				}
				comps[c] = Categorical(Medium)
			case ok && t.Value.IsSet():
				comps[c] = t.Value
			default:
				comps[c] = Categorical(Medium)
			}
		}
		out[name] = Trait{Components: comps}
	}
	return out
}
