package personality

import (
	"math"
	"math/rand/v2"
)

// Ranges used by Randomize.
const (
	componentMin = 0.3
	componentMax = 0.9
	respectMin   = 0.6
	respectMax   = 0.9
	humorMin     = 0.2
	humorMax     = 0.7
)

var responseLengths = []string{"short", "medium", "long"}

// Randomize draws every base-trait sub-component uniformly from [0.3, 0.9],
// every communication style dial from [0.3, 0.9] except respect [0.6, 0.9]
// and humor [0.2, 0.7], and a random response length. A proactivity trait,
// when present, is redrawn as well. Identity is not touched.
func (p *Personality) Randomize(r *rand.Rand) {
	traits := make(map[string]Trait, len(BaseTraits())+1)
	for _, name := range BaseTraits() {
		comps := make(map[string]TraitValue)
		for _, c := range Components(name) {
			comps[c] = Scalar(uniform(r, componentMin, componentMax))
		}
		traits[name] = Trait{Components: comps}
	}
	if t, ok := p.Traits[Proactivity]; ok {
		traits[Proactivity] = Single(Scalar(uniform(r, componentMin, componentMax)), t.Description)
	}
	for name, t := range p.Traits {
		if _, ok := traits[name]; !ok {
			traits[name] = t.clone()
		}
	}
	p.Traits = traits

	style := make(map[string]float64, len(StyleDials()))
	for _, dial := range StyleDials() {
		lo, hi := componentMin, componentMax
		switch dial {
		case StyleRespect:
			lo, hi = respectMin, respectMax
		case StyleHumor:
			lo, hi = humorMin, humorMax
		}
		style[dial] = uniform(r, lo, hi)
	}
	p.CommunicationStyle = style

	if p.ResponseCharacteristics == nil {
		p.ResponseCharacteristics = make(map[string]string, 1)
	}
	p.ResponseCharacteristics[ResponseLength] = responseLengths[r.IntN(len(responseLengths))]
}

// uniform draws from [lo, hi] rounded to two decimals.
func uniform(r *rand.Rand, lo, hi float64) float64 {
	v := lo + r.Float64()*(hi-lo)
	v = math.Round(v*100) / 100
	return math.Min(math.Max(v, lo), hi)
}
