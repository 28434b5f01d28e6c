package personality

import "strings"

// Dial values assigned when upgrading a descriptive style string.
const (
	styleNeutral = 0.5
	styleStrong  = 0.8
	styleWeak    = 0.3
)

// levelDial converts categorical style input to a dial value.
var levelDial = map[Level]float64{Low: 0.3, Medium: 0.6, High: 0.9}

var styleKeywords = map[string][]string{
	StyleFormality:  {"formal", "professional", "polite"},
	StyleDirectness: {"direct", "concise", "straightforward", "blunt", "to the point"},
	StyleEnthusiasm: {"enthusiastic", "energetic", "excited", "passionate", "upbeat"},
	StyleRespect:    {"respectful", "considerate", "courteous"},
	StyleHumor:      {"humor", "humour", "funny", "witty", "playful", "jok"},
}

// UpgradeLegacyStyle converts a free-text communication style such as
// "professional and direct, with a touch of humor" into dial values. Every
// dial starts neutral, dials whose keywords appear are raised, and
// "casual"/"informal" lower formality.
func UpgradeLegacyStyle(desc string) map[string]float64 {
	lower := strings.ToLower(desc)
	out := make(map[string]float64, len(styleKeywords))
	for _, dial := range StyleDials() {
		out[dial] = styleNeutral
		for _, kw := range styleKeywords[dial] {
			if strings.Contains(lower, kw) {
				out[dial] = styleStrong
				break
			}
		}
	}
	if strings.Contains(lower, "informal") || strings.Contains(lower, "casual") {
		out[StyleFormality] = styleWeak
	}
	return out
}

// NormalizeStyle converts decoded dial values (numbers, level names or
// numeric strings) to [0,1] floats.
func NormalizeStyle(raw map[string]any) map[string]float64 {
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		tv := ParseTraitValue(v)
		if f, ok := tv.Float(); ok {
			out[k] = f
			continue
		}
		out[k] = levelDial[tv.Level()]
	}
	return out
}

var styleModifierLines = map[string]string{
	StyleFormality:  "- Engage in professional and clear communication",
	StyleDirectness: "- Share thoughts directly and concisely",
	StyleEnthusiasm: "- Express genuine interest in team discussions",
	StyleRespect:    "- Show respect for all team members' perspectives",
	StyleHumor:      "- Share appropriate light moments with the team",
}

// styleThreshold is the dial value above which a style line is emitted.
const styleThreshold = 0.7

func styleLines(style map[string]float64) []string {
	var out []string
	for _, dial := range StyleDials() {
		if style[dial] > styleThreshold {
			out = append(out, styleModifierLines[dial])
		}
	}
	return out
}
