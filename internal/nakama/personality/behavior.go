package personality

// Trait names known to the behaviour table.
const (
	EmotionalStability = "emotional_stability"
	Extraversion       = "extraversion"
	Openness           = "openness"
	Agreeableness      = "agreeableness"
	Conscientiousness  = "conscientiousness"
	Proactivity        = "proactivity"
)

// behavior is one row of the behaviour table. An empty component marks a
// single-valued trait.
type behavior struct {
	trait     string
	component string
	low       string
	medium    string
	high      string
}

func (b behavior) text(l Level) string {
	switch l {
	case Low:
		return b.low
	case High:
		return b.high
	default:
		return b.medium
	}
}

// behaviorTable is iterated in order, which keeps fragment output stable.
var behaviorTable = []behavior{
	{EmotionalStability, "adjustment",
		"Display anxious, uncertain behaviors.",
		"Remain calm, showing moderate confidence.",
		"Exhibit poise and resilience, offering reassurance in stressful situations."},
	{EmotionalStability, "self_esteem",
		"Show self-doubt, hesitancy in suggestions.",
		"Display a balanced sense of confidence.",
		"Exude confidence in decisions and promote self-assured actions."},
	{Extraversion, "dominance",
		"Adopt a reserved, passive role in discussions.",
		"Engage actively but not overpoweringly.",
		"Take charge, offer assertive guidance, and direct team actions."},
	{Extraversion, "affiliation",
		"Minimize social interactions, focus on task content.",
		"Engage in friendly yet task-oriented dialogue.",
		"Foster a sociable atmosphere, actively seek and offer support."},
	{Extraversion, "social_perceptiveness",
		"Overlook social cues, respond mainly to task demands.",
		"Recognize and address basic social signals.",
		"Keenly attune to others' emotions and needs, enhancing cohesion."},
	{Extraversion, "expressivity",
		"Use minimalistic, formal language.",
		"Communicate with balanced expressiveness.",
		"Employ enthusiastic and vivid language to convey ideas effectively."},
	{Openness, "flexibility",
		"Adhere strictly to established plans.",
		"Suggest alternative approaches when appropriate.",
		"Frequently propose innovative solutions and adapt strategies flexibly."},
	{Agreeableness, "trust",
		"Withhold information, verify others' inputs cautiously.",
		"Share information with some selectivity.",
		"Be open and transparent, fostering a trusting environment."},
	{Agreeableness, "cooperation",
		"Prioritize individual task efficiency.",
		"Collaborate with moderate willingness.",
		"Actively support others, seek consensus, and prioritize group goals."},
	{Conscientiousness, "dependability",
		"Display inconsistent behavior, overlook details.",
		"Provide reliable follow-up and task tracking.",
		"Ensure meticulous task management and consistency in actions."},
	{Conscientiousness, "achievement",
		"Avoid taking initiative, show limited goal orientation.",
		"Set clear objectives, encourage goal pursuit.",
		"Drive team toward excellence, offering constructive feedback."},
	{Proactivity, "",
		"Keep contributions minimal and reactive, waiting for explicit questions before offering information.",
		"Balance reactive and proactive contributions, elaborating when it adds clear value.",
		"Take initiative in moving discussions forward and proactively offer relevant insights."},
}

// Components returns the sub-component names of a base trait in table order.
// Single-valued and unknown traits return nil.
func Components(trait string) []string {
	var out []string
	for _, b := range behaviorTable {
		if b.trait == trait && b.component != "" {
			out = append(out, b.component)
		}
	}
	return out
}

// BaseTraits lists the composite traits of the behaviour table in order.
func BaseTraits() []string {
	return []string{EmotionalStability, Extraversion, Openness, Agreeableness, Conscientiousness}
}

// BehaviorFragments returns one behaviour sentence per table row whose trait
// is present in traits. A missing sub-component of a present trait resolves
// to medium. Traits outside the table contribute nothing.
func BehaviorFragments(traits map[string]Trait) []string {
	var out []string
	for _, b := range behaviorTable {
		t, ok := traits[b.trait]
		if !ok {
			continue
		}
		out = append(out, b.text(t.LevelOf(b.component)))
	}
	return out
}

// BehaviorLevels is the level-resolved view of traits used when describing a
// persona to the identity generator: trait → component → level. Single-valued
// traits use the empty component key.
func BehaviorLevels(traits map[string]Trait) map[string]map[string]Level {
	out := make(map[string]map[string]Level)
	for _, b := range behaviorTable {
		t, ok := traits[b.trait]
		if !ok {
			continue
		}
		if out[b.trait] == nil {
			out[b.trait] = make(map[string]Level)
		}
		out[b.trait][b.component] = t.LevelOf(b.component)
	}
	return out
}
