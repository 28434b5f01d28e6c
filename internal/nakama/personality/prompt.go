package personality

import "strings"

var teamGuidelines = []string{
	"- Participate as an equal team member, not a helper or assistant",
	"- Share thoughts and ideas when relevant to the discussion",
	"- Support other team members' initiatives",
	"- Ask questions to better understand team perspectives",
}

const closingLine = "Contribute naturally as part of the team."

// PromptModifiers renders the persona block shared by the turn-taking
// decision prompt and the response prompt. The output is a pure function of
// the persona so both call sites see identical text.
func (p *Personality) PromptModifiers() string {
	var b strings.Builder
	b.WriteString("You are ")
	b.WriteString(p.Name)
	b.WriteString(": ")
	b.WriteString(p.Description)
	b.WriteString("\n\nTeam Member Guidelines:\n")
	for _, l := range teamGuidelines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteString("\nWorking Style:\n")
	for _, l := range styleLines(p.CommunicationStyle) {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	for _, f := range p.BehaviorFragments() {
		b.WriteString("- ")
		b.WriteString(f)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(closingLine)
	return b.String()
}

// Initiative is the response style derived from the proactivity trait.
type Initiative string

const (
	Reactive  Initiative = "reactive"
	Balanced  Initiative = "balanced"
	Proactive Initiative = "proactive"
)

// Initiative maps the proactivity trait onto a response style. Scalars at or
// below 0.3 are reactive, up to 0.7 balanced, above that proactive. A missing
// trait is balanced.
func (p *Personality) Initiative() Initiative {
	t, ok := p.Traits[Proactivity]
	if !ok || t.IsComposite() {
		return Balanced
	}
	if f, ok := t.Value.Float(); ok {
		switch {
		case f <= 0.3:
			return Reactive
		case f <= 0.7:
			return Balanced
		default:
			return Proactive
		}
	}
	switch ResolveLevel(t.Value) {
	case Low:
		return Reactive
	case High:
		return Proactive
	default:
		return Balanced
	}
}

var initiativeStyles = map[Initiative]string{
	Reactive: `Response Style:
- Keep responses minimal and reactive
- Respond directly to questions without elaboration
- Wait for explicit questions before offering information
- Use simple acknowledgments for greetings`,
	Balanced: `Response Style:
- Balance between reactive and proactive responses
- Elaborate when it adds clear value
- Offer relevant information when appropriate
- Keep greetings friendly but brief`,
	Proactive: `Response Style:
- Take initiative in moving discussions forward
- Proactively offer relevant insights and suggestions
- Ask follow-up questions to deepen discussions
- Engage enthusiastically while maintaining professionalism`,
}

// ResponseStyle returns the guidance block for the persona's initiative.
func (p *Personality) ResponseStyle() string {
	return initiativeStyles[p.Initiative()]
}
