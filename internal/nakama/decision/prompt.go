package decision

import (
	"strings"

	"github.com/bdobrica/nakama/internal/nakama/llm"
)

// instructionPrompt follows the persona block in the decision system prompt.
const instructionPrompt = `You are the decision-making system for an AI teammate participating in a team conversation. Your role is to help the AI engage naturally in discussions, just as any other team member would.

Consider these factors when deciding whether to contribute:
1. Natural conversation flow
   - Would a team member naturally join in at this point?
   - Is there an organic opening in the discussion?

2. Team dynamics
   - Are teammates seeking different perspectives?
   - Is this a moment for active participation or listening?
   - Would contributing strengthen team connections?

3. Value of input
   - Do you have relevant experience or insights to share?
   - Would your perspective help advance the discussion?
   - Could you help clarify or synthesize the current points?

4. Discussion rhythm
   - Is the conversation flowing smoothly between teammates?
   - Would joining in enhance or interrupt the current dynamic?
   - Has the discussion moved to a new topic?

Respond with either:
"Respond: [reason]" if joining the discussion would be natural, or
"Don't respond: [reason]" if it's better to continue listening.

Examples:
- If team is brainstorming → "Respond: Can contribute relevant ideas to the team's brainstorming"
- If two teammates are catching up → "Don't respond: Personal conversation between teammates"
- If someone asks for thoughts → "Respond: Team member seeking different perspectives"
- If someone shares success → "Respond: Natural moment to share in teammate's achievement"
- If it's rhetorical → "Don't respond: Comment wasn't meant to start discussion"

Remember:
- You're an equal member of the team
- Participate naturally in discussions
- Build genuine team connections
- Read social cues and respect boundaries
- Balance speaking and listening
- Let conversations flow organically
- Be strict about participating in the conversation, especially if you're in a team of more than one person
`

// Fallback speaker labels for context entries without a name.
const (
	assistantLabel = "AI Teammate"
	userLabel      = "User"
)

// BuildPrompt renders the decision request: the persona block followed by
// the fixed instructions as the system turn, and the formatted conversation
// plus the latest message as the user turn.
func BuildPrompt(modifiers string, history []llm.Message, latest string) []llm.Message {
	system := instructionPrompt
	if modifiers != "" {
		system = modifiers + "\n\n" + instructionPrompt
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: "Current conversation:\n" + FormatConversation(history) + "\n\nLatest message: " + latest},
	}
}

// FormatConversation renders context entries one per line: system entries as
// "Context: <text>", everything else as "<name>: <text>".
func FormatConversation(history []llm.Message) string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		if m.Role == llm.RoleSystem {
			lines = append(lines, "Context: "+m.Content)
			continue
		}
		name := m.Name
		if name == "" {
			name = userLabel
			if m.Role == llm.RoleAssistant {
				name = assistantLabel
			}
		}
		lines = append(lines, name+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

// ParseVerdict interprets the decider's answer. Only an answer beginning
// with "respond:" (case-insensitive, surrounding space ignored) means
// respond. The text after the label is returned as the reason.
func ParseVerdict(answer string) (respond bool, reason string) {
	a := strings.ToLower(strings.TrimSpace(answer))
	if rest, ok := strings.CutPrefix(a, "respond:"); ok {
		return true, strings.TrimSpace(rest)
	}
	for _, label := range []string{"don't respond:", "do not respond:", "don’t respond:"} {
		if rest, ok := strings.CutPrefix(a, label); ok {
			return false, strings.TrimSpace(rest)
		}
	}
	return false, a
}
