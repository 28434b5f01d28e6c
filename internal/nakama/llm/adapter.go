package llm

import "context"

// DefaultTemperature is used for decisions, summaries and identities.
const DefaultTemperature = 0.7

// Adapter exposes a Client through the capability interfaces declared by the
// core packages: text completion (summaries, identities), turn-taking
// decisions and response generation.
type Adapter struct {
	client Client
}

// NewAdapter wraps c.
func NewAdapter(c Client) *Adapter {
	return &Adapter{client: c}
}

// CompleteText runs a single system+user exchange.
func (a *Adapter) CompleteText(ctx context.Context, system, user string) (string, error) {
	return a.client.Complete(ctx, Request{
		Messages: []Message{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: user},
		},
		Temperature: DefaultTemperature,
	})
}

// Decide asks for a turn-taking verdict on a prepared prompt.
func (a *Adapter) Decide(ctx context.Context, msgs []Message) (string, error) {
	return a.client.Complete(ctx, Request{Messages: msgs, Temperature: DefaultTemperature})
}

// Generate produces a reply with explicit sampling parameters.
func (a *Adapter) Generate(ctx context.Context, msgs []Message, temperature float64, maxTokens int) (string, error) {
	return a.client.Complete(ctx, Request{Messages: msgs, Temperature: temperature, MaxTokens: maxTokens})
}
