package memory

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

type fakeCompleter struct {
	out    string
	err    error
	system string
	user   string
}

func (f *fakeCompleter) CompleteText(_ context.Context, system, user string) (string, error) {
	f.system, f.user = system, user
	return f.out, f.err
}

func TestParseDigest(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    *Digest
		wantErr bool
	}{
		{
			name: "plain json",
			in:   `{"summary":"S","insights":["I1"],"key_points":["K1"],"participants":["a"]}`,
			want: &Digest{Summary: "S", Insights: []string{"I1"}, KeyPoints: []string{"K1"}},
		},
		{
			name: "fenced json",
			in:   "```json\n{\"summary\":\"S\"}\n```",
			want: &Digest{Summary: "S"},
		},
		{name: "empty", in: "  ", wantErr: true},
		{name: "not json", in: "The team discussed things.", wantErr: true},
		{name: "missing summary", in: `{"insights":["I1"]}`, wantErr: true},
		{name: "wrong type", in: `{"summary":"S","insights":"I1"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDigest(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedDigest) {
					t.Fatalf("err = %v, want ErrMalformedDigest", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDigest: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseDigest = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLLMSummariser(t *testing.T) {
	c := &fakeCompleter{out: `{"summary":"Planned the route","insights":[],"key_points":["water first"]}`}
	s := NewLLMSummariser(c)

	d, err := s.Summarise(context.Background(), "Alice: go north\nBob: no, water first")
	if err != nil {
		t.Fatalf("Summarise: %v", err)
	}
	if d.Summary != "Planned the route" || len(d.KeyPoints) != 1 {
		t.Errorf("digest = %+v", d)
	}
	if !strings.HasPrefix(c.user, "Here is the conversation:\nAlice: go north") {
		t.Errorf("user prompt = %q", c.user)
	}
	if !strings.HasPrefix(c.system, "Analyze the conversation") {
		t.Errorf("system prompt = %q", c.system)
	}
}

func TestLLMSummariser_Errors(t *testing.T) {
	s := NewLLMSummariser(&fakeCompleter{err: errors.New("timeout")})
	if _, err := s.Summarise(context.Background(), "a: b"); err == nil {
		t.Error("expected completer error to propagate")
	}

	d, err := s.Summarise(context.Background(), "")
	if d != nil || err != nil {
		t.Errorf("empty transcript = (%v, %v), want (nil, nil)", d, err)
	}
}

func TestNoopSummariser(t *testing.T) {
	d, err := NewNoopSummariser(nil).Summarise(context.Background(), "a: b")
	if d != nil || err != nil {
		t.Errorf("noop = (%v, %v)", d, err)
	}
}
