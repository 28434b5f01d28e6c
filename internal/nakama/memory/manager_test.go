package memory

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bdobrica/nakama/internal/nakama/llm"
)

type stubSummariser struct {
	mu     sync.Mutex
	digest *Digest
	err    error
	calls  int
	last   string
}

func (s *stubSummariser) Summarise(_ context.Context, transcript string) (*Digest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = transcript
	return s.digest, s.err
}

type stubPersistence struct {
	mu        sync.Mutex
	turns     map[string][]Turn
	summaries []Summary
	loadErr   error
	saveErr   error
	loads     int
}

func (p *stubPersistence) LoadRecentTurns(_ context.Context, roomID string, limit int) ([]Turn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loads++
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	ts := p.turns[roomID]
	if len(ts) > limit {
		ts = ts[len(ts)-limit:]
	}
	return append([]Turn(nil), ts...), nil
}

func (p *stubPersistence) SaveSummary(_ context.Context, s Summary) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saveErr != nil {
		return 0, p.saveErr
	}
	p.summaries = append(p.summaries, s)
	return int64(len(p.summaries)), nil
}

func (p *stubPersistence) LoadLatestSummary(_ context.Context, roomID string) (*Summary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.summaries) - 1; i >= 0; i-- {
		if p.summaries[i].RoomID == roomID {
			s := p.summaries[i]
			return &s, nil
		}
	}
	return nil, nil
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func turn(room, speaker, role, text string, i int) Turn {
	return Turn{
		RoomID:    room,
		SpeakerID: speaker,
		Role:      role,
		Text:      text,
		Timestamp: base.Add(time.Duration(i) * time.Minute),
	}
}

func names(m map[string]string) NameLookup {
	return func(id string) string { return m[id] }
}

func TestAddMessage_ShortTermBounded(t *testing.T) {
	mgr := NewManager(Config{})
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		mgr.AddMessage(ctx, turn("r", "u1", RoleUser, fmt.Sprintf("m%d", i), i), nil)
		st, _ := mgr.Snapshot("r")
		if len(st.ShortTerm) > 10 {
			t.Fatalf("after %d messages short_term = %d, want <= 10", i+1, len(st.ShortTerm))
		}
	}
}

func TestAddMessage_TruncatesOldestFirst(t *testing.T) {
	// With a threshold above the limit compaction never runs and the
	// sliding window is observable.
	mgr := NewManager(Config{ShortTermLimit: 3, Threshold: 100})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		mgr.AddMessage(ctx, turn("r", "u1", RoleUser, fmt.Sprintf("m%d", i), i), nil)
	}
	st, _ := mgr.Snapshot("r")
	var got []string
	for _, tr := range st.ShortTerm {
		got = append(got, tr.Text)
	}
	if want := []string{"m2", "m3", "m4"}; !reflect.DeepEqual(got, want) {
		t.Errorf("short_term = %v, want %v", got, want)
	}
}

func TestCompaction_TriggerWithNilDigestKeepsBuffer(t *testing.T) {
	sum := &stubSummariser{}
	mgr := NewManager(Config{Summariser: sum})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		mgr.AddMessage(ctx, turn("r", "u1", RoleUser, "hi", i), nil)
	}
	if sum.calls != 0 {
		t.Fatalf("compaction attempted before threshold: %d calls", sum.calls)
	}

	mgr.AddMessage(ctx, turn("r", "u1", RoleUser, "fifth", 4), nil)
	if sum.calls != 1 {
		t.Errorf("summariser calls = %d, want exactly 1", sum.calls)
	}
	st, _ := mgr.Snapshot("r")
	if len(st.ShortTerm) != 5 {
		t.Errorf("short_term = %d, want 5 retained", len(st.ShortTerm))
	}
	if len(st.LongTerm) != 0 {
		t.Errorf("long_term = %d, want 0", len(st.LongTerm))
	}
}

func TestCompaction_FailuresRetainBuffer(t *testing.T) {
	tests := []struct {
		name string
		sum  Summariser
		per  *stubPersistence
	}{
		{"no summariser", nil, nil},
		{"summariser error", &stubSummariser{err: errors.New("boom")}, nil},
		{"empty digest", &stubSummariser{digest: &Digest{}}, nil},
		{"save fails", &stubSummariser{digest: &Digest{Summary: "S"}}, &stubPersistence{saveErr: errors.New("db")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Summariser: tt.sum}
			if tt.per != nil {
				cfg.Persistence = tt.per
			}
			mgr := NewManager(cfg)
			for i := 0; i < 6; i++ {
				mgr.AddMessage(context.Background(), turn("r", "u1", RoleUser, "x", i), nil)
			}
			st, _ := mgr.Snapshot("r")
			if len(st.ShortTerm) != 6 || len(st.LongTerm) != 0 {
				t.Errorf("short=%d long=%d, want 6/0", len(st.ShortTerm), len(st.LongTerm))
			}
		})
	}
}

func TestCompaction_AliceBobScenario(t *testing.T) {
	sum := &stubSummariser{digest: &Digest{Summary: "S", Insights: []string{"I1"}, KeyPoints: []string{"K1"}}}
	per := &stubPersistence{}
	mgr := NewManager(Config{Summariser: sum, Persistence: per})
	ctx := context.Background()
	lookup := names(map[string]string{"alice_id": "Alice", "bob_id": "Bob"})

	speakers := []string{"alice_id", "bob_id", "alice_id", "bob_id", "alice_id"}
	for i, sp := range speakers {
		mgr.AddMessage(ctx, turn("room1", sp, RoleUser, fmt.Sprintf("msg %d", i), i), lookup)
	}

	st, _ := mgr.Snapshot("room1")
	if len(st.LongTerm) != 1 {
		t.Fatalf("long_term = %d, want 1", len(st.LongTerm))
	}
	if len(st.ShortTerm) != 0 {
		t.Errorf("short_term = %d, want cleared", len(st.ShortTerm))
	}
	got := st.LongTerm[0]
	if want := []string{"alice_id", "bob_id"}; !reflect.DeepEqual(got.Participants, want) {
		t.Errorf("participants = %v, want %v", got.Participants, want)
	}
	if !got.ConversationStart.Equal(base) || !got.ConversationEnd.Equal(base.Add(4*time.Minute)) {
		t.Errorf("span = %v..%v", got.ConversationStart, got.ConversationEnd)
	}
	if got.ID != 1 || len(per.summaries) != 1 {
		t.Errorf("summary not persisted: id=%d saved=%d", got.ID, len(per.summaries))
	}
	if !strings.HasPrefix(sum.last, "Alice: msg 0\nBob: msg 1\n") {
		t.Errorf("transcript = %q", sum.last)
	}

	mgr.AddMessage(ctx, turn("room1", "bob_id", RoleUser, "after", 5), lookup)
	ctxEntries := mgr.GetContext(ctx, "room1")
	if len(ctxEntries) != 2 {
		t.Fatalf("context entries = %d, want 2", len(ctxEntries))
	}
	first := ctxEntries[0]
	if first.Role != llm.RoleSystem {
		t.Fatalf("first role = %q, want system", first.Role)
	}
	for _, want := range []string{"S", "- I1", "- K1", "Participants: alice_id, bob_id"} {
		if !strings.Contains(first.Content, want) {
			t.Errorf("summary entry missing %q:\n%s", want, first.Content)
		}
	}
	if ctxEntries[1].Name != "Bob" || ctxEntries[1].Content != "after" {
		t.Errorf("second entry = %+v", ctxEntries[1])
	}
}

func TestGetContext_RolesAndIdempotence(t *testing.T) {
	mgr := NewManager(Config{Threshold: 100})
	ctx := context.Background()
	mgr.AddMessage(ctx, turn("r", "u1", RoleUser, "hello", 0), names(map[string]string{"u1": "Uma"}))
	mgr.AddMessage(ctx, turn("r", "bot", RoleAssistant, "hi Uma", 1), nil)
	mgr.AddMessage(ctx, turn("r", "sys", RoleSystem, "joined", 2), nil)

	a := mgr.GetContext(ctx, "r")
	b := mgr.GetContext(ctx, "r")
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("GetContext not idempotent:\n%v\n%v", a, b)
	}
	want := []llm.Message{
		{Role: llm.RoleUser, Content: "hello", Name: "Uma"},
		{Role: llm.RoleAssistant, Content: "hi Uma"},
		{Role: llm.RoleUser, Content: "joined", Name: "sys"},
	}
	if !reflect.DeepEqual(a, want) {
		t.Errorf("GetContext = %+v, want %+v", a, want)
	}
}

func TestHydration(t *testing.T) {
	per := &stubPersistence{turns: map[string][]Turn{}}
	for i := 0; i < 14; i++ {
		per.turns["r"] = append(per.turns["r"], turn("r", "u1", RoleUser, fmt.Sprintf("old%d", i), i))
	}
	per.summaries = []Summary{{ID: 9, RoomID: "r", Summary: "earlier", Timestamp: base}}

	mgr := NewManager(Config{Persistence: per, Threshold: 100, ShortTermLimit: 10})
	ctx := context.Background()
	mgr.AddMessage(ctx, turn("r", "u1", RoleUser, "new", 20), nil)
	mgr.AddMessage(ctx, turn("r", "u1", RoleUser, "newer", 21), nil)

	if per.loads != 1 {
		t.Errorf("LoadRecentTurns calls = %d, want 1", per.loads)
	}
	st, _ := mgr.Snapshot("r")
	if len(st.ShortTerm) != 10 {
		t.Fatalf("short_term = %d, want 10", len(st.ShortTerm))
	}
	if st.ShortTerm[0].Text != "old6" || st.ShortTerm[9].Text != "newer" {
		t.Errorf("short_term window = %q..%q", st.ShortTerm[0].Text, st.ShortTerm[9].Text)
	}
	entries := mgr.GetContext(ctx, "r")
	if entries[0].Role != llm.RoleSystem || !strings.Contains(entries[0].Content, "earlier") {
		t.Errorf("latest summary not hydrated: %+v", entries[0])
	}
}

func TestHydration_FailureStartsEmpty(t *testing.T) {
	per := &stubPersistence{loadErr: errors.New("db down")}
	mgr := NewManager(Config{Persistence: per})
	mgr.AddMessage(context.Background(), turn("r", "u1", RoleUser, "hi", 0), nil)
	st, _ := mgr.Snapshot("r")
	if len(st.ShortTerm) != 1 {
		t.Errorf("short_term = %d, want 1", len(st.ShortTerm))
	}
}

func TestForget(t *testing.T) {
	mgr := NewManager(Config{})
	mgr.AddMessage(context.Background(), turn("r", "u1", RoleUser, "hi", 0), nil)
	if mgr.Rooms() != 1 {
		t.Fatalf("Rooms() = %d", mgr.Rooms())
	}
	mgr.Forget("r")
	if _, ok := mgr.Snapshot("r"); ok {
		t.Error("room still present after Forget")
	}
	if got := mgr.GetContext(context.Background(), "r"); len(got) != 0 {
		t.Errorf("context after Forget = %v", got)
	}
}

func TestAddMessage_ConcurrentRooms(t *testing.T) {
	sum := &stubSummariser{digest: &Digest{Summary: "S"}}
	mgr := NewManager(Config{Summariser: sum})
	ctx := context.Background()

	var wg sync.WaitGroup
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			room := fmt.Sprintf("room%d", r)
			for i := 0; i < 20; i++ {
				mgr.AddMessage(ctx, turn(room, "u", RoleUser, "x", i), nil)
			}
		}(r)
	}
	wg.Wait()

	for r := 0; r < 8; r++ {
		st, _ := mgr.Snapshot(fmt.Sprintf("room%d", r))
		if len(st.LongTerm) != 4 {
			t.Errorf("room%d long_term = %d, want 4", r, len(st.LongTerm))
		}
	}
}
