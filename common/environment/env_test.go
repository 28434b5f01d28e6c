package environment_test

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/bdobrica/nakama/common/environment"
)

func TestStringOr(t *testing.T) {
	t.Setenv("NAKAMA_TEST_STRING", "hello")
	if got := environment.StringOr("NAKAMA_TEST_STRING", "default"); got != "hello" {
		t.Errorf("got %q, want hello", got)
	}
	if got := environment.StringOr("NAKAMA_TEST_STRING_MISSING", "default"); got != "default" {
		t.Errorf("got %q, want default", got)
	}
}

func TestParsedHelpers(t *testing.T) {
	tests := []struct {
		name  string
		value string
		check func(t *testing.T)
	}{
		{"bool", "TRUE", func(t *testing.T) {
			if !environment.BoolOr("NAKAMA_TEST_VAR", false) {
				t.Error("BoolOr = false")
			}
		}},
		{"bad bool", "yes please", func(t *testing.T) {
			if !environment.BoolOr("NAKAMA_TEST_VAR", true) {
				t.Error("unparsable bool must yield the default")
			}
		}},
		{"int", " 42 ", func(t *testing.T) {
			if got := environment.IntOr("NAKAMA_TEST_VAR", 0); got != 42 {
				t.Errorf("IntOr = %d", got)
			}
		}},
		{"bad int", "forty", func(t *testing.T) {
			if got := environment.IntOr("NAKAMA_TEST_VAR", 7); got != 7 {
				t.Errorf("IntOr = %d, want default", got)
			}
		}},
		{"float", "2.5", func(t *testing.T) {
			if got := environment.Float64Or("NAKAMA_TEST_VAR", 0); got != 2.5 {
				t.Errorf("Float64Or = %v", got)
			}
		}},
		{"duration", "90s", func(t *testing.T) {
			if got := environment.DurationOr("NAKAMA_TEST_VAR", 0); got != 90*time.Second {
				t.Errorf("DurationOr = %v", got)
			}
		}},
		{"one of", "Redis", func(t *testing.T) {
			if got := environment.OneOf("NAKAMA_TEST_VAR", "memory", "memory", "redis"); got != "redis" {
				t.Errorf("OneOf = %q", got)
			}
		}},
		{"one of rejected", "memcached", func(t *testing.T) {
			if got := environment.OneOf("NAKAMA_TEST_VAR", "memory", "memory", "redis"); got != "memory" {
				t.Errorf("OneOf = %q, want default", got)
			}
		}},
		{"slice", "!a:hs, ,!b:hs ", func(t *testing.T) {
			got := environment.StringSliceOr("NAKAMA_TEST_VAR", nil)
			if !slices.Equal(got, []string{"!a:hs", "!b:hs"}) {
				t.Errorf("StringSliceOr = %v", got)
			}
		}},
		{"empty slice", " , ", func(t *testing.T) {
			if got := environment.StringSliceOr("NAKAMA_TEST_VAR", []string{"x"}); !slices.Equal(got, []string{"x"}) {
				t.Errorf("StringSliceOr = %v, want default", got)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NAKAMA_TEST_VAR", tt.value)
			tt.check(t)
		})
	}
}

func TestSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("sk-from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("NAKAMA_TEST_KEY", "")
	t.Setenv("NAKAMA_TEST_KEY_FILE", path)
	if got, err := environment.Secret("NAKAMA_TEST_KEY"); err != nil || got != "sk-from-file" {
		t.Errorf("Secret from file = %q, %v", got, err)
	}

	t.Setenv("NAKAMA_TEST_KEY", "sk-direct")
	if got, _ := environment.Secret("NAKAMA_TEST_KEY"); got != "sk-direct" {
		t.Errorf("direct value must win, got %q", got)
	}

	t.Setenv("NAKAMA_TEST_KEY", "")
	t.Setenv("NAKAMA_TEST_KEY_FILE", filepath.Join(t.TempDir(), "missing"))
	if _, err := environment.Secret("NAKAMA_TEST_KEY"); err == nil {
		t.Error("expected error for unreadable secret file")
	}
}
