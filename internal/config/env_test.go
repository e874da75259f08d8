package config

import (
	"testing"
	"time"
)

func TestParseString(t *testing.T) {
	t.Run("set", func(t *testing.T) {
		t.Setenv("COMOE_TEST_STR", "value")
		if got := ParseString("COMOE_TEST_STR", "default"); got != "value" {
			t.Errorf("got %q, want %q", got, "value")
		}
	})
	t.Run("empty falls back", func(t *testing.T) {
		t.Setenv("COMOE_TEST_STR", "")
		if got := ParseString("COMOE_TEST_STR", "default"); got != "default" {
			t.Errorf("got %q, want %q", got, "default")
		}
	})
	t.Run("unset falls back", func(t *testing.T) {
		if got := ParseString("COMOE_TEST_STR_UNSET", "default"); got != "default" {
			t.Errorf("got %q, want %q", got, "default")
		}
	})
}

func TestParseInt(t *testing.T) {
	t.Run("set", func(t *testing.T) {
		t.Setenv("COMOE_TEST_INT", "42")
		if got := ParseInt("COMOE_TEST_INT", 7); got != 42 {
			t.Errorf("got %d, want 42", got)
		}
	})
	t.Run("invalid falls back", func(t *testing.T) {
		t.Setenv("COMOE_TEST_INT", "not-a-number")
		if got := ParseInt("COMOE_TEST_INT", 7); got != 7 {
			t.Errorf("got %d, want 7", got)
		}
	})
	t.Run("empty falls back", func(t *testing.T) {
		t.Setenv("COMOE_TEST_INT", "")
		if got := ParseInt("COMOE_TEST_INT", 7); got != 7 {
			t.Errorf("got %d, want 7", got)
		}
	})
}

func TestParseDuration(t *testing.T) {
	t.Run("set", func(t *testing.T) {
		t.Setenv("COMOE_TEST_DUR", "90s")
		if got := ParseDuration("COMOE_TEST_DUR", time.Second); got != 90*time.Second {
			t.Errorf("got %s, want 90s", got)
		}
	})
	t.Run("invalid falls back", func(t *testing.T) {
		t.Setenv("COMOE_TEST_DUR", "ninety")
		if got := ParseDuration("COMOE_TEST_DUR", time.Second); got != time.Second {
			t.Errorf("got %s, want 1s", got)
		}
	})
}

func TestParseBool(t *testing.T) {
	cases := []struct {
		raw  string
		def  bool
		want bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"yes", false, true},
		{"TRUE", false, true},
		{"false", true, false},
		{"0", true, false},
		{"no", true, false},
		{"maybe", false, false},
		{"maybe", true, true},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			t.Setenv("COMOE_TEST_BOOL", tc.raw)
			if got := ParseBool("COMOE_TEST_BOOL", tc.def); got != tc.want {
				t.Errorf("ParseBool(%q, %v) = %v, want %v", tc.raw, tc.def, got, tc.want)
			}
		})
	}
}

func TestParseFloat(t *testing.T) {
	t.Run("set", func(t *testing.T) {
		t.Setenv("COMOE_TEST_FLOAT", "0.75")
		if got := ParseFloat("COMOE_TEST_FLOAT", 0.5); got != 0.75 {
			t.Errorf("got %g, want 0.75", got)
		}
	})
	t.Run("invalid falls back", func(t *testing.T) {
		t.Setenv("COMOE_TEST_FLOAT", "three quarters")
		if got := ParseFloat("COMOE_TEST_FLOAT", 0.5); got != 0.5 {
			t.Errorf("got %g, want 0.5", got)
		}
	})
}
