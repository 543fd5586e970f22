package idgen

import (
	"regexp"
	"strings"
	"testing"
)

func TestRequestID_Shape(t *testing.T) {
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(RequestPrefix) + `[a-zA-Z0-9]{12}$`)
	for i := 0; i < 100; i++ {
		id, err := RequestID()
		if err != nil {
			t.Fatalf("RequestID() error on iteration %d: %v", i, err)
		}
		if !pattern.MatchString(id) {
			t.Fatalf("RequestID() = %q, does not match expected pattern", id)
		}
	}
}

func TestRunID_Prefix(t *testing.T) {
	id, err := RunID()
	if err != nil {
		t.Fatalf("RunID() error: %v", err)
	}
	if !strings.HasPrefix(id, RunPrefix) {
		t.Errorf("RunID() = %q, want prefix %q", id, RunPrefix)
	}
	if len(id) != len(RunPrefix)+Length {
		t.Errorf("RunID() length = %d, want %d", len(id), len(RunPrefix)+Length)
	}
}

func TestRequestID_Uniqueness(t *testing.T) {
	const count = 10_000
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		id := MustRequestID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate ID after %d generations: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestWithPrefix(t *testing.T) {
	id, err := WithPrefix("x/")
	if err != nil {
		t.Fatalf("WithPrefix error: %v", err)
	}
	if !strings.HasPrefix(id, "x/") {
		t.Errorf("WithPrefix(%q) = %q", "x/", id)
	}
}
