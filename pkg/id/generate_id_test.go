package id

import (
	"encoding/hex"
	"strings"
	"testing"
)

func TestNewID32_ShapeAndDecode(t *testing.T) {
	got := NewID32()
	if !Valid32(got) {
		t.Fatalf("not 32-char lowercase hex: %q", got)
	}
	b, err := hex.DecodeString(got)
	if err != nil {
		t.Fatalf("hex.DecodeString error: %v", err)
	}
	if len(b) != 16 {
		t.Fatalf("decoded bytes = %d, want 16", len(b))
	}
}

func TestNewID32_Uniqueness(t *testing.T) {
	const n = 200
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		id := NewID32()
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate id after %d iterations: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestValid32(t *testing.T) {
	cases := map[string]bool{
		strings.Repeat("a", 32):             true,
		"0123456789abcdef0123456789abcdef":  true,
		"":                                  false,
		strings.Repeat("A", 32):             false,
		strings.Repeat("g", 32):             false,
		"0123456789abcdef0123456789abcde":   false,
		"0123456789abcdef0123456789abcdef0": false,
		"01234567-89ab-cdef-0123-456789abcd": false,
	}
	for in, want := range cases {
		if got := Valid32(in); got != want {
			t.Fatalf("Valid32(%q) = %v, want %v", in, got, want)
		}
	}
}
