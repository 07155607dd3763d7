package vocab

import (
	"errors"
	"slices"
	"testing"
)

func TestSharedSentinel(t *testing.T) {
	t.Parallel()
	v, err := New([]string{"ana", "ann"}, ".", ".")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := []string{".", "a", "n"}
	if got := v.Tokens(); !slices.Equal(got, want) {
		t.Fatalf("tokens: got %v, want %v", got, want)
	}
	if v.Opening() != 0 || v.Closing() != 0 {
		t.Fatalf("sentinel indices: got %d/%d, want 0/0", v.Opening(), v.Closing())
	}
}

func TestDistinctSentinels(t *testing.T) {
	t.Parallel()
	v, err := New([]string{"bob", "abe"}, "<S>", "<E>")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := []string{"<S>", "a", "b", "e", "o", "<E>"}
	if got := v.Tokens(); !slices.Equal(got, want) {
		t.Fatalf("tokens: got %v, want %v", got, want)
	}
	if v.Opening() != 0 || v.Closing() != v.Size()-1 {
		t.Fatalf("sentinel indices: got %d/%d", v.Opening(), v.Closing())
	}
}

func TestBijection(t *testing.T) {
	t.Parallel()
	v, err := New([]string{"emma", "olivia", "ava", "zoe"}, ".", ".")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	seen := make(map[int]bool)
	for _, tok := range v.Tokens() {
		i, err := v.Index(tok)
		if err != nil {
			t.Fatalf("Index(%q): %v", tok, err)
		}
		if i < 0 || i >= v.Size() || seen[i] {
			t.Fatalf("index %d for %q is out of range or duplicated", i, tok)
		}
		seen[i] = true
		back, err := v.Token(i)
		if err != nil || back != tok {
			t.Fatalf("Token(%d) = %q, %v; want %q", i, back, err, tok)
		}
	}
	if len(seen) != v.Size() {
		t.Fatalf("covered %d of %d indices", len(seen), v.Size())
	}
}

func TestLookupFailures(t *testing.T) {
	t.Parallel()
	v, err := New([]string{"ab"}, ".", ".")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := v.Encode("abc"); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
	if _, err := v.Token(v.Size()); !errors.Is(err, ErrIndexRange) {
		t.Fatalf("expected ErrIndexRange, got %v", err)
	}
	if _, err := New([]string{"a.b"}, ".", "."); !errors.Is(err, ErrSentinelInCorpus) {
		t.Fatalf("expected ErrSentinelInCorpus, got %v", err)
	}
	if _, err := New([]string{"ab"}, "", "."); !errors.Is(err, ErrEmptySentinel) {
		t.Fatalf("expected ErrEmptySentinel, got %v", err)
	}
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()
	v, err := New([]string{"hannah"}, "<S>", "<E>")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ids, err := v.Encode("hannah")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	ids = append([]int{v.Opening()}, append(ids, v.Closing())...)
	if got := v.Decode(ids); got != "hannah" {
		t.Fatalf("Decode: got %q", got)
	}
}
