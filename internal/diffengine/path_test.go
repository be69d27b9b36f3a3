package diffengine

import (
	"errors"
	"reflect"
	"testing"
)

func TestRender(t *testing.T) {
	got := Render([]Segment{Key("foo"), Key("bar"), Index(0), Key("baz")})
	if got != "foo.bar[0].baz" {
		t.Errorf("Render = %q, want foo.bar[0].baz", got)
	}
}

func TestRenderLeadingIndex(t *testing.T) {
	if got := Render([]Segment{Index(2), Key("a")}); got != "[2].a" {
		t.Errorf("Render = %q, want [2].a", got)
	}
}

func TestParse(t *testing.T) {
	segs, err := Parse("foo.bar[0].baz")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []Segment{Key("foo"), Key("bar"), Index(0), Key("baz")}
	if !reflect.DeepEqual(segs, want) {
		t.Errorf("segments = %#v, want %#v", segs, want)
	}
}

func TestParseEmpty(t *testing.T) {
	segs, err := Parse("")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(segs) != 0 {
		t.Errorf("empty path should parse to no segments, got %#v", segs)
	}
}

func TestParseMissingBracket(t *testing.T) {
	_, err := Parse("tags[2")
	if err == nil {
		t.Fatal("expected error for unclosed bracket")
	}
	var pathErr *InvalidPathError
	if !errors.As(err, &pathErr) {
		t.Fatalf("error type = %T, want *InvalidPathError", err)
	}
}

func TestParseBadIndex(t *testing.T) {
	for _, path := range []string{"tags[x]", "tags[-1]", "tags[]"} {
		if _, err := Parse(path); err == nil {
			t.Errorf("Parse(%q): expected error", path)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	paths := []string{
		"id",
		"meta.b",
		"tags[0]",
		"outcome.worked[2]",
		"a.b.c[10].d[0]",
	}
	for _, p := range paths {
		segs, err := Parse(p)
		if err != nil {
			t.Fatalf("Parse(%q): %v", p, err)
		}
		if got := Render(segs); got != p {
			t.Errorf("round trip %q -> %q", p, got)
		}
	}
}

func TestNodeValue(t *testing.T) {
	doc := map[string]any{
		"meta": map[string]any{"a": 1},
		"tags": []any{"x", "y"},
	}

	v, ok, err := NodeValue(doc, "meta.a")
	if err != nil || !ok {
		t.Fatalf("NodeValue(meta.a): ok=%v err=%v", ok, err)
	}
	if v != 1 {
		t.Errorf("meta.a = %v, want 1", v)
	}

	v, ok, _ = NodeValue(doc, "tags[1]")
	if !ok || v != "y" {
		t.Errorf("tags[1] = %v ok=%v, want y", v, ok)
	}

	if _, ok, _ := NodeValue(doc, "tags[5]"); ok {
		t.Error("out-of-range index should not be found")
	}
	if _, ok, _ := NodeValue(doc, "meta.missing"); ok {
		t.Error("missing key should not be found")
	}
	if _, ok, _ := NodeValue(doc, "meta[0]"); ok {
		t.Error("index into mapping should not be found")
	}

	// Empty path resolves to the whole document.
	v, ok, _ = NodeValue(doc, "")
	if !ok || !reflect.DeepEqual(v, doc) {
		t.Error("empty path should return the document itself")
	}
}
