package diffengine

import (
	"reflect"
	"testing"
)

func TestFlattenNested(t *testing.T) {
	doc := map[string]any{
		"foo": map[string]any{
			"bar": []any{1, 2},
		},
	}
	got := Flatten(doc)
	want := map[string]any{
		"foo.bar[0]": 1,
		"foo.bar[1]": 2,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Flatten = %#v, want %#v", got, want)
	}
}

func TestFlattenScalarsAndLists(t *testing.T) {
	doc := map[string]any{
		"id":    "x",
		"count": 3,
		"tags":  []any{"a", "b"},
	}
	got := Flatten(doc)
	want := map[string]any{
		"id":      "x",
		"count":   3,
		"tags[0]": "a",
		"tags[1]": "b",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Flatten = %#v, want %#v", got, want)
	}
}

func TestFlattenEmptyContainersAreLeaves(t *testing.T) {
	doc := map[string]any{
		"empty_map":  map[string]any{},
		"empty_list": []any{},
		"nil_value":  nil,
	}
	got := Flatten(doc)
	if len(got) != 3 {
		t.Fatalf("expected 3 leaves, got %#v", got)
	}
	if m, ok := got["empty_map"].(map[string]any); !ok || len(m) != 0 {
		t.Errorf("empty_map leaf = %#v", got["empty_map"])
	}
	if l, ok := got["empty_list"].([]any); !ok || len(l) != 0 {
		t.Errorf("empty_list leaf = %#v", got["empty_list"])
	}
	if v, present := got["nil_value"]; !present || v != nil {
		t.Errorf("nil_value leaf = %#v present=%v", v, present)
	}
}

func TestFlattenListOfMappings(t *testing.T) {
	doc := map[string]any{
		"learnings": []any{
			map[string]any{"insight": "i1"},
			map[string]any{"insight": "i2"},
		},
	}
	got := Flatten(doc)
	want := map[string]any{
		"learnings[0].insight": "i1",
		"learnings[1].insight": "i2",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Flatten = %#v, want %#v", got, want)
	}
}

func TestFlattenRootScalar(t *testing.T) {
	if got := Flatten("just a string"); len(got) != 0 {
		t.Errorf("root scalar should flatten to nothing, got %#v", got)
	}
}

func TestFlattenEmptyDocument(t *testing.T) {
	if got := Flatten(map[string]any{}); len(got) != 0 {
		t.Errorf("empty document should flatten to nothing, got %#v", got)
	}
}
