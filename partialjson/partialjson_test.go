package partialjson

import (
	"reflect"
	"testing"
)

func TestParseStrictJSON(t *testing.T) {
	got := Parse(`{"path":"foo"}`)
	want := map[string]any{"path": "foo"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Parse() = %#v, want %#v", got, want)
	}
}

func TestParseEmptyBuffer(t *testing.T) {
	got := Parse("")
	if !reflect.DeepEqual(got, map[string]any{}) {
		t.Fatalf("Parse(\"\") = %#v, want empty map", got)
	}
	got = Parse("   ")
	if !reflect.DeepEqual(got, map[string]any{}) {
		t.Fatalf("Parse(whitespace) = %#v, want empty map", got)
	}
}

func TestParseIncompleteObject(t *testing.T) {
	got := Parse(`{"path"`)
	if _, ok := got.(map[string]any); !ok {
		t.Fatalf("Parse(dangling key) = %#v, want a map", got)
	}
}

func TestParseIncompleteStringValue(t *testing.T) {
	got := Parse(`{"path":"fo`)
	want := map[string]any{"path": "fo"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Parse() = %#v, want %#v", got, want)
	}
}

func TestParseIncompleteNestedArray(t *testing.T) {
	got := Parse(`{"items":["a","b"`)
	want := map[string]any{"items": []any{"a", "b"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Parse() = %#v, want %#v", got, want)
	}
}

func TestParseTrailingComma(t *testing.T) {
	got := Parse(`{"a":1,`)
	want := map[string]any{"a": float64(1)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Parse() = %#v, want %#v", got, want)
	}
}

func TestParseEscapedQuoteInsideString(t *testing.T) {
	got := Parse(`{"a":"say \"hi`)
	want := map[string]any{"a": `say "hi`}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Parse() = %#v, want %#v", got, want)
	}
}

func TestParseIrrecoverableInputReturnsEmptyMap(t *testing.T) {
	got := Parse(`}}}]]]not json at all{{{`)
	if _, ok := got.(map[string]any); !ok {
		t.Fatalf("Parse(garbage) = %#v, want a map fallback", got)
	}
}

func TestParseNeverPanics(t *testing.T) {
	inputs := []string{
		"{", "[", `{"a":`, `{"a":[1,2,{"b":`, `"unterminated`, "null", "true", "42",
	}
	for _, in := range inputs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("Parse(%q) panicked: %v", in, r)
				}
			}()
			Parse(in)
		}()
	}
}
