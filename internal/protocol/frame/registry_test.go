package frame

import (
	"reflect"
	"testing"
)

func TestParseRegistry(t *testing.T) {
	raw := []byte("1f4 editor_A\x00\x00  \x000x3a00007 GVIM\x00zz broken\x00badtoken\x00")
	got := ParseRegistry(raw)
	want := []RegistryEntry{
		{Window: 0x1f4, Name: "editor_A"},
		{Window: 0x3a00007, Name: "GVIM"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	entries := []RegistryEntry{{Window: 0x1f4, Name: "editor_A"}, {Window: 7, Name: "__hidden"}}
	raw := EncodeRegistry(entries)
	if string(raw) != "1f4 editor_A\x007 __hidden\x00" {
		t.Fatalf("unexpected encoding %q", raw)
	}
	if got := ParseRegistry(raw); !reflect.DeepEqual(got, entries) {
		t.Fatalf("got %+v", got)
	}
}
