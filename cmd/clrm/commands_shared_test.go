package main

import "testing"

func TestResolveCommandPathEntryPlainPath(t *testing.T) {
	got, err := resolveCommandPathEntry("/srv/commands")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/srv/commands" {
		t.Fatalf("resolveCommandPathEntry() = %q, want unchanged path", got)
	}
}
