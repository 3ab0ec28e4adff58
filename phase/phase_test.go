package phase

import "testing"

func TestAllOrderAndCount(t *testing.T) {
	all := All()
	if len(all) != 6 {
		t.Fatalf("expected 6 phases, got %d", len(all))
	}
	want := []Phase{Prepare, Install, Polish, Test, BuildArtifacts, TestArtifacts}
	for i, p := range want {
		if all[i] != p {
			t.Errorf("phase at index %d = %v, want %v", i, all[i], p)
		}
	}
}

func TestStringsAreUniqueLowerSnakeCase(t *testing.T) {
	seen := map[string]bool{}
	for _, p := range All() {
		s := p.String()
		for _, r := range s {
			if !(r >= 'a' && r <= 'z' || r == '_') {
				t.Fatalf("phase string %q contains disallowed rune %q", s, r)
			}
		}
		if seen[s] {
			t.Fatalf("duplicate phase string %q", s)
		}
		seen[s] = true
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, p := range All() {
		got, err := Parse(p.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", p.String(), err)
		}
		if got != p {
			t.Errorf("Parse(%q) = %v, want %v", p.String(), got, p)
		}
	}
}

func TestParseUnknown(t *testing.T) {
	if _, err := Parse("bogus"); err == nil {
		t.Fatal("expected error for unknown phase name")
	}
}

func TestRunsInBootstrap(t *testing.T) {
	cases := map[Phase]bool{
		Prepare:        false,
		Install:        true,
		Polish:         false,
		Test:           false,
		BuildArtifacts: true,
		TestArtifacts:  true,
	}
	for p, want := range cases {
		if got := p.RunsInBootstrap(); got != want {
			t.Errorf("%v.RunsInBootstrap() = %v, want %v", p, got, want)
		}
	}
}
