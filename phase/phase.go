// Package phase defines the ordered build phases an image build runs
// through and the binding/container-kind decisions that key off them.
package phase

import "fmt"

// Phase is one stage of a build run. The zero value is Prepare; use All()
// to range over the canonical sequence.
type Phase int

const (
	Prepare Phase = iota
	Install
	Polish
	Test
	BuildArtifacts
	TestArtifacts
)

// All returns the six phases in the fixed order a build always runs them.
func All() []Phase {
	return []Phase{Prepare, Install, Polish, Test, BuildArtifacts, TestArtifacts}
}

func (p Phase) String() string {
	switch p {
	case Prepare:
		return "prepare"
	case Install:
		return "install"
	case Polish:
		return "polish"
	case Test:
		return "test"
	case BuildArtifacts:
		return "build_artifacts"
	case TestArtifacts:
		return "test_artifacts"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Parse converts a phase name, as accepted on the command line or in
// CLRM_NETWORKED_PHASES, back into a Phase.
func Parse(s string) (Phase, error) {
	for _, p := range All() {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unrecognized phase %q", s)
}

// RunsInBootstrap reports whether the phase executes against the bootstrap
// environment rather than the target root filesystem. Install and the two
// artifact phases build and test artifacts using bootstrap tooling; Polish
// and Test (and, implicitly, Prepare) run against the root filesystem being
// assembled.
func (p Phase) RunsInBootstrap() bool {
	return p == Install || p == BuildArtifacts || p == TestArtifacts
}

// UnmarshalText lets Phase be used directly as a kong positional/flag type
// and as a value in CLRM_NETWORKED_PHASES lists.
func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
