package mount

import (
	"reflect"
	"testing"

	"github.com/banksean/clrm/phase"
)

func TestBindingArgForms(t *testing.T) {
	cases := []struct {
		b    Binding
		want string
	}{
		{RW("/host/a", "/a"), "--bind=/host/a:/a"},
		{RO("/host/b", "/b"), "--bind-ro=/host/b:/b"},
		{TmpfsAt("/tmp"), "--tmpfs=/tmp"},
		{InaccessibleAt("/secret"), "--inaccessible=/secret"},
		{OverlayAt([]string{"/host/c"}, "/c"), "--overlay=+/host/c:/c"},
		{OverlayROAt([]string{"/host/d"}, "/d"), "--overlay-ro=+/host/d:/d"},
		{OverlayAt([]string{"/lower", "/upper"}, "/e"), "--overlay=+/lower:+/upper:/e"},
	}
	for _, c := range cases {
		if got := c.b.Arg(); got != c.want {
			t.Errorf("Arg() = %q, want %q", got, c.want)
		}
	}
}

func TestParseBindingRoundTrip(t *testing.T) {
	b, err := ParseBinding("rw:/host:/inside")
	if err != nil {
		t.Fatal(err)
	}
	if b.Arg() != "--bind=/host:/inside" {
		t.Errorf("got %q", b.Arg())
	}

	if _, err := ParseBinding("bogus:/x"); err == nil {
		t.Fatal("expected error for unknown binding kind")
	}
	if _, err := ParseBinding("rw:/onlyhost"); err == nil {
		t.Fatal("expected error for rw binding missing inside path")
	}
}

func TestParseBindingOverlayKeyword(t *testing.T) {
	b, err := ParseBinding("overlay_ro:/lower:/upper")
	if err != nil {
		t.Fatal(err)
	}
	if b.Arg() != "--overlay-ro=+/lower:/upper" {
		t.Errorf("got %q", b.Arg())
	}

	if _, err := ParseBinding("overlay-ro:/lower:/upper"); err == nil {
		t.Fatal("expected the hyphenated spelling to be rejected")
	}
}

func TestParseBindingOverlayMultiSource(t *testing.T) {
	b, err := ParseBinding("overlay:/a:/b:/c:/dst")
	if err != nil {
		t.Fatal(err)
	}
	if b.Arg() != "--overlay=+/a:+/b:+/c:/dst" {
		t.Errorf("got %q", b.Arg())
	}

	if _, err := ParseBinding("overlay:/onlyone"); err == nil {
		t.Fatal("expected error: overlay needs at least one source and a destination")
	}
}

func TestRunEnvironmentValidate(t *testing.T) {
	if err := (RunEnvironment{}).Validate(); err == nil {
		t.Fatal("expected error for empty RunEnvironment")
	}
	if err := NewDirectoryEnvironment("/x").Validate(); err != nil {
		t.Fatal(err)
	}
	both := RunEnvironment{Directory: "/x", Image: "/y.img"}
	if err := both.Validate(); err == nil {
		t.Fatal("expected error when both directory and image are set")
	}
}

func TestForPhaseBootstrapVsRootFS(t *testing.T) {
	bootstrap := NewDirectoryEnvironment("/bootstrap")

	p := ForPhase(phase.Install, bootstrap, "/work/root_fs", "/work/artifacts", false, nil)
	if p.Environment != bootstrap {
		t.Errorf("Install should run against the bootstrap environment")
	}
	if p.Env["CLRM_CONTAINER"] != "bootstrap" || p.Env["ROOT_FS"] != "/tmp/clrm/root_fs" {
		t.Errorf("unexpected bootstrap env: %v", p.Env)
	}
	if p.Env["ARTIFACTS_FS"] != "" {
		t.Errorf("Install should not mount artifacts, got env: %v", p.Env)
	}

	p2 := ForPhase(phase.Polish, bootstrap, "/work/root_fs", "/work/artifacts", false, nil)
	if p2.Environment.Directory != "/work/root_fs" {
		t.Errorf("Polish should run directly against the root filesystem, got %+v", p2.Environment)
	}
	if p2.Env["CLRM_CONTAINER"] != "root_fs" || p2.Env["ROOT_FS"] != "/" {
		t.Errorf("unexpected root_fs env: %v", p2.Env)
	}
}

func TestForPhaseTestArtifactsIsIsolated(t *testing.T) {
	bootstrap := NewDirectoryEnvironment("/bootstrap")
	p := ForPhase(phase.TestArtifacts, bootstrap, "/work/root_fs", "/work/artifacts", false, nil)

	if p.Environment != bootstrap {
		t.Errorf("TestArtifacts should still run in the bootstrap environment")
	}
	for _, b := range p.Bindings {
		if b.Inside == "/tmp/clrm/root_fs" {
			t.Errorf("TestArtifacts must not bind root_fs, got bindings: %v", p.Bindings)
		}
	}
	if _, ok := p.Env["ROOT_FS"]; ok {
		t.Errorf("TestArtifacts should not set ROOT_FS, got env: %v", p.Env)
	}
	if p.Env["ARTIFACTS_FS"] != "/tmp/clrm/artifacts_fs" {
		t.Errorf("expected ARTIFACTS_FS set, got env: %v", p.Env)
	}
	found := false
	for _, b := range p.Bindings {
		if b.Inside == "/tmp/clrm/artifacts_fs" && b.Kind == BindRW {
			found = true
		}
	}
	if !found {
		t.Errorf("expected artifacts RW binding, got bindings: %v", p.Bindings)
	}
}

func TestForPhaseBuildArtifactsMountsBoth(t *testing.T) {
	bootstrap := NewDirectoryEnvironment("/bootstrap")
	p := ForPhase(phase.BuildArtifacts, bootstrap, "/work/root_fs", "/work/artifacts", false, nil)

	rootFound, artifactsFound := false, false
	for _, b := range p.Bindings {
		if b.Inside == "/tmp/clrm/root_fs" {
			rootFound = true
		}
		if b.Inside == "/tmp/clrm/artifacts_fs" {
			artifactsFound = true
		}
	}
	if !rootFound || !artifactsFound {
		t.Errorf("BuildArtifacts should mount both root_fs and artifacts_fs, got %v", p.Bindings)
	}
	if p.Env["ROOT_FS"] != "/tmp/clrm/root_fs" || p.Env["ARTIFACTS_FS"] != "/tmp/clrm/artifacts_fs" {
		t.Errorf("unexpected env: %v", p.Env)
	}
}

func TestForPhaseEnvNetworkedAndCurrentPhase(t *testing.T) {
	bootstrap := NewDirectoryEnvironment("/bootstrap")
	p := ForPhase(phase.Test, bootstrap, "/work/root_fs", "/work/artifacts", true, nil)
	if p.Env["PHASE_IS_NETWORKED"] != "1" {
		t.Errorf("expected PHASE_IS_NETWORKED=1, got %v", p.Env)
	}
	if p.Env["CURRENT_PHASE"] != "test" {
		t.Errorf("expected CURRENT_PHASE=test, got %v", p.Env)
	}

	p2 := ForPhase(phase.Prepare, bootstrap, "/work/root_fs", "/work/artifacts", false, nil)
	if p2.Env["PHASE_IS_NETWORKED"] != "0" {
		t.Errorf("expected PHASE_IS_NETWORKED=0, got %v", p2.Env)
	}
}

func TestForPhaseAppendsExtraBindings(t *testing.T) {
	extra := []Binding{RO("/extra", "/extra")}
	p := ForPhase(phase.Test, NewDirectoryEnvironment("/bootstrap"), "/work/root_fs", "/work/artifacts", true, extra)
	last := p.Bindings[len(p.Bindings)-1]
	if !reflect.DeepEqual(last, extra[0]) {
		t.Errorf("expected extra bindings appended last, got %v", p.Bindings)
	}
	if !p.Networked {
		t.Error("expected Networked to be true")
	}
}
