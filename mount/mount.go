// Package mount models the bindings and run environment a container is
// started with, and the per-phase plan that decides which bindings a
// given phase needs.
package mount

import (
	"fmt"
	"strings"

	"github.com/banksean/clrm/phase"
)

// BindingKind is the variety of filesystem binding a Binding represents.
type BindingKind int

const (
	// BindRW maps a host path read-write into the container.
	BindRW BindingKind = iota
	// BindRO maps a host path read-only into the container.
	BindRO
	// Tmpfs mounts an empty tmpfs at the container path.
	Tmpfs
	// Inaccessible masks a path inside the container entirely.
	Inaccessible
	// Overlay layers the host path read-write over whatever is already
	// at the container path.
	Overlay
	// OverlayRO layers the host path read-only.
	OverlayRO
)

// Binding is one filesystem binding passed to the container runner.
type Binding struct {
	Kind   BindingKind
	Host   string   // single-source forms: RW, RO
	Hosts  []string // Overlay/OverlayRO: ordered lower-to-upper source paths
	Inside string
}

func RW(host, inside string) Binding       { return Binding{Kind: BindRW, Host: host, Inside: inside} }
func RO(host, inside string) Binding       { return Binding{Kind: BindRO, Host: host, Inside: inside} }
func TmpfsAt(inside string) Binding        { return Binding{Kind: Tmpfs, Inside: inside} }
func InaccessibleAt(inside string) Binding { return Binding{Kind: Inaccessible, Inside: inside} }

// OverlayAt builds a read-write overlay binding layering sources (lowest
// first) over inside.
func OverlayAt(sources []string, inside string) Binding {
	return Binding{Kind: Overlay, Hosts: sources, Inside: inside}
}

// OverlayROAt builds a read-only overlay binding layering sources (lowest
// first) over inside.
func OverlayROAt(sources []string, inside string) Binding {
	return Binding{Kind: OverlayRO, Hosts: sources, Inside: inside}
}

// Arg renders the binding as the systemd-nspawn argument it corresponds
// to, matching each Binding variant to its exact flag form.
func (b Binding) Arg() string {
	switch b.Kind {
	case BindRW:
		return fmt.Sprintf("--bind=%s:%s", b.Host, b.Inside)
	case BindRO:
		return fmt.Sprintf("--bind-ro=%s:%s", b.Host, b.Inside)
	case Tmpfs:
		return fmt.Sprintf("--tmpfs=%s", b.Inside)
	case Inaccessible:
		return fmt.Sprintf("--inaccessible=%s", b.Inside)
	case Overlay:
		return fmt.Sprintf("--overlay=%s:%s", overlaySources(b.Hosts), b.Inside)
	case OverlayRO:
		return fmt.Sprintf("--overlay-ro=%s:%s", overlaySources(b.Hosts), b.Inside)
	default:
		return fmt.Sprintf("--bind=%s:%s", b.Host, b.Inside)
	}
}

func overlaySources(hosts []string) string {
	prefixed := make([]string, len(hosts))
	for i, h := range hosts {
		prefixed[i] = "+" + h
	}
	return strings.Join(prefixed, ":")
}

// ParseBinding parses one CLRM_EXTRA_BINDINGS entry of the form
// "kind:host:inside" (host omitted for tmpfs/inaccessible), or, for the
// overlay kinds, "kind:src[:src…]:dst" with an arbitrary number of source
// paths.
func ParseBinding(s string) (Binding, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return Binding{}, fmt.Errorf("invalid binding %q: expected kind:host:inside or kind:inside", s)
	}
	kind := parts[0]
	rest := parts[1:]
	switch kind {
	case "rw":
		if len(rest) != 2 {
			return Binding{}, fmt.Errorf("invalid rw binding %q: expected rw:host:inside", s)
		}
		return RW(rest[0], rest[1]), nil
	case "ro":
		if len(rest) != 2 {
			return Binding{}, fmt.Errorf("invalid ro binding %q: expected ro:host:inside", s)
		}
		return RO(rest[0], rest[1]), nil
	case "tmpfs":
		if len(rest) != 1 {
			return Binding{}, fmt.Errorf("invalid tmpfs binding %q: expected tmpfs:inside", s)
		}
		return TmpfsAt(rest[0]), nil
	case "inaccessible":
		if len(rest) != 1 {
			return Binding{}, fmt.Errorf("invalid inaccessible binding %q: expected inaccessible:inside", s)
		}
		return InaccessibleAt(rest[0]), nil
	case "overlay":
		if len(rest) < 2 {
			return Binding{}, fmt.Errorf("invalid overlay binding %q: expected overlay:src[:src…]:dst", s)
		}
		return OverlayAt(rest[:len(rest)-1], rest[len(rest)-1]), nil
	case "overlay_ro":
		if len(rest) < 2 {
			return Binding{}, fmt.Errorf("invalid overlay_ro binding %q: expected overlay_ro:src[:src…]:dst", s)
		}
		return OverlayROAt(rest[:len(rest)-1], rest[len(rest)-1]), nil
	default:
		return Binding{}, fmt.Errorf("invalid binding %q: unknown kind %q", s, kind)
	}
}

// RunEnvironment names the filesystem a container is started from:
// exactly one of Directory, Image or OCIReference is set.
type RunEnvironment struct {
	Directory    string
	Image        string
	OCIReference string
}

// NewDirectoryEnvironment builds a RunEnvironment backed by an existing
// directory tree.
func NewDirectoryEnvironment(dir string) RunEnvironment {
	return RunEnvironment{Directory: dir}
}

// NewImageEnvironment builds a RunEnvironment backed by a disk image file.
func NewImageEnvironment(image string) RunEnvironment {
	return RunEnvironment{Image: image}
}

// NewOCIEnvironment builds a RunEnvironment backed by an OCI image
// reference, resolved to a directory by the ociboot package before the
// runner ever sees it.
func NewOCIEnvironment(ref string) RunEnvironment {
	return RunEnvironment{OCIReference: ref}
}

// Validate enforces that exactly one environment source is set, mirroring
// RunEnvironment::new's validation in the runtime this design is based on.
func (e RunEnvironment) Validate() error {
	set := 0
	for _, s := range []string{e.Directory, e.Image, e.OCIReference} {
		if s != "" {
			set++
		}
	}
	switch set {
	case 0:
		return fmt.Errorf("no bootstrap environment given: need exactly one of directory, image or oci reference")
	case 1:
		return nil
	default:
		return fmt.Errorf("ambiguous bootstrap environment: need exactly one of directory, image or oci reference")
	}
}

// Plan is the full set of bindings and environment variables a phase's
// container is started with.
type Plan struct {
	Environment RunEnvironment
	Bindings    []Binding
	Env         map[string]string
	Networked   bool
}

// mountsArtifacts reports whether p's container binds the artifacts tree
// read-write at /tmp/clrm/artifacts_fs.
func mountsArtifacts(p phase.Phase) bool {
	return p == phase.BuildArtifacts || p == phase.TestArtifacts
}

// mountsRootFS reports whether p's container binds the in-progress root
// filesystem read-write at /tmp/clrm/root_fs. TestArtifacts runs isolated
// from the root filesystem being assembled even though it still runs
// inside the bootstrap environment.
func mountsRootFS(p phase.Phase) bool {
	return p.RunsInBootstrap() && p != phase.TestArtifacts
}

// ForPhase builds the binding plan for p, following the phase→container
// table: phases that RunsInBootstrap run inside the bootstrap
// environment; all but TestArtifacts additionally bind the in-progress
// root filesystem read-write at /tmp/clrm/root_fs; BuildArtifacts and
// TestArtifacts bind the artifacts tree read-write at
// /tmp/clrm/artifacts_fs; phases that do not run in the bootstrap run
// directly against the root filesystem as the container's own root.
// extra are additional bindings requested via
// --extra-bindings/CLRM_EXTRA_BINDINGS, appended after the phase's own
// bindings so they can override or extend them.
func ForPhase(p phase.Phase, bootstrapEnv RunEnvironment, rootDirectory, artifactsDirectory string, networked bool, extra []Binding) Plan {
	var plan Plan
	plan.Env = map[string]string{}

	if p.RunsInBootstrap() {
		plan.Environment = bootstrapEnv
		plan.Env["CLRM_CONTAINER"] = "bootstrap"
		if mountsRootFS(p) {
			plan.Bindings = append(plan.Bindings, RW(rootDirectory, "/tmp/clrm/root_fs"))
			plan.Env["ROOT_FS"] = "/tmp/clrm/root_fs"
		}
	} else {
		plan.Environment = NewDirectoryEnvironment(rootDirectory)
		plan.Env["CLRM_CONTAINER"] = "root_fs"
		plan.Env["ROOT_FS"] = "/"
	}

	if mountsArtifacts(p) {
		plan.Bindings = append(plan.Bindings, RW(artifactsDirectory, "/tmp/clrm/artifacts_fs"))
		plan.Env["ARTIFACTS_FS"] = "/tmp/clrm/artifacts_fs"
	}

	plan.Env["PHASE_IS_NETWORKED"] = "0"
	if networked {
		plan.Env["PHASE_IS_NETWORKED"] = "1"
	}
	plan.Env["CURRENT_PHASE"] = p.String()

	plan.Bindings = append(plan.Bindings, extra...)
	plan.Networked = networked
	return plan
}
