package clrmctx

import (
	"errors"
	"fmt"

	"github.com/banksean/clrm/mount"
	"github.com/banksean/clrm/phase"
)

// ErrDuplicateDependency is returned by AddDependency when a dependency is
// already registered for the given variable name (taxonomy:
// DuplicateDependency).
var ErrDuplicateDependency = errors.New("duplicate dependency")

// Dependency is a (VariableName, CommandName) pair an agent reported via
// ADD_DEPENDENCY: the command that should be re-run, in a dependent
// context, to produce the value of VariableName.
type Dependency struct {
	VariableName string
	CommandName  string
}

func (d Dependency) String() string {
	return fmt.Sprintf("%s=%s", d.VariableName, d.CommandName)
}

// BuildContext is the per-run state threaded through every phase: the
// variable context plus everything the driver, runner and agent protocol
// need that is not itself a script-visible variable.
type BuildContext struct {
	*Context

	WorkDirectory      string
	ArtifactsDirectory string
	BusyboxBinary      string
	SelfBinary         string
	RootDirectory      string
	BootstrapEnv       mount.RunEnvironment
	NetworkedPhases    map[phase.Phase]bool
	DebugOptions       map[string]bool
	RunName            string
	ExtraBindings      []mount.Binding

	// dependencies is the ordered, uniqueness-by-variable-name list
	// add_dependency appends to and take_dependencies atomically drains.
	dependencies []Dependency
}

// NewBuildContext wraps vars (typically derived from a root Context via
// Inherit) with the rest of a run's configuration.
func NewBuildContext(vars *Context) *BuildContext {
	return &BuildContext{
		Context:         vars,
		NetworkedPhases: map[phase.Phase]bool{},
		DebugOptions:    map[string]bool{},
	}
}

// AddDependency records d, rejecting a duplicate registration for the same
// variable name.
func (b *BuildContext) AddDependency(d Dependency) error {
	for _, existing := range b.dependencies {
		if existing.VariableName == d.VariableName {
			return fmt.Errorf("%w: variable %q already depends on %q", ErrDuplicateDependency, d.VariableName, existing.CommandName)
		}
	}
	b.dependencies = append(b.dependencies, d)
	return nil
}

// TakeDependencies atomically returns every dependency recorded since the
// last call and clears the list, so a dependency registered during phase P
// becomes visible to the driver only once P completes and drains it.
func (b *BuildContext) TakeDependencies() []Dependency {
	out := b.dependencies
	b.dependencies = nil
	return out
}
