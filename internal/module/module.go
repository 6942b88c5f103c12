// Package module implements the module model (C3, §3, §4.3): the typed
// attribute bag every module definition is translated into, with
// access-qualified (public/private) collections and freeze-after-construct
// semantics.
package module

import "golang.org/x/xerrors"

// Type is one of the four module output kinds (§3).
type Type int

const (
	TypeUnknown Type = iota
	TypeStaticLibrary
	TypeSharedLibrary
	TypeExecutable
	TypeExecutableWindowed
)

func (t Type) String() string {
	switch t {
	case TypeStaticLibrary:
		return "StaticLibrary"
	case TypeSharedLibrary:
		return "SharedLibrary"
	case TypeExecutable:
		return "Executable"
	case TypeExecutableWindowed:
		return "ExecutableWindowed"
	default:
		return "Unknown"
	}
}

// Optimization is the module's optimization level, feeding the compiler
// driver's `-O…`/`/O…` flag table (§4.9).
type Optimization int

const (
	OptimizationNone Optimization = iota
	OptimizationSize
	OptimizationSpeed
	OptimizationMax
)

// Definition is a preprocessor define with an optional value (§3).
type Definition struct {
	Name  string
	Value string
}

// Key returns a dedup key distinguishing definitions by name only — a
// later-seen value for the same name does not create a second entry, it is
// simply shadowed by whichever bucket is scanned first in Joined/Propagated
// order, matching "first-seen-wins" (§4.3).
func (d Definition) Key() string { return d.Name }

// Reference is a (possibly unresolved) pointer to another module: a path
// relative to the referring module's directory, optional options and an
// optional output-transformer tag (§3, "ModuleReference").
type Reference struct {
	Path        string
	Options     map[string]string
	Transformer string // empty means "no transformer requested"
}

// Key identifies a reference for Joined/Propagated dedup purposes. Two
// references to the same path with the same options/transformer are the
// same dependency edge.
func (r Reference) Key() string {
	s := r.Path + "|" + r.Transformer + "|"
	// map iteration order would make this non-deterministic if used
	// directly; sort the pairs first.
	keys := make([]string, 0, len(r.Options))
	for k := range r.Options {
		keys = append(keys, k)
	}
	sortStrings(keys)
	for _, k := range keys {
		s += k + "=" + r.Options[k] + ";"
	}
	return s
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Module is the typed attribute bag a module definition is resolved into
// (§3). It is mutable only during instancing (constructor, option binding,
// transformers); Freeze makes further mutation a programmer error.
type Module struct {
	Name string
	Type Type

	// Sources is ordered; ordering influences link order only (§3).
	Sources []string

	Includes        AccessLimited[string]
	Definitions     AccessLimited[Definition]
	Libraries       AccessLimited[string]
	CompilerOptions AccessLimited[string]
	LinkerOptions   AccessLimited[string]
	Dependencies    AccessLimited[Reference]

	CppStandard string
	CStandard   string // empty means unset (§3, "cStandard?")

	Optimization        Optimization
	CPUExtension        string
	EnableExceptions    bool
	EnableRTTI          bool
	EnableFastFP        bool
	IsDebug             bool
	EnableDebugSymbols  bool

	// ResourceScript is the path to the module's Windows resource-script
	// input (§4.7, "resource compiler factory"), kept separate from Sources
	// so the C/C++ compile loop never has to guess which entry is a .rc
	// file. Empty means the module has no resource script, even if its
	// Type is ExecutableWindowed.
	ResourceScript string

	// DefinitionPath is the absolute, canonicalized path this module was
	// loaded from (§4.5 step 1). Set by the instancing layer, not by module
	// constructors.
	DefinitionPath string

	frozen bool
}

// New returns an empty, mutable module with its collections wired to this
// module's frozen flag.
func New() *Module {
	m := &Module{}
	m.Includes = NewAccessLimited[string]("includes", &m.frozen)
	m.Definitions = NewAccessLimited[Definition]("definitions", &m.frozen)
	m.Libraries = NewAccessLimited[string]("libraries", &m.frozen)
	m.CompilerOptions = NewAccessLimited[string]("compilerOptions", &m.frozen)
	m.LinkerOptions = NewAccessLimited[string]("linkerOptions", &m.frozen)
	m.Dependencies = NewAccessLimited[Reference]("dependencies", &m.frozen)
	return m
}

// Frozen reports whether the module has been frozen.
func (m *Module) Frozen() bool { return m.frozen }

// InvalidModule is returned by Validate when a required attribute is unset
// or malformed (§4.5 step 6).
type InvalidModule struct {
	Reason string
}

func (e *InvalidModule) Error() string {
	return xerrors.Errorf("invalid module: %s", e.Reason).Error()
}

// Validate checks the invariants required before Freeze (§4.5 step 6):
// name non-empty, type set, cppStandard set.
func (m *Module) Validate() error {
	if m.Name == "" {
		return &InvalidModule{Reason: "name must not be empty"}
	}
	if m.Type == TypeUnknown {
		return &InvalidModule{Reason: "type must be set"}
	}
	if m.CppStandard == "" {
		return &InvalidModule{Reason: "cppStandard must be set"}
	}
	return nil
}

// Freeze validates and then marks the module immutable (§4.5 step 7, §9
// "builder + freeze"). It is an error to Freeze an invalid module.
func (m *Module) Freeze() error {
	if err := m.Validate(); err != nil {
		return err
	}
	m.frozen = true
	return nil
}

// checkMutable panics with FrozenModule's message if the module is frozen.
func (m *Module) checkMutable() {
	if m.frozen {
		panic((&FrozenModule{Module: m.Name}).Error())
	}
}

// SetName sets the display name (mutable only pre-freeze).
func (m *Module) SetName(name string) {
	m.checkMutable()
	m.Name = name
}

// SetType sets the output kind (mutable only pre-freeze).
func (m *Module) SetType(t Type) {
	m.checkMutable()
	m.Type = t
}

// AddSource appends one source path (mutable only pre-freeze). Ordering is
// preserved (§3).
func (m *Module) AddSource(path string) {
	m.checkMutable()
	m.Sources = append(m.Sources, path)
}

// SetResourceScript sets the module's Windows resource-script input
// (mutable only pre-freeze).
func (m *Module) SetResourceScript(path string) {
	m.checkMutable()
	m.ResourceScript = path
}
