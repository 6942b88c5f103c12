// Package loader defines the Module definition loader contract (§1, "out of
// scope... any loading mechanism... satisfies the contract") and ships one
// reference implementation: a declarative YAML format read with
// gopkg.in/yaml.v3, adopted from the pack's banksean-sand and
// sunholo-data-ailang repositories (see SPEC_FULL.md §B.4 for the full
// rationale — the teacher's own textproto format needs generated protobuf
// code this exercise's retrieval pack does not contain).
package loader

import (
	"bytes"
	"io"
	"os"
	"sync"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// OptionSpec is the declarative form of an option.Descriptor (§4.4), as
// authored in a module-definition file.
type OptionSpec struct {
	Name                string `yaml:"name"`
	Description         string `yaml:"description"`
	Required            bool   `yaml:"required"`
	ChangesResultBinary bool   `yaml:"changesResultBinary"`
	Default             string `yaml:"default"`
	Type                string `yaml:"type"` // "string" | "bool" | "int" | enum name
}

// Definition is the declarative form of module.Definition.
type Definition struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// AccessLimited is the declarative form of an access-qualified collection
// (§3): a public and a private bucket, each a plain list in file order.
type AccessLimited struct {
	Public  []string `yaml:"public,omitempty"`
	Private []string `yaml:"private,omitempty"`
}

// DefinitionsAccessLimited is AccessLimited specialised to preprocessor
// definitions, whose entries carry an optional value.
type DefinitionsAccessLimited struct {
	Public  []Definition `yaml:"public,omitempty"`
	Private []Definition `yaml:"private,omitempty"`
}

// DependencyRef is the declarative form of module.Reference.
type DependencyRef struct {
	Path        string            `yaml:"path"`
	Options     map[string]string `yaml:"options,omitempty"`
	Transformer string            `yaml:"transformer,omitempty"`
}

// DependenciesAccessLimited is AccessLimited specialised to module
// dependencies.
type DependenciesAccessLimited struct {
	Public  []DependencyRef `yaml:"public,omitempty"`
	Private []DependencyRef `yaml:"private,omitempty"`
}

// RawModule is one module descriptor as authored in a definition file
// (§4.5 step 2, "the loader for the module descriptors at that path").
type RawModule struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"` // StaticLibrary | SharedLibrary | Executable | ExecutableWindowed

	Sources []string `yaml:"sources"`

	// ResourceScript is the .rc-style input fed to the toolchain's resource
	// compiler for ExecutableWindowed modules (§4.7, §9). It is authored
	// separately from Sources so the loader never has to infer which
	// source entry is a resource script by extension.
	ResourceScript string `yaml:"resourceScript,omitempty"`

	Includes        AccessLimited             `yaml:"includes"`
	Definitions     DefinitionsAccessLimited  `yaml:"definitions"`
	Libraries       AccessLimited             `yaml:"libraries"`
	CompilerOptions AccessLimited             `yaml:"compilerOptions"`
	LinkerOptions   AccessLimited             `yaml:"linkerOptions"`
	Dependencies    DependenciesAccessLimited `yaml:"dependencies"`

	CppStandard string `yaml:"cppStandard"`
	CStandard   string `yaml:"cStandard,omitempty"`

	Optimization       string `yaml:"optimization,omitempty"`
	CPUExtension       string `yaml:"cpuExtension,omitempty"`
	EnableExceptions   bool   `yaml:"enableExceptions,omitempty"`
	EnableRTTI         bool   `yaml:"enableRtti,omitempty"`
	EnableFastFP       bool   `yaml:"enableFastFP,omitempty"`
	IsDebug            bool   `yaml:"isDebug,omitempty"`
	EnableDebugSymbols bool   `yaml:"enableDebugSymbols,omitempty"`

	Options            []OptionSpec `yaml:"options,omitempty"`
	OutputTransformers []string     `yaml:"outputTransformers,omitempty"`
}

// File is the top-level shape of a module-definition file: one or more
// module descriptors (§4.5 step 2, "If multiple, the reference must name
// one").
type File struct {
	Modules []RawModule `yaml:"modules"`
}

// ModuleFileLoadError wraps any failure to produce descriptors for a path
// (§7, "ModuleFileLoadError").
type ModuleFileLoadError struct {
	Path string
	Err  error
}

func (e *ModuleFileLoadError) Error() string {
	return xerrors.Errorf("load %s: %w", e.Path, e.Err).Error()
}

func (e *ModuleFileLoadError) Unwrap() error { return e.Err }

// Loader is the collaborator interface (§1): given a path, return the
// module descriptors found there.
type Loader interface {
	Load(path string) ([]RawModule, error)
}

var fileBufPool = sync.Pool{
	New: func() any { return &bytes.Buffer{} },
}

// YAMLLoader is the reference Loader implementation: one YAML file per
// definition path, parsed with gopkg.in/yaml.v3. Its read path follows the
// teacher's pb.ReadBuildFile / pb.ReadMetaFile shape (sync.Pool-backed
// buffer, os.Open, io.Copy) generalized from text-format protobuf to YAML.
type YAMLLoader struct{}

func (YAMLLoader) Load(path string) ([]RawModule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ModuleFileLoadError{Path: path, Err: err}
	}
	defer f.Close()

	buf := fileBufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer fileBufPool.Put(buf)

	if _, err := io.Copy(buf, f); err != nil {
		return nil, &ModuleFileLoadError{Path: path, Err: err}
	}

	var file File
	if err := yaml.Unmarshal(buf.Bytes(), &file); err != nil {
		return nil, &ModuleFileLoadError{Path: path, Err: err}
	}
	if len(file.Modules) == 0 {
		return nil, &ModuleFileLoadError{Path: path, Err: xerrors.Errorf("no modules declared")}
	}
	return file.Modules, nil
}
