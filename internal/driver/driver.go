// Package driver defines the compiler/linker/archiver/resource-compiler
// driver interfaces (C9, §4.9) that concrete families (gcc, msvc) implement,
// and the settings structs the orchestrator (C8) fills in per task.
package driver

import "github.com/yldrefruz/ebuild/internal/platform"

// CompilerSettings is a fully-resolved per-source compile task (§4.8
// "Planning"): everything a compiler driver needs to build one argv.
type CompilerSettings struct {
	SourcePath   string
	OutputPath   string
	Architecture string
	ModuleType   string // module.Type.String(), kept as a string to avoid an import cycle back into module
	CPUExtension string

	EnableExceptions   bool
	EnableRTTI         bool
	EnableFastFP       bool
	EnableDebugSymbols bool

	CStandard   string
	CppStandard string

	Optimization string // "none" | "size" | "speed" | "max"

	Definitions    []Definition
	Includes       []string
	ForcedIncludes []string

	PlatformFlags []string
	ExtraFlags    []string
}

// Definition is a preprocessor define carried into the driver layer without
// importing the module package (keeps driver free of a dependency on the
// module model, matching the teacher's layering where build-step drivers
// only know about flags and paths).
type Definition struct {
	Name  string
	Value string
}

// LinkKind distinguishes the three link-task shapes a linker factory may
// need to produce (§4.7, "Linker factory selection is type-directed").
type LinkKind int

const (
	LinkExecutable LinkKind = iota
	LinkSharedLibrary
	LinkStaticLibraryArchive
)

// LinkerSettings is a fully-resolved per-module link task.
type LinkerSettings struct {
	Kind LinkKind

	OutputPath      string
	ObjectPaths     []string // source-declaration order (§5, "Ordering guarantees")
	LibraryPaths    []string
	Libraries       []string // names, or absolute paths for fully-qualified inputs
	LinkerFlags     []string
	EnableDebugInfo bool
	DelayLoad       []string // MSVC-family only; ignored by gcc-family drivers
}

// ResourceSettings is a Windows-family resource-compile task, produced only
// for ExecutableWindowed modules (§4.7, "resource compiler factory").
type ResourceSettings struct {
	SourcePath  string
	OutputPath  string
	Includes    []string
	Definitions []Definition
}

// Compiler constructs a compile-step argv for one source file (§4.9).
type Compiler interface {
	Argv(s CompilerSettings) ([]string, error)
	IsAvailable(p platform.Platform) bool
}

// Linker constructs a link-step (or archive-step) argv for one module's
// link/archive task (§4.9).
type Linker interface {
	Argv(s LinkerSettings) ([]string, error)
	IsAvailable(p platform.Platform) bool
}

// ResourceCompiler constructs argv for a Windows-family resource-compile
// step (§4.7, "resource compiler factory").
type ResourceCompiler interface {
	Argv(s ResourceSettings) ([]string, error)
	IsAvailable(p platform.Platform) bool
}
