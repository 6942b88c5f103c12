// Package toolchain implements toolchain dispatch (C7, §4.7): selecting a
// compiler factory and linker factory per module from the module-level
// hint, CLI override, or target-platform default, in that order.
package toolchain

import (
	"golang.org/x/xerrors"

	"github.com/yldrefruz/ebuild/internal/driver"
	"github.com/yldrefruz/ebuild/internal/module"
	"github.com/yldrefruz/ebuild/internal/platform"
	"github.com/yldrefruz/ebuild/internal/registry"
)

// Toolchain is a named pairing of a compiler factory and a linker factory,
// plus an optional resource-compiler factory (§4.2 glossary, "Toolchain").
type Toolchain struct {
	Name             string
	Compiler         driver.Compiler
	Linker           driver.Linker
	ResourceCompiler driver.ResourceCompiler // nil if this toolchain offers none
}

// ToolchainIncompatible is returned when every candidate toolchain's
// canCreate predicate failed for a module (§4.7, §7).
type ToolchainIncompatible struct {
	ModuleName string
	Tried      []string
}

func (e *ToolchainIncompatible) Error() string {
	return xerrors.Errorf("no compatible toolchain for module %q (tried: %v)", e.ModuleName, e.Tried).Error()
}

// CanCreate reports whether t can build m for p: its compiler and linker
// must both be available for p, and — for ExecutableWindowed — it must also
// offer an available resource compiler (§4.7).
func (t Toolchain) CanCreate(m *module.Module, p platform.Platform) bool {
	if !t.Compiler.IsAvailable(p) {
		return false
	}
	if !t.Linker.IsAvailable(p) {
		return false
	}
	if m.Type == module.TypeExecutableWindowed {
		if t.ResourceCompiler == nil || !t.ResourceCompiler.IsAvailable(p) {
			return false
		}
	}
	return true
}

// LinkKindFor maps a module type to the link-task shape the spec requires
// (§4.7, "Linker factory selection is type-directed").
func LinkKindFor(t module.Type) driver.LinkKind {
	switch t {
	case module.TypeStaticLibrary:
		return driver.LinkStaticLibraryArchive
	case module.TypeSharedLibrary:
		return driver.LinkSharedLibrary
	default: // Executable, ExecutableWindowed
		return driver.LinkExecutable
	}
}

// Selector resolves the effective toolchain for a module in hint → override
// → platform-default order (§4.7).
type Selector struct {
	Registry *registry.Registry[Toolchain]
}

// Select returns the toolchain to use for m targeting targetPlatform.
// moduleHint is the module-level toolchain name (empty if unset);
// cliOverride is the `--toolchain` flag value (empty if unset).
func (s Selector) Select(m *module.Module, moduleHint, cliOverride string, targetPlatform platform.Platform) (Toolchain, error) {
	var candidates []string
	for _, name := range []string{moduleHint, cliOverride, targetPlatform.DefaultToolchainName} {
		if name != "" {
			candidates = append(candidates, name)
		}
	}

	var tried []string
	for _, name := range candidates {
		tc, err := s.Registry.Get(name)
		if err != nil {
			tried = append(tried, name)
			continue
		}
		tried = append(tried, name)
		if tc.CanCreate(m, targetPlatform) {
			return tc, nil
		}
	}
	return Toolchain{}, &ToolchainIncompatible{ModuleName: m.Name, Tried: tried}
}

// Builtins returns the built-in Gcc and Msvc toolchains, ready to be
// registered at bootstrap (mirrors platform.Builtins()).
func Builtins(gccCompiler driver.Compiler, gccLinker driver.Linker, msvcCompiler driver.Compiler, msvcLinker driver.Linker, msvcResource driver.ResourceCompiler) []Toolchain {
	return []Toolchain{
		{Name: "Gcc", Compiler: gccCompiler, Linker: gccLinker},
		{Name: "Msvc", Compiler: msvcCompiler, Linker: msvcLinker, ResourceCompiler: msvcResource},
	}
}
