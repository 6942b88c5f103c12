// Package gcc implements the GCC-family compiler/linker/archiver drivers
// (§4.9), argument-order-compatible with gcc/g++/ar, grounded on the
// argv-construction style of the teacher's exec.Command("gcc", args...) call
// in internal/build/build.go (line ~1807) and its cc.* flag plumbing.
package gcc

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/yldrefruz/ebuild/internal/driver"
	"github.com/yldrefruz/ebuild/internal/platform"
)

// Compiler is the GCC-family compiler driver (§4.9, "GCC-family compiler
// driver").
type Compiler struct {
	// LookPath overrides exec.LookPath, for tests. Nil means use exec.LookPath.
	LookPath func(string) (string, error)
}

func (c Compiler) lookPath(name string) (string, error) {
	if c.LookPath != nil {
		return c.LookPath(name)
	}
	return exec.LookPath(name)
}

// program returns "gcc" for C sources and "g++" for C++ sources, selected by
// extension (§4.9, "C sources use gcc; C++ sources use g++").
func program(sourcePath string) string {
	switch strings.ToLower(filepath.Ext(sourcePath)) {
	case ".c":
		return "gcc"
	default:
		return "g++"
	}
}

// Argv builds the compile-step argument list in the order the spec
// prescribes (§4.9).
func (c Compiler) Argv(s driver.CompilerSettings) ([]string, error) {
	argv := []string{program(s.SourcePath), "-c", "-o", s.OutputPath}
	argv = append(argv, optimizationFlag(s.Optimization))
	if s.EnableDebugSymbols {
		argv = append(argv, "-g")
	}
	if std := standardFlag(s.SourcePath, s.CppStandard, s.CStandard); std != "" {
		argv = append(argv, std)
	}
	for _, inc := range s.Includes {
		argv = append(argv, "-I"+inc)
	}
	for _, d := range s.Definitions {
		if d.Value == "" {
			argv = append(argv, "-D"+d.Name)
		} else {
			argv = append(argv, fmt.Sprintf("-D%s=%s", d.Name, d.Value))
		}
	}
	for _, f := range s.ForcedIncludes {
		argv = append(argv, "-include", f)
	}
	if s.EnableExceptions {
		argv = append(argv, "-fexceptions")
	} else {
		argv = append(argv, "-fno-exceptions")
	}
	if s.EnableRTTI {
		argv = append(argv, "-frtti")
	} else {
		argv = append(argv, "-fno-rtti")
	}
	if s.EnableFastFP {
		argv = append(argv, "-ffast-math")
	}
	if cpu := cpuFlag(s.CPUExtension); cpu != "" {
		argv = append(argv, cpu)
	}
	argv = append(argv, s.PlatformFlags...)
	argv = append(argv, s.ExtraFlags...)
	argv = append(argv, s.SourcePath)
	return argv, nil
}

// IsAvailable reports whether this driver can target p: Unix-family only,
// and g++ discoverable on PATH (§4.9, "Availability").
func (c Compiler) IsAvailable(p platform.Platform) bool {
	if p.Family() != platform.FamilyUnix {
		return false
	}
	_, err := c.lookPath("g++")
	return err == nil
}

func standardFlag(sourcePath, cppStandard, cStandard string) string {
	if strings.ToLower(filepath.Ext(sourcePath)) == ".c" {
		if cStandard == "" {
			return ""
		}
		return "-std=" + cStandard
	}
	if cppStandard == "" {
		return ""
	}
	return "-std=" + cppStandard
}

func optimizationFlag(level string) string {
	switch level {
	case "none":
		return "-O0"
	case "size":
		return "-Os"
	case "max":
		return "-O3"
	default:
		return "-O2"
	}
}

// cpuFlag maps a module's abstract CPUExtension to a gcc machine flag. The
// table is small and explicit rather than derived, since the spec leaves the
// exact mapping to the driver.
func cpuFlag(ext string) string {
	switch strings.ToLower(ext) {
	case "":
		return ""
	case "avx2":
		return "-mavx2"
	case "avx":
		return "-mavx"
	case "sse4.2", "sse42":
		return "-msse4.2"
	case "neon":
		return "-mfpu=neon"
	default:
		return "-march=" + ext
	}
}

// Linker is the GCC-family linker/archiver driver (§4.9, "GCC-family linker
// driver").
type Linker struct {
	LookPath func(string) (string, error)
}

func (l Linker) lookPath(name string) (string, error) {
	if l.LookPath != nil {
		return l.LookPath(name)
	}
	return exec.LookPath(name)
}

// Argv builds the link- or archive-step argument list.
func (l Linker) Argv(s driver.LinkerSettings) ([]string, error) {
	if s.Kind == driver.LinkStaticLibraryArchive {
		argv := []string{"ar", "rcs", s.OutputPath}
		argv = append(argv, s.ObjectPaths...)
		return argv, nil
	}

	argv := []string{"g++", "-o", s.OutputPath}
	argv = append(argv, s.ObjectPaths...)
	for _, p := range s.LibraryPaths {
		argv = append(argv, "-L"+p)
	}
	for _, lib := range s.Libraries {
		if filepath.IsAbs(lib) {
			argv = append(argv, lib)
		} else {
			argv = append(argv, "-l"+lib)
		}
	}
	if s.Kind == driver.LinkSharedLibrary {
		argv = append(argv, "-shared")
	}
	argv = append(argv, s.LinkerFlags...)
	if s.EnableDebugInfo {
		argv = append(argv, "-g")
	}
	return argv, nil
}

// IsAvailable reports whether this driver can target p (§4.9,
// "Availability").
func (l Linker) IsAvailable(p platform.Platform) bool {
	if p.Family() != platform.FamilyUnix {
		return false
	}
	_, err := l.lookPath("g++")
	return err == nil
}
