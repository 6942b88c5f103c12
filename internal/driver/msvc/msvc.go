// Package msvc implements the MSVC-family compiler/linker/archiver/resource
// drivers (§4.9), argument-order-compatible with cl.exe/link.exe/lib.exe/rc.exe.
package msvc

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/yldrefruz/ebuild/internal/driver"
	"github.com/yldrefruz/ebuild/internal/platform"
)

// Compiler is the MSVC-family compiler driver (§4.9, "MSVC-family compiler
// driver").
type Compiler struct {
	LookPath func(string) (string, error)
}

func (c Compiler) lookPath(name string) (string, error) {
	if c.LookPath != nil {
		return c.LookPath(name)
	}
	return exec.LookPath(name)
}

// Argv builds the compile-step argument list in the order the spec
// prescribes (§4.9).
func (c Compiler) Argv(s driver.CompilerSettings) ([]string, error) {
	argv := []string{"cl.exe", "/c", "/Fo" + s.OutputPath}
	argv = append(argv, optimizationFlag(s.Optimization))
	if s.EnableDebugSymbols {
		argv = append(argv, "/Zi")
	}
	if std := standardFlag(s.CppStandard); std != "" {
		argv = append(argv, std)
	}
	for _, inc := range s.Includes {
		argv = append(argv, "/I"+inc)
	}
	for _, d := range s.Definitions {
		if d.Value == "" {
			argv = append(argv, "/D"+d.Name)
		} else {
			argv = append(argv, fmt.Sprintf("/D%s=%s", d.Name, d.Value))
		}
	}
	for _, f := range s.ForcedIncludes {
		argv = append(argv, "/FI"+f)
	}
	if s.EnableExceptions {
		argv = append(argv, "/EHsc")
	}
	if s.EnableRTTI {
		argv = append(argv, "/GR")
	} else {
		argv = append(argv, "/GR-")
	}
	if s.EnableFastFP {
		argv = append(argv, "/fp:fast")
	}
	if cpu := cpuFlag(s.CPUExtension); cpu != "" {
		argv = append(argv, cpu)
	}
	argv = append(argv, s.PlatformFlags...)
	argv = append(argv, s.ExtraFlags...)
	argv = append(argv, s.SourcePath)
	return argv, nil
}

// IsAvailable reports whether this driver can target p: Win32 only, and
// cl.exe discoverable on PATH (§4.9, "Availability").
func (c Compiler) IsAvailable(p platform.Platform) bool {
	if p.Family() != platform.FamilyWin32 {
		return false
	}
	_, err := c.lookPath("cl.exe")
	return err == nil
}

func standardFlag(cppStandard string) string {
	if cppStandard == "" {
		return ""
	}
	return "/std:" + cppStandard
}

func optimizationFlag(level string) string {
	switch level {
	case "none":
		return "/Od"
	case "size":
		return "/O1"
	default:
		return "/O2"
	}
}

// cpuFlag maps a module's abstract CPUExtension to an MSVC /arch: flag.
func cpuFlag(ext string) string {
	switch strings.ToLower(ext) {
	case "":
		return ""
	case "avx2":
		return "/arch:AVX2"
	case "avx":
		return "/arch:AVX"
	case "sse2":
		return "/arch:SSE2"
	default:
		return "/arch:" + ext
	}
}

// Linker is the MSVC-family linker/archiver driver (§4.9, "MSVC-family
// linker driver").
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
		argv := []string{"lib.exe", "/OUT:" + s.OutputPath}
		argv = append(argv, s.ObjectPaths...)
		return argv, nil
	}

	argv := []string{"link.exe", "/OUT:" + s.OutputPath}
	argv = append(argv, s.ObjectPaths...)
	for _, p := range s.LibraryPaths {
		argv = append(argv, "/LIBPATH:"+p)
	}
	argv = append(argv, s.Libraries...)
	if s.Kind == driver.LinkSharedLibrary {
		argv = append(argv, "/DLL")
	}
	if s.EnableDebugInfo {
		argv = append(argv, "/DEBUG")
	}
	for _, lib := range s.DelayLoad {
		argv = append(argv, "/DELAYLOAD:"+lib)
	}
	argv = append(argv, s.LinkerFlags...)
	return argv, nil
}

// IsAvailable reports whether this driver can target p (§4.9,
// "Availability").
func (l Linker) IsAvailable(p platform.Platform) bool {
	if p.Family() != platform.FamilyWin32 {
		return false
	}
	_, err := l.lookPath("link.exe")
	return err == nil
}

// ResourceCompiler is the Windows-family resource compiler (§4.7, "a
// toolchain may additionally offer a resource compiler factory"), producing
// a .res object to feed into the link task.
type ResourceCompiler struct {
	LookPath func(string) (string, error)
}

func (r ResourceCompiler) lookPath(name string) (string, error) {
	if r.LookPath != nil {
		return r.LookPath(name)
	}
	return exec.LookPath(name)
}

// Argv builds the resource-compile argument list. The output path is taken
// from s.OutputPath as given; the planner names it "<module-name>.res" and
// feeds it to the subsequent link task (SPEC_FULL.md §C, resource-compiler
// filename convention).
func (r ResourceCompiler) Argv(s driver.ResourceSettings) ([]string, error) {
	argv := []string{"rc.exe", "/fo", s.OutputPath}
	for _, inc := range s.Includes {
		argv = append(argv, "/I"+inc)
	}
	for _, d := range s.Definitions {
		if d.Value == "" {
			argv = append(argv, "/D"+d.Name)
		} else {
			argv = append(argv, fmt.Sprintf("/D%s=%s", d.Name, d.Value))
		}
	}
	argv = append(argv, s.SourcePath)
	return argv, nil
}

// IsAvailable reports whether rc.exe is usable for p.
func (r ResourceCompiler) IsAvailable(p platform.Platform) bool {
	if p.Family() != platform.FamilyWin32 {
		return false
	}
	_, err := r.lookPath("rc.exe")
	return err == nil
}
