// Package platform implements the target/host platform model (§4.2):
// host and target capabilities, and default-toolchain selection.
package platform

import "runtime"

// Platform exposes the capabilities a toolchain and module need to know
// about the system code is being compiled for.
type Platform struct {
	// Name is the registry key, e.g. "Unix" or "Win32".
	Name string

	// DefaultToolchainName is the toolchain selected when neither a
	// module-level hint nor a CLI override names one (§4.7).
	DefaultToolchainName string

	// Definitions are preprocessor defines auto-injected for every module
	// targeting this platform (e.g. "_WIN32" on Win32).
	Definitions []Definition

	// CompilerFlags are extra flags auto-injected for every module
	// targeting this platform, appended by the compiler driver after
	// platform definitions (§4.9, "platform flags").
	CompilerFlags []string

	// Architecture is the default CPU architecture for this platform, e.g.
	// "amd64". Individual builds may still target a different
	// architecture; this is only the platform's own default.
	Architecture string

	// family distinguishes the toolchain family a platform is compatible
	// with, used by driver Availability predicates (§4.9) without requiring
	// every driver to know every platform name.
	family Family
}

// Definition is a preprocessor define, optionally carrying a value
// (§3, "definitions (name, optional value)").
type Definition struct {
	Name  string
	Value string // empty means "defined with no value"
}

// Family groups platforms by the toolchain ecosystem they support.
type Family int

const (
	FamilyUnix Family = iota
	FamilyWin32
)

// IsHost reports whether p is the platform the engine itself is running on.
// Host-platform detection uses OS discrimination at startup (§4.2).
func (p Platform) IsHost() bool {
	return p.Name == HostName()
}

// Family reports which toolchain family this platform belongs to, used by
// driver Availability checks (§4.9).
func (p Platform) Family() Family {
	return p.family
}

// HostName returns the built-in platform name matching runtime.GOOS.
func HostName() string {
	if runtime.GOOS == "windows" {
		return "Win32"
	}
	return "Unix"
}

// Unix is the built-in platform for Linux/BSD/macOS-style targets, with
// "Gcc" as its default toolchain (§4.2).
var Unix = Platform{
	Name:                 "Unix",
	DefaultToolchainName: "Gcc",
	Definitions:          []Definition{{Name: "__UNIX__", Value: "1"}},
	Architecture:         "amd64",
	family:               FamilyUnix,
}

// Win32 is the built-in platform for Windows targets, with "Msvc" as its
// default toolchain (§4.2).
var Win32 = Platform{
	Name:                 "Win32",
	DefaultToolchainName: "Msvc",
	Definitions:          []Definition{{Name: "_WIN32", Value: "1"}, {Name: "WIN32", Value: "1"}},
	Architecture:         "amd64",
	family:               FamilyWin32,
}

// Builtins returns the built-in platforms in registration order, ready to
// be registered into an internal/registry.Registry[Platform] at bootstrap.
func Builtins() []Platform {
	return []Platform{Unix, Win32}
}
