package toolchain

import (
	"errors"
	"testing"

	"github.com/yldrefruz/ebuild/internal/driver"
	"github.com/yldrefruz/ebuild/internal/module"
	"github.com/yldrefruz/ebuild/internal/platform"
	"github.com/yldrefruz/ebuild/internal/registry"
)

type fakeDriver struct {
	available map[string]bool
}

func (f fakeDriver) Argv(driver.CompilerSettings) ([]string, error) { return nil, nil }
func (f fakeDriver) IsAvailable(p platform.Platform) bool           { return f.available[p.Name] }

type fakeLinker struct{ available map[string]bool }

func (f fakeLinker) Argv(driver.LinkerSettings) ([]string, error) { return nil, nil }
func (f fakeLinker) IsAvailable(p platform.Platform) bool         { return f.available[p.Name] }

func newRegistry(t *testing.T) *registry.Registry[Toolchain] {
	t.Helper()
	r := registry.New[Toolchain]()
	gcc := Toolchain{
		Name:     "Gcc",
		Compiler: fakeDriver{available: map[string]bool{"Unix": true}},
		Linker:   fakeLinker{available: map[string]bool{"Unix": true}},
	}
	msvc := Toolchain{
		Name:     "Msvc",
		Compiler: fakeDriver{available: map[string]bool{"Win32": true}},
		Linker:   fakeLinker{available: map[string]bool{"Win32": true}},
	}
	if err := r.Register(gcc.Name, gcc); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(msvc.Name, msvc); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestSelectUsesPlatformDefault(t *testing.T) {
	s := Selector{Registry: newRegistry(t)}
	m := module.New()
	m.SetName("x")
	m.SetType(module.TypeExecutable)

	tc, err := s.Select(m, "", "", platform.Unix)
	if err != nil {
		t.Fatalf("Select() = %v", err)
	}
	if tc.Name != "Gcc" {
		t.Errorf("Select() = %q, want Gcc", tc.Name)
	}
}

func TestSelectModuleHintWins(t *testing.T) {
	s := Selector{Registry: newRegistry(t)}
	m := module.New()
	m.SetName("x")
	m.SetType(module.TypeStaticLibrary)

	// Target is Unix and the hint names Gcc, which is compatible with Unix,
	// so Select returns the hinted toolchain as the first candidate. Gcc is
	// also the Unix default here, so this does not tell the hint apart from
	// the platform default.
	tc, err := s.Select(m, "Gcc", "", platform.Unix)
	if err != nil {
		t.Fatalf("Select() = %v", err)
	}
	if tc.Name != "Gcc" {
		t.Errorf("Select() = %q, want Gcc (module hint)", tc.Name)
	}
}

func TestSelectIncompatibleReturnsError(t *testing.T) {
	s := Selector{Registry: newRegistry(t)}
	m := module.New()
	m.SetName("x")
	m.SetType(module.TypeExecutable)

	_, err := s.Select(m, "Msvc", "", platform.Unix)
	var incompat *ToolchainIncompatible
	if !errors.As(err, &incompat) {
		t.Fatalf("Select() = %v, want *ToolchainIncompatible", err)
	}
}

func TestCanCreateRequiresResourceCompilerForWindowed(t *testing.T) {
	tc := Toolchain{
		Name:     "Msvc",
		Compiler: fakeDriver{available: map[string]bool{"Win32": true}},
		Linker:   fakeLinker{available: map[string]bool{"Win32": true}},
	}
	m := module.New()
	m.SetName("app")
	m.SetType(module.TypeExecutableWindowed)

	if tc.CanCreate(m, platform.Win32) {
		t.Error("CanCreate() = true without a resource compiler, want false")
	}
}

func TestLinkKindFor(t *testing.T) {
	cases := []struct {
		in   module.Type
		want driver.LinkKind
	}{
		{module.TypeStaticLibrary, driver.LinkStaticLibraryArchive},
		{module.TypeSharedLibrary, driver.LinkSharedLibrary},
		{module.TypeExecutable, driver.LinkExecutable},
		{module.TypeExecutableWindowed, driver.LinkExecutable},
	}
	for _, c := range cases {
		if got := LinkKindFor(c.in); got != c.want {
			t.Errorf("LinkKindFor(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
