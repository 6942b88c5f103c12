package graph

import (
	"path/filepath"
	"testing"

	"github.com/yldrefruz/ebuild/internal/ebuildtest"
	"github.com/yldrefruz/ebuild/internal/instance"
	"github.com/yldrefruz/ebuild/internal/loader"
	"github.com/yldrefruz/ebuild/internal/module"
	"github.com/yldrefruz/ebuild/internal/platform"
	"github.com/yldrefruz/ebuild/internal/registry"
)

func abs(t *testing.T, path string) string {
	t.Helper()
	a, err := filepath.Abs(path)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func newTestContext(l ebuildtest.MapLoader) *instance.Context {
	return &instance.Context{
		Loader:         l,
		Transformers:   registry.New[instance.Transformer](),
		HostPlatform:   platform.Unix,
		TargetPlatform: platform.Unix,
	}
}

func TestPublicPrivateIncludePropagation(t *testing.T) {
	p := abs(t, "p.module")
	c := abs(t, "c.module")

	l := ebuildtest.MapLoader{
		p: {{
			Name:        "P",
			Type:        "StaticLibrary",
			CppStandard: "c++17",
			Sources:     []string{"p.cpp"},
			Includes:    loader.AccessLimited{Public: []string{"/p/pub"}, Private: []string{"/p/priv"}},
		}},
		c: {{
			Name:        "C",
			Type:        "Executable",
			CppStandard: "c++17",
			Sources:     []string{"c.cpp"},
			Dependencies: loader.DependenciesAccessLimited{
				Public: []loader.DependencyRef{{Path: p}},
			},
		}},
	}

	b := &Builder{InstanceCtx: newTestContext(l), Cache: instance.NewCache()}
	g, cycles, err := b.Build(module.Reference{Path: c}, ModeBuild)
	if err != nil {
		t.Fatalf("Build() = %v", err)
	}
	if len(cycles) != 0 {
		t.Fatalf("Build() cycles = %v, want none", cycles)
	}
	g.Propagate()

	includes := g.Root.EffectiveIncludes()
	if !contains(includes, "/p/pub") {
		t.Errorf("EffectiveIncludes() = %v, want to contain /p/pub", includes)
	}
	if contains(includes, "/p/priv") {
		t.Errorf("EffectiveIncludes() = %v, want to NOT contain /p/priv", includes)
	}
}

func TestTransitivePublicPropagation(t *testing.T) {
	x := abs(t, "x.module")
	y := abs(t, "y.module")
	z := abs(t, "z.module")

	l := ebuildtest.MapLoader{
		z: {{Name: "Z", Type: "StaticLibrary", CppStandard: "c++17",
			Includes: loader.AccessLimited{Public: []string{"/z/pub"}}}},
		y: {{Name: "Y", Type: "StaticLibrary", CppStandard: "c++17",
			Dependencies: loader.DependenciesAccessLimited{Public: []loader.DependencyRef{{Path: z}}}}},
		x: {{Name: "X", Type: "Executable", CppStandard: "c++17",
			Dependencies: loader.DependenciesAccessLimited{Public: []loader.DependencyRef{{Path: y}}}}},
	}

	b := &Builder{InstanceCtx: newTestContext(l), Cache: instance.NewCache()}
	g, _, err := b.Build(module.Reference{Path: x}, ModeBuild)
	if err != nil {
		t.Fatalf("Build() = %v", err)
	}
	g.Propagate()

	includes := g.Root.EffectiveIncludes()
	if !contains(includes, "/z/pub") {
		t.Errorf("EffectiveIncludes() = %v, want /z/pub to propagate through Y", includes)
	}
}

func TestPrivateDependencyDoesNotReexport(t *testing.T) {
	x := abs(t, "x2.module")
	y := abs(t, "y2.module")
	z := abs(t, "z2.module")

	l := ebuildtest.MapLoader{
		z: {{Name: "Z", Type: "StaticLibrary", CppStandard: "c++17",
			Includes: loader.AccessLimited{Public: []string{"/z2/pub"}}}},
		y: {{Name: "Y", Type: "StaticLibrary", CppStandard: "c++17",
			Dependencies: loader.DependenciesAccessLimited{Private: []loader.DependencyRef{{Path: z}}}}},
		x: {{Name: "X", Type: "Executable", CppStandard: "c++17",
			Dependencies: loader.DependenciesAccessLimited{Public: []loader.DependencyRef{{Path: y}}}}},
	}

	b := &Builder{InstanceCtx: newTestContext(l), Cache: instance.NewCache()}
	g, _, err := b.Build(module.Reference{Path: x}, ModeBuild)
	if err != nil {
		t.Fatalf("Build() = %v", err)
	}
	g.Propagate()

	includes := g.Root.EffectiveIncludes()
	if contains(includes, "/z2/pub") {
		t.Errorf("EffectiveIncludes() = %v, want /z2/pub to NOT reach X (Y's dep on Z is private)", includes)
	}
}

func TestCircularDependencyCheckMode(t *testing.T) {
	root := abs(t, "root.module")
	other := abs(t, "other.module")

	l := ebuildtest.MapLoader{
		root: {{Name: "root", Type: "Executable", CppStandard: "c++17",
			Dependencies: loader.DependenciesAccessLimited{Public: []loader.DependencyRef{{Path: other}}}}},
		other: {{Name: "other", Type: "StaticLibrary", CppStandard: "c++17",
			Dependencies: loader.DependenciesAccessLimited{Public: []loader.DependencyRef{{Path: root}}}}},
	}

	b := &Builder{InstanceCtx: newTestContext(l), Cache: instance.NewCache()}
	_, cycles, err := b.Build(module.Reference{Path: root}, ModeCheck)
	if err != nil {
		t.Fatalf("Build(ModeCheck) = %v, want nil error", err)
	}
	if len(cycles) == 0 {
		t.Fatalf("Build(ModeCheck) found no cycle, want one")
	}
}

func TestCircularDependencyBuildModeAborts(t *testing.T) {
	root := abs(t, "root3.module")
	other := abs(t, "other3.module")

	l := ebuildtest.MapLoader{
		root: {{Name: "root", Type: "Executable", CppStandard: "c++17",
			Dependencies: loader.DependenciesAccessLimited{Public: []loader.DependencyRef{{Path: other}}}}},
		other: {{Name: "other", Type: "StaticLibrary", CppStandard: "c++17",
			Dependencies: loader.DependenciesAccessLimited{Public: []loader.DependencyRef{{Path: root}}}}},
	}

	b := &Builder{InstanceCtx: newTestContext(l), Cache: instance.NewCache()}
	_, _, err := b.Build(module.Reference{Path: root}, ModeBuild)
	if _, ok := err.(*CircularDependency); !ok {
		t.Fatalf("Build(ModeBuild) = %v, want *CircularDependency", err)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
