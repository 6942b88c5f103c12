package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/yldrefruz/ebuild/internal/driver/gcc"
	"github.com/yldrefruz/ebuild/internal/ebuildtest"
	"github.com/yldrefruz/ebuild/internal/loader"
	"github.com/yldrefruz/ebuild/internal/platform"
	"github.com/yldrefruz/ebuild/internal/registry"
	"github.com/yldrefruz/ebuild/internal/toolchain"
)

func testEnvironment(t *testing.T, l loader.Loader) *environment {
	t.Helper()
	platforms := registry.New[platform.Platform]()
	for _, p := range platform.Builtins() {
		if err := platforms.Register(p.Name, p); err != nil {
			t.Fatal(err)
		}
	}
	platforms.Freeze()

	toolchains := registry.New[toolchain.Toolchain]()
	tc := toolchain.Toolchain{
		Name:     "Gcc",
		Compiler: gcc.Compiler{LookPath: func(string) (string, error) { return "/usr/bin/g++", nil }},
		Linker:   gcc.Linker{LookPath: func(string) (string, error) { return "/usr/bin/g++", nil }},
	}
	if err := toolchains.Register(tc.Name, tc); err != nil {
		t.Fatal(err)
	}
	toolchains.Freeze()

	return &environment{platforms: platforms, toolchains: toolchains, loader: l}
}

func TestCmdBuildRejectsMissingModulePath(t *testing.T) {
	e := testEnvironment(t, ebuildtest.MapLoader{})
	err := cmdBuild(context.Background(), e, nil)
	if err == nil {
		t.Fatal("cmdBuild() with no positional args = nil, want a usage error")
	}
	if _, ok := err.(*usageError); !ok {
		t.Errorf("cmdBuild() err = %T, want *usageError", err)
	}
}

func TestCmdCheckRequiresCircularDependencySubverb(t *testing.T) {
	e := testEnvironment(t, ebuildtest.MapLoader{})
	err := cmdCheck(context.Background(), e, []string{"/some/module"})
	if _, ok := err.(*usageError); !ok {
		t.Errorf("cmdCheck() without the circular-dependency subverb err = %v (%T), want *usageError", err, err)
	}
}

func TestCmdPropertyPrintsEffectiveIncludes(t *testing.T) {
	root, _ := filepath.Abs("prop.module")
	l := ebuildtest.MapLoader{
		root: {{
			Name: "prop", Type: "StaticLibrary", CppStandard: "c++17", Sources: []string{"a.cpp"},
			Includes: loader.AccessLimited{Public: []string{"include"}},
		}},
	}
	e := testEnvironment(t, l)
	if err := cmdProperty(context.Background(), e, []string{root, "includes"}); err != nil {
		t.Fatalf("cmdProperty() = %v", err)
	}
}

func TestCmdPropertyRejectsUnknownProperty(t *testing.T) {
	root, _ := filepath.Abs("prop2.module")
	l := ebuildtest.MapLoader{
		root: {{Name: "prop2", Type: "StaticLibrary", CppStandard: "c++17", Sources: []string{"a.cpp"}}},
	}
	e := testEnvironment(t, l)
	err := cmdProperty(context.Background(), e, []string{root, "bogus"})
	if _, ok := err.(*usageError); !ok {
		t.Errorf("cmdProperty() with an unknown property err = %v (%T), want *usageError", err, err)
	}
}

func TestOptionFlagsSetParsesKeyValue(t *testing.T) {
	o := optionFlags{}
	if err := o.Set("variant=shared"); err != nil {
		t.Fatalf("Set() = %v", err)
	}
	if o["variant"] != "shared" {
		t.Errorf("option map = %v, want variant=shared", o)
	}
	if err := o.Set("no-equals-sign"); err == nil {
		t.Error("Set() on a value with no '=' = nil, want an error")
	}
}
