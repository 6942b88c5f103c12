package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "module.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestYAMLLoaderParsesModule(t *testing.T) {
	path := writeTemp(t, `
modules:
  - name: mylib
    type: StaticLibrary
    cppStandard: c++17
    sources: [a.cpp, b.cpp]
    includes:
      public: [include]
      private: [src]
    definitions:
      public:
        - name: MYLIB_EXPORT
    dependencies:
      public:
        - path: ../other/module.yaml
`)

	raws, err := YAMLLoader{}.Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if len(raws) != 1 {
		t.Fatalf("Load() returned %d modules, want 1", len(raws))
	}
	want := RawModule{
		Name:        "mylib",
		Type:        "StaticLibrary",
		CppStandard: "c++17",
		Sources:     []string{"a.cpp", "b.cpp"},
		Includes:    AccessLimited{Public: []string{"include"}, Private: []string{"src"}},
		Definitions: DefinitionsAccessLimited{Public: []Definition{{Name: "MYLIB_EXPORT"}}},
		Dependencies: DependenciesAccessLimited{
			Public: []DependencyRef{{Path: "../other/module.yaml"}},
		},
	}
	if diff := cmp.Diff(want, raws[0]); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestYAMLLoaderReturnsMultipleModules(t *testing.T) {
	path := writeTemp(t, `
modules:
  - name: a
    type: StaticLibrary
    cppStandard: c++17
  - name: b
    type: StaticLibrary
    cppStandard: c++17
`)
	raws, err := YAMLLoader{}.Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if len(raws) != 2 {
		t.Fatalf("Load() returned %d modules, want 2", len(raws))
	}
}

func TestYAMLLoaderMissingFile(t *testing.T) {
	_, err := YAMLLoader{}.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() = nil error, want ModuleFileLoadError")
	}
	var loadErr *ModuleFileLoadError
	if !asModuleFileLoadError(err, &loadErr) {
		t.Fatalf("Load() = %v, want *ModuleFileLoadError", err)
	}
}

func TestYAMLLoaderNoModulesDeclared(t *testing.T) {
	path := writeTemp(t, "modules: []\n")
	_, err := YAMLLoader{}.Load(path)
	if err == nil {
		t.Fatal("Load() = nil error, want error for empty modules list")
	}
}

func asModuleFileLoadError(err error, target **ModuleFileLoadError) bool {
	if e, ok := err.(*ModuleFileLoadError); ok {
		*target = e
		return true
	}
	return false
}
