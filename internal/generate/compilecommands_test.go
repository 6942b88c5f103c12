package generate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yldrefruz/ebuild/internal/driver"
	"github.com/yldrefruz/ebuild/internal/driver/gcc"
	"github.com/yldrefruz/ebuild/internal/graph"
	"github.com/yldrefruz/ebuild/internal/module"
	"github.com/yldrefruz/ebuild/internal/orchestrate"
	"github.com/yldrefruz/ebuild/internal/toolchain"
)

func testPlan() *orchestrate.Plan {
	m := module.New()
	m.SetName("app")
	m.SetType(module.TypeExecutable)
	key := graph.NodeKey{Path: "/abs/app.module"}
	node := &graph.Node{Key: key, Module: m}
	return &orchestrate.Plan{
		Units: map[graph.NodeKey]*orchestrate.Unit{
			key: {
				Node:      node,
				Toolchain: toolchain.Toolchain{Name: "Gcc", Compiler: gcc.Compiler{}, Linker: gcc.Linker{}},
				Compiles: []*orchestrate.CompileTask{
					{
						Node: node,
						Settings: driver.CompilerSettings{
							SourcePath:  "src/main with space.cpp",
							OutputPath:  "out/app/main.o",
							CppStandard: "c++17",
						},
					},
				},
			},
		},
		OrderedUnits: []graph.NodeKey{key},
	}
}

// multiModulePlan builds a Plan with several units keyed so that Go's
// native map iteration would almost certainly disagree with the declared
// OrderedUnits sequence, so a test relying on map order alone would be
// flaky rather than reliably green.
func multiModulePlan() *orchestrate.Plan {
	names := []string{"zz", "mm", "aa", "qq", "bb"}
	units := make(map[graph.NodeKey]*orchestrate.Unit, len(names))
	var order []graph.NodeKey
	for _, name := range names {
		m := module.New()
		m.SetName(name)
		m.SetType(module.TypeStaticLibrary)
		key := graph.NodeKey{Path: "/abs/" + name + ".module"}
		node := &graph.Node{Key: key, Module: m}
		units[key] = &orchestrate.Unit{
			Node:      node,
			Toolchain: toolchain.Toolchain{Name: "Gcc", Compiler: gcc.Compiler{}, Linker: gcc.Linker{}},
			Compiles: []*orchestrate.CompileTask{
				{
					Node: node,
					Settings: driver.CompilerSettings{
						SourcePath:  name + ".cpp",
						OutputPath:  "out/" + name + "/" + name + ".o",
						CppStandard: "c++17",
					},
				},
			},
		}
		order = append(order, key)
	}
	return &orchestrate.Plan{Units: units, OrderedUnits: order}
}

func TestCompileCommandsJSONShellQuotesSpaces(t *testing.T) {
	entries, err := CompileCommandsJSON(testPlan())
	if err != nil {
		t.Fatalf("CompileCommandsJSON() = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("CompileCommandsJSON() = %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.File != "src/main with space.cpp" {
		t.Errorf("File = %q", e.File)
	}
	if e.Directory != "out/app" {
		t.Errorf("Directory = %q, want out/app", e.Directory)
	}
	if !strings.Contains(e.Command, "'src/main with space.cpp'") {
		t.Errorf("Command = %q, want the spaced source path single-quoted", e.Command)
	}
}

func TestCompileCommandsJSONOrderIsStable(t *testing.T) {
	plan := multiModulePlan()
	var want []string
	for _, key := range plan.OrderedUnits {
		want = append(want, plan.Units[key].Node.Module.Name)
	}
	for i := 0; i < 20; i++ {
		entries, err := CompileCommandsJSON(plan)
		if err != nil {
			t.Fatalf("CompileCommandsJSON() = %v", err)
		}
		if len(entries) != len(want) {
			t.Fatalf("CompileCommandsJSON() = %d entries, want %d", len(entries), len(want))
		}
		var got []string
		for _, e := range entries {
			got = append(got, strings.TrimSuffix(filepath.Base(e.File), ".cpp"))
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("run %d: order mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestWriteCompileCommandsJSONAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compile_commands.json")
	entries := []CompileCommandsEntry{{Directory: "/d", Command: "g++ -c a.cpp", File: "a.cpp"}}
	if err := WriteCompileCommandsJSON(path, entries); err != nil {
		t.Fatalf("WriteCompileCommandsJSON() = %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() = %v", err)
	}
	var got []CompileCommandsEntry
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal() = %v", err)
	}
	if diff := cmp.Diff(entries, got); diff != "" {
		t.Errorf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteCompileCommandsJSONEmptyWritesEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compile_commands.json")
	if err := WriteCompileCommandsJSON(path, nil); err != nil {
		t.Fatalf("WriteCompileCommandsJSON() = %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() = %v", err)
	}
	if diff := cmp.Diff("[]\n", string(b)); diff != "" {
		t.Errorf("content mismatch (-want +got):\n%s", diff)
	}
}
