package option

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type holder struct {
	Shared      bool   `ebuild:"name=shared,desc=build a shared library,changes_result_binary"`
	ToolsetName string `ebuild:"name=toolset,required"`
	Jobs        int    `ebuild:"name=jobs"`
	untagged    string
}

func TestDescribeIgnoresUntaggedFields(t *testing.T) {
	descs, err := Describe(&holder{})
	if err != nil {
		t.Fatalf("Describe() = %v", err)
	}
	if len(descs) != 3 {
		t.Fatalf("Describe() returned %d descriptors, want 3: %+v", len(descs), descs)
	}
}

func TestBindRequiredMissing(t *testing.T) {
	h := &holder{}
	descs, err := Describe(h)
	if err != nil {
		t.Fatalf("Describe() = %v", err)
	}
	_, err = Bind(h, descs, map[string]string{})
	if _, ok := err.(*MissingOption); !ok {
		t.Fatalf("Bind() = %v, want *MissingOption", err)
	}
}

func TestBindParsesAndSetsFields(t *testing.T) {
	h := &holder{}
	descs, err := Describe(h)
	if err != nil {
		t.Fatalf("Describe() = %v", err)
	}
	_, err = Bind(h, descs, map[string]string{
		"shared":  "yes",
		"toolset": "clang",
		"jobs":    "4",
	})
	if err != nil {
		t.Fatalf("Bind() = %v", err)
	}
	want := &holder{Shared: true, ToolsetName: "clang", Jobs: 4}
	if diff := cmp.Diff(want, h, cmpopts.IgnoreUnexported(holder{})); diff != "" {
		t.Errorf("Bind() mismatch (-want +got):\n%s", diff)
	}
}

func TestBindBadValue(t *testing.T) {
	h := &holder{}
	descs, err := Describe(h)
	if err != nil {
		t.Fatalf("Describe() = %v", err)
	}
	_, err = Bind(h, descs, map[string]string{"toolset": "clang", "jobs": "nope"})
	if _, ok := err.(*BadOptionValue); !ok {
		t.Fatalf("Bind() = %v, want *BadOptionValue", err)
	}
}

func TestDescribeBadName(t *testing.T) {
	type bad struct {
		X bool `ebuild:"name=1bad"`
	}
	_, err := Describe(&bad{})
	if _, ok := err.(*BadOptionName); !ok {
		t.Fatalf("Describe() = %v, want *BadOptionName", err)
	}
}

func TestVariantIDStableUnderMapOrder(t *testing.T) {
	h1 := &holder{}
	descs, _ := Describe(h1)
	b1, err := Bind(h1, descs, map[string]string{"shared": "1", "toolset": "gcc"})
	if err != nil {
		t.Fatalf("Bind() = %v", err)
	}

	h2 := &holder{}
	b2, err := Bind(h2, descs, map[string]string{"toolset": "gcc", "shared": "1"})
	if err != nil {
		t.Fatalf("Bind() = %v", err)
	}

	id1, id2 := VariantID(b1), VariantID(b2)
	if id1 != id2 {
		t.Errorf("VariantID() = %q and %q, want equal", id1, id2)
	}
}

func TestVariantIDIgnoresNonBinaryOptions(t *testing.T) {
	h1 := &holder{}
	descs, _ := Describe(h1)
	b1, _ := Bind(h1, descs, map[string]string{"shared": "1", "toolset": "gcc", "jobs": "1"})
	b2, _ := Bind(h1, descs, map[string]string{"shared": "1", "toolset": "clang", "jobs": "8"})
	if VariantID(b1) != VariantID(b2) {
		t.Errorf("VariantID() differed despite only non-binary options changing")
	}
}
