package module

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestJoinedIsFirstSeenWinsPublicThenPrivate(t *testing.T) {
	m := New()
	m.Includes.AddPublic("a")
	m.Includes.AddPrivate("a")
	m.Includes.AddPrivate("b")

	got := m.Includes.Joined(func(s string) string { return s })
	want := []string{"a", "b"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Joined() mismatch (-want +got):\n%s", diff)
	}
}

func TestPropagatedReturnsPublicOnly(t *testing.T) {
	m := New()
	m.Libraries.AddPublic("pub")
	m.Libraries.AddPrivate("priv")

	got := m.Libraries.Propagated()
	want := []string{"pub"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Propagated() mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateRequiresName(t *testing.T) {
	m := New()
	m.SetType(TypeExecutable)
	m.CppStandard = "c++17"
	if _, ok := m.Validate().(*InvalidModule); !ok {
		t.Fatalf("Validate() = %v, want *InvalidModule", m.Validate())
	}
}

func TestValidateRequiresType(t *testing.T) {
	m := New()
	m.SetName("x")
	m.CppStandard = "c++17"
	if _, ok := m.Validate().(*InvalidModule); !ok {
		t.Fatalf("Validate() = %v, want *InvalidModule", m.Validate())
	}
}

func TestValidateRequiresCppStandard(t *testing.T) {
	m := New()
	m.SetName("x")
	m.SetType(TypeExecutable)
	if _, ok := m.Validate().(*InvalidModule); !ok {
		t.Fatalf("Validate() = %v, want *InvalidModule", m.Validate())
	}
}

func TestFreezeRejectsInvalidModule(t *testing.T) {
	m := New()
	if err := m.Freeze(); err == nil {
		t.Fatal("Freeze() = nil, want error for an unnamed/untyped module")
	}
	if m.Frozen() {
		t.Error("Frozen() = true after a failed Freeze")
	}
}

func TestMutationAfterFreezePanics(t *testing.T) {
	m := New()
	m.SetName("x")
	m.SetType(TypeExecutable)
	m.CppStandard = "c++17"
	if err := m.Freeze(); err != nil {
		t.Fatalf("Freeze() = %v", err)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("AddSource() after Freeze did not panic")
		}
	}()
	m.AddSource("late.cpp")
}

func TestReferenceKeyOrdersOptionsDeterministically(t *testing.T) {
	a := Reference{Path: "p", Options: map[string]string{"b": "2", "a": "1"}}
	b := Reference{Path: "p", Options: map[string]string{"a": "1", "b": "2"}}
	if a.Key() != b.Key() {
		t.Errorf("Key() = %q and %q, want equal regardless of map iteration order", a.Key(), b.Key())
	}
}

func TestDefinitionKeyIgnoresValue(t *testing.T) {
	a := Definition{Name: "FOO", Value: "1"}
	b := Definition{Name: "FOO", Value: "2"}
	if a.Key() != b.Key() {
		t.Error("Key() should dedupe by name only, regardless of value")
	}
}
