package registry

import "testing"

func TestRegisterDuplicate(t *testing.T) {
	r := New[int]()
	if err := r.Register("gcc", 1); err != nil {
		t.Fatalf("Register() = %v, want nil", err)
	}
	err := r.Register("gcc", 2)
	if _, ok := err.(*DuplicateName); !ok {
		t.Fatalf("Register() = %v, want *DuplicateName", err)
	}
}

func TestClearAllowsReRegister(t *testing.T) {
	r := New[int]()
	if err := r.Register("gcc", 1); err != nil {
		t.Fatalf("Register() = %v, want nil", err)
	}
	r.Clear()
	if err := r.Register("gcc", 2); err != nil {
		t.Fatalf("Register() after Clear() = %v, want nil", err)
	}
}

func TestGetNotFound(t *testing.T) {
	r := New[int]()
	if _, err := r.Get("missing"); err == nil {
		t.Fatalf("Get(missing) = nil error, want *NotFound")
	}
}

func TestGetByTypeAmbiguous(t *testing.T) {
	r := New[int]()
	r.Register("a", 1)
	r.Register("b", 1)
	if _, err := r.GetByType(func(v int) bool { return v == 1 }); err == nil {
		t.Fatalf("GetByType() = nil error for ambiguous match, want *NotFound")
	}
}

func TestEnumerateOrder(t *testing.T) {
	r := New[string]()
	r.Register("c", "C")
	r.Register("a", "A")
	r.Register("b", "B")
	got := r.Enumerate()
	want := []string{"C", "A", "B"}
	if len(got) != len(want) {
		t.Fatalf("Enumerate() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Enumerate()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRegisterAfterFreezePanics(t *testing.T) {
	r := New[int]()
	r.Freeze()
	defer func() {
		if recover() == nil {
			t.Fatalf("Register() after Freeze() did not panic")
		}
	}()
	r.Register("gcc", 1)
}
