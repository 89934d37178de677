package value

import "testing"

func TestDictInsertionOrder(t *testing.T) {
	d := NewDict()
	d.Set(FromString("b"), FromInt(1))
	d.Set(FromString("a"), FromInt(2))
	d.Set(FromString("c"), FromInt(3))

	keys := d.Keys()
	if len(keys) != 3 {
		t.Fatalf("unexpected key count %d", len(keys))
	}
	for i, want := range []string{"b", "a", "c"} {
		if keys[i].String() != want {
			t.Fatalf("key %d: got %q, want %q", i, keys[i].String(), want)
		}
	}

	// Replacing keeps the original position.
	d.Set(FromString("b"), FromInt(9))
	if d.Keys()[0].String() != "b" {
		t.Fatalf("replacement moved the key: %v", d.Keys())
	}
	if v, _ := d.Get(FromString("b")); !v.Equal(FromInt(9)) {
		t.Fatalf("replacement lost the value: %s", v)
	}
	if d.Len() != 3 {
		t.Fatalf("replacement changed the length: %d", d.Len())
	}
}

func TestDictNumericTowerKeys(t *testing.T) {
	d := NewDict()
	d.Set(FromInt(1), FromString("int"))

	if v, ok := d.Get(FromFloat(1.0)); !ok || v.String() != "int" {
		t.Fatalf("float key did not find the int entry: %v %v", v, ok)
	}
	if v, ok := d.Get(FromBool(true)); !ok || v.String() != "int" {
		t.Fatalf("bool key did not find the int entry: %v %v", v, ok)
	}

	d.Set(FromFloat(1.0), FromString("float"))
	if d.Len() != 1 {
		t.Fatalf("tower key created a second entry: %d", d.Len())
	}
	if v, _ := d.Get(FromInt(1)); v.String() != "float" {
		t.Fatalf("tower key did not replace: %s", v)
	}
}

func TestDictGetMissing(t *testing.T) {
	d := NewDict()
	v, ok := d.Get(FromString("nope"))
	if ok {
		t.Fatal("expected miss")
	}
	if !v.IsUndefined() {
		t.Fatalf("miss should return undefined, got %s", v.Kind())
	}
}

func TestDictEqualIgnoresOrder(t *testing.T) {
	a := NewDict()
	a.Set(FromString("x"), FromInt(1))
	a.Set(FromString("y"), FromInt(2))

	b := NewDict()
	b.Set(FromString("y"), FromInt(2))
	b.Set(FromString("x"), FromInt(1))

	if !a.Equal(b) {
		t.Fatal("dicts with the same entries should be equal")
	}

	b.Set(FromString("y"), FromInt(3))
	if a.Equal(b) {
		t.Fatal("dicts with different values should not be equal")
	}
}

func TestDictString(t *testing.T) {
	d := NewDict()
	d.Set(FromString("a"), FromInt(1))
	d.Set(FromString("b"), FromString("x"))

	if got, want := d.String(), `{"a": 1, "b": "x"}`; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got, want := NewDict().String(), "{}"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDictExport(t *testing.T) {
	d := NewDict()
	d.Set(FromString("n"), FromInt(1))
	d.Set(FromString("s"), FromString("x"))

	out, ok := d.Export().(map[string]any)
	if !ok {
		t.Fatalf("string-keyed dict should export map[string]any, got %T", d.Export())
	}
	if out["n"] != int64(1) || out["s"] != "x" {
		t.Fatalf("unexpected export: %v", out)
	}

	d.Set(FromInt(7), FromString("seven"))
	if _, ok := d.Export().(map[any]any); !ok {
		t.Fatalf("mixed-keyed dict should export map[any]any, got %T", d.Export())
	}
}

func TestDictClone(t *testing.T) {
	d := NewDict()
	d.Set(FromString("a"), FromInt(1))

	c := d.Clone()
	c.Set(FromString("b"), FromInt(2))

	if d.Len() != 1 || c.Len() != 2 {
		t.Fatalf("clone is not independent: %d vs %d", d.Len(), c.Len())
	}
}

func TestSetDeduplication(t *testing.T) {
	s := NewSet()
	s.Add(FromInt(1))
	s.Add(FromFloat(1.0))
	s.Add(FromBool(true))
	s.Add(FromInt(2))

	if s.Len() != 2 {
		t.Fatalf("tower values should collapse, got %d elements", s.Len())
	}
	if !s.Has(FromFloat(1.0)) || !s.Has(FromInt(2)) {
		t.Fatalf("membership broken: %s", s.String())
	}
	if s.Has(FromInt(3)) {
		t.Fatal("unexpected member")
	}
}

func TestSetString(t *testing.T) {
	if got, want := NewSet().String(), "set()"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	s := NewSet()
	s.Add(FromInt(1))
	s.Add(FromString("x"))
	if got, want := s.String(), `{1, "x"}`; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSetEqual(t *testing.T) {
	a := NewSet()
	a.Add(FromInt(1))
	a.Add(FromInt(2))

	b := NewSet()
	b.Add(FromInt(2))
	b.Add(FromInt(1))

	if !a.Equal(b) {
		t.Fatal("sets with the same members should be equal")
	}

	b.Add(FromInt(3))
	if a.Equal(b) {
		t.Fatal("sets of different size should not be equal")
	}
}

func TestMergeMaps(t *testing.T) {
	a := NewDict()
	a.Set(FromString("x"), FromInt(1))
	a.Set(FromString("y"), FromInt(2))

	b := NewDict()
	b.Set(FromString("y"), FromInt(20))
	b.Set(FromString("z"), FromInt(30))

	merged := MergeMaps(FromDict(a), FromDict(b))
	d, ok := merged.AsDict()
	if !ok {
		t.Fatalf("merge did not produce a mapping: %s", merged.Kind())
	}
	// Later sources win; order follows first appearance.
	if got, want := d.String(), `{"x": 1, "y": 20, "z": 30}`; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	// The inputs stay untouched.
	if v, _ := a.Get(FromString("y")); !v.Equal(FromInt(2)) {
		t.Fatalf("merge mutated a source: %s", a.String())
	}

	// A single source passes through unchanged.
	single := MergeMaps(FromDict(a))
	sd, _ := single.AsDict()
	if sd != a {
		t.Fatal("single source should not be copied")
	}

	// Non-mappings are skipped.
	skipped := MergeMaps(FromDict(a), FromInt(42))
	kd, _ := skipped.AsDict()
	if kd.Len() != 2 {
		t.Fatalf("non-mapping source should be skipped: %s", kd.String())
	}
}
