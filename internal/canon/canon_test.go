package canon

import "testing"

func TestMarshalObjectPreservesOrder(t *testing.T) {
	obj := Object{
		P("b", 1),
		P("a", 2),
	}
	s, err := Marshal(obj)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if s != `{"b":1,"a":2}` {
		t.Errorf("expected insertion order preserved, got %s", s)
	}
}

func TestMarshalSortedMapIsAlphabetical(t *testing.T) {
	m := map[string]any{"zeta": 1, "alpha": 2}
	s, err := Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if s != `{"alpha":2,"zeta":1}` {
		t.Errorf("expected alphabetical fallback order, got %s", s)
	}
}

func TestMarshalFloatShortestForm(t *testing.T) {
	s, err := Marshal(10.0)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if s != "10" {
		t.Errorf("expected shortest decimal '10', got %s", s)
	}

	s, err = Marshal(10.5)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if s != "10.5" {
		t.Errorf("expected '10.5', got %s", s)
	}
}

func TestMarshalStringEscaping(t *testing.T) {
	s, err := Marshal("line1\nline2\"quoted\"")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `"line1\nline2\"quoted\""`
	if s != want {
		t.Errorf("got %s want %s", s, want)
	}
}

func TestHashDeterministic(t *testing.T) {
	obj := Object{P("x", "y"), P("n", 3)}
	h1, err := HashHex(obj)
	if err != nil {
		t.Fatalf("HashHex: %v", err)
	}
	h2, err := HashHex(Object{P("x", "y"), P("n", 3)})
	if err != nil {
		t.Fatalf("HashHex: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected deterministic hash, got %s vs %s", h1, h2)
	}
}

func TestHashChangesWithKeyOrder(t *testing.T) {
	h1, _ := HashHex(Object{P("a", 1), P("b", 2)})
	h2, _ := HashHex(Object{P("b", 2), P("a", 1)})
	if h1 == h2 {
		t.Fatal("expected key order to affect the hash, since objects are not re-sorted")
	}
}

func TestMarshalNestedArrayAndObject(t *testing.T) {
	obj := Object{
		P("ops", []any{
			Object{P("insert", "hi")},
			Object{P("delete", 3)},
		}),
	}
	s, err := Marshal(obj)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"ops":[{"insert":"hi"},{"delete":3}]}`
	if s != want {
		t.Errorf("got %s want %s", s, want)
	}
}

func TestMarshalUnsupportedType(t *testing.T) {
	type weird struct{}
	if _, err := Marshal(weird{}); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}
