package lexokey

import "testing"

// TestOrderMatchesNumeric verifies that string(Key(a)) < string(Key(b))
// lexicographically whenever a < b, for representable values.
func TestOrderMatchesNumeric(t *testing.T) {
	pairs := [][2]int64{{0, 1}, {9, 10}, {99, 100}, {0, 9999999999999999}, {42, 43}}

	for _, p := range pairs {
		a, err := FromInt64(p[0])
		if err != nil {
			t.Fatal(err)
		}
		b, err := FromInt64(p[1])
		if err != nil {
			t.Fatal(err)
		}

		if !(a.String() < b.String()) {
			t.Errorf("String(%d)=%q is not < String(%d)=%q", p[0], a.String(), p[1], b.String())
		}
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	cases := []string{"abc", "-1", "1.5", "00000000000000001x", "99999999999999999999999"}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Errorf("Parse(%q) should have failed", c)
		}
	}
}

func TestParseEmptyIsZero(t *testing.T) {
	k, err := Parse("")
	if err != nil {
		t.Fatal(err)
	}
	if k != Zero() {
		t.Errorf("Parse(\"\") = %v, want Zero", k)
	}
}

func TestArithmetic(t *testing.T) {
	k := MustParse("0000000000000010")
	if got := k.Incr().String(); got != "0000000000000011" {
		t.Errorf("Incr = %s", got)
	}
	if got := k.Decr().String(); got != "0000000000000009" {
		t.Errorf("Decr = %s", got)
	}
	if got := k.Add(5).String(); got != "0000000000000015" {
		t.Errorf("Add(5) = %s", got)
	}
}

func TestArithmeticOverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on overflow")
		}
	}()

	k := MustParse("9999999999999999")
	_ = k.Incr()
}

func TestMatch(t *testing.T) {
	if !Match("0000000000000042") {
		t.Error("expected match")
	}
	if Match("42") {
		t.Error("expected no match for short string")
	}
	if Match("000000000000004x") {
		t.Error("expected no match for non-digit")
	}
}
