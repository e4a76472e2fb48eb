package security

import "testing"

func TestHashValue_Deterministic(t *testing.T) {
	a := HashValue("some-refresh-token")
	b := HashValue("some-refresh-token")
	if a != b {
		t.Fatalf("hash not deterministic: %q != %q", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if HashValue("other") == a {
		t.Fatal("distinct inputs must not collide trivially")
	}
}

func TestHashEqual(t *testing.T) {
	stored := HashValue("risk-signal-token")
	if !HashEqual("risk-signal-token", stored) {
		t.Fatal("matching value must compare equal")
	}
	if HashEqual("tampered", stored) {
		t.Fatal("non-matching value must not compare equal")
	}
	if HashEqual("", stored) {
		t.Fatal("empty value must not compare equal")
	}
}
