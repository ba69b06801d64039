package requestctx

import (
	"context"
	"testing"
)

func TestFingerprintIsStableAndOpaque(t *testing.T) {
	a := Fingerprint("secret-key")
	b := Fingerprint("secret-key")
	if a != b {
		t.Fatalf("fingerprint not stable: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("unexpected fingerprint length %d", len(a))
	}
	if a == Fingerprint("other-key") {
		t.Fatalf("different keys share a fingerprint")
	}
	if Fingerprint("") != "" {
		t.Fatalf("empty key should have no fingerprint")
	}
}

func TestRoundTripThroughContext(t *testing.T) {
	rc := New("", "k", "http://localhost:5173")
	if rc.RequestID == "" {
		t.Fatalf("expected generated request id")
	}
	ctx := WithContext(context.Background(), rc)
	got, ok := FromContext(ctx)
	if !ok || got != rc {
		t.Fatalf("request context not found")
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("unexpected request context on empty ctx")
	}
}
