package webhook

import (
	"strings"
	"testing"
)

func TestSignVerify(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"event_type":"match.found","id":"ev-1"}`)
	sig := Sign("topsecret", payload)

	if !strings.HasPrefix(sig, "sha256=") {
		t.Errorf("signature must carry the sha256= prefix, got %s", sig)
	}
	if !Verify("topsecret", payload, sig) {
		t.Error("signature must verify with the signing secret")
	}
	if !Verify("topsecret", payload, strings.TrimPrefix(sig, "sha256=")) {
		t.Error("verification must accept a bare hex signature")
	}
	if Verify("wrongsecret", payload, sig) {
		t.Error("signature must not verify with another secret")
	}
	if Verify("topsecret", []byte(`{"tampered":true}`), sig) {
		t.Error("signature must not verify a tampered payload")
	}
	if Verify("topsecret", payload, "") {
		t.Error("empty signature must not verify")
	}
}

func TestCanonicalPayload_StableKeyOrder(t *testing.T) {
	t.Parallel()

	a, err := CanonicalPayload(map[string]any{"b": 2, "a": 1, "c": map[string]any{"z": true, "y": false}})
	if err != nil {
		t.Fatalf("canonicalize failed: %v", err)
	}
	b, err := CanonicalPayload(map[string]any{"c": map[string]any{"y": false, "z": true}, "a": 1, "b": 2})
	if err != nil {
		t.Fatalf("canonicalize failed: %v", err)
	}
	if string(a) != string(b) {
		t.Errorf("canonical form must be insertion-order independent:\n%s\n%s", a, b)
	}
	if string(a) != `{"a":1,"b":2,"c":{"y":false,"z":true}}` {
		t.Errorf("unexpected canonical form %s", a)
	}
}

func TestCanonicalPayload_ArraysKeepOrder(t *testing.T) {
	t.Parallel()

	got, err := CanonicalPayload(map[string]any{"items": []any{3, 1, 2}})
	if err != nil {
		t.Fatalf("canonicalize failed: %v", err)
	}
	if string(got) != `{"items":[3,1,2]}` {
		t.Errorf("array order must be preserved, got %s", got)
	}
}

func TestCanonicalPayload_StructsNormalize(t *testing.T) {
	t.Parallel()

	type sample struct {
		B int `json:"b"`
		A int `json:"a"`
	}

	got, err := CanonicalPayload(sample{B: 2, A: 1})
	if err != nil {
		t.Fatalf("canonicalize failed: %v", err)
	}
	if string(got) != `{"a":1,"b":2}` {
		t.Errorf("struct fields must canonicalize to sorted keys, got %s", got)
	}

	// Signing the canonical form survives a decode/re-canonicalize round trip.
	sig := Sign("s", got)
	again, err := CanonicalPayload(map[string]any{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("canonicalize failed: %v", err)
	}
	if !Verify("s", again, sig) {
		t.Error("signature must survive canonical round trip")
	}
}
