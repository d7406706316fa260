package core

import "testing"

func TestObjectDigestDeterministic(t *testing.T) {
	payload := []byte("coin-balance-100")
	a := ObjectDigest(payload)
	b := ObjectDigest(payload)
	if a != b {
		t.Fatalf("digest not deterministic: %s != %s", a.Hex(), b.Hex())
	}
	if a == (Digest{}) {
		t.Fatal("digest of non-empty payload should not be zero")
	}
}

func TestObjectDigestDiffersOnPayload(t *testing.T) {
	a := ObjectDigest([]byte("payload-a"))
	b := ObjectDigest([]byte("payload-b"))
	if a == b {
		t.Fatal("expected different payloads to produce different digests")
	}
}
