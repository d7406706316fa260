package core

import (
	"bytes"
	"testing"

	"chainreplay/pkg/config"
)

func TestByteVectorEncodeDecodeRoundTrip(t *testing.T) {
	in := [][]byte{[]byte("alpha"), []byte("beta"), {}}
	encoded := encodeByteVector(in)
	out, err := decodeByteVector(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d entries, got %d", len(in), len(out))
	}
	for i := range in {
		if !bytes.Equal(in[i], out[i]) {
			t.Fatalf("entry %d: got %q, want %q", i, out[i], in[i])
		}
	}
}

func TestDecodeByteVectorRejectsTruncatedInput(t *testing.T) {
	if _, err := decodeByteVector([]byte{0x05}); err == nil {
		t.Fatal("expected an error decoding a vector claiming 5 entries with none present")
	}
}

// NewWasmHarness only compiles a module lazily inside CallFunction, so
// construction itself never needs an actual .wasm binary; this exercises the
// harness wiring (rng seeded from the transaction digest, gas/events bound)
// the way a real MoveCall-capable executor would assemble it. Compiling and
// invoking an actual module requires wat2wasm, which this module does not
// bundle a wrapper for, so CallFunction itself is not exercised by this
// package's tests (executor_test.go's MoveCall case runs without a harness).
func TestNewWasmHarnessConstructsWithSeededRng(t *testing.T) {
	rs := newTestReplayState(AddressFromBytes([]byte("alice")))
	overlay := rs.Objects.NewOverlay()
	events := NewEventStream()
	gas := NewGasMeter(1000)
	cfg := config.Default()

	h := NewWasmHarness(rs, overlay, nil, events, gas, nil, nil, &cfg)
	if h == nil {
		t.Fatal("expected a non-nil harness")
	}
	if h.rng == nil {
		t.Fatal("expected the harness to seed its own deterministic randomness stream")
	}
}
