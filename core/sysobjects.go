package core

import "encoding/binary"

// clockObjectId is the fixed identifier of the synthetic clock object
// (spec §4.5: "a fixed ObjectId and the 8-byte little-endian timestamp").
var clockObjectId = ObjectId{0x5c, 0x10, 0x0c, 0x00} // "clock" marker, zero-padded

// SystemObjectSynthesizer constructs canonical system objects (clock,
// deterministic randomness, synthetic gas) when the base store does not
// already carry them at the exact replayed version (spec §4.5, C5).
type SystemObjectSynthesizer struct {
	strictCrypto bool
}

// NewSystemObjectSynthesizer constructs a synthesizer; strictCrypto governs
// mock_cryptographic_primitives (spec §4.5).
func NewSystemObjectSynthesizer(strictCrypto bool) *SystemObjectSynthesizer {
	return &SystemObjectSynthesizer{strictCrypto: strictCrypto}
}

// InstallDefaults installs the clock object (if no clock object is already
// present at version 0, whatever its timestamp) and records every
// synthesis performed into rs.ExecutionPath, per spec §4.5's closing rule
// that all synthesis is logged so the caller can judge trustworthiness.
func (s *SystemObjectSynthesizer) InstallDefaults(rs *ReplayState, timestampMs uint64) error {
	if _, ok := rs.Objects.Get(clockObjectId, 0); !ok {
		clockObj := s.Clock(timestampMs)
		if err := rs.Objects.Insert(clockObj); err != nil {
			return err
		}
		rs.ExecutionPath.AddSyntheticSystemObject("clock")
	}
	return nil
}

// Clock builds the canonical clock object: the fixed 32-byte ObjectId in Id
// and the 8-byte little-endian timestamp as its only payload, 40 bytes in
// all (spec §4.5).
func (s *SystemObjectSynthesizer) Clock(timestampMs uint64) Object {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, timestampMs)
	return Object{
		Id:      clockObjectId,
		Version: 0,
		Owner:   SharedOwner(0),
		Type:    &TypeTag{Module: "clock", Name: "Clock"},
		Bytes:   payload,
	}
}

// DeterministicRandomness returns a fixed-seed pseudorandom stream. Native
// random operations of the VM route to it rather than a real VRF
// (spec §4.5). Default seed is all zeros unless overridden.
type DeterministicRandomness struct {
	seed  [32]byte
	state uint64
}

// NewDeterministicRandomness constructs a stream from a 32-byte seed.
func NewDeterministicRandomness(seed [32]byte) *DeterministicRandomness {
	return &DeterministicRandomness{seed: seed, state: binary.LittleEndian.Uint64(seed[:8])}
}

// Next returns the next pseudorandom 64-bit value via a splitmix64 step,
// a cheap, fully reproducible generator appropriate for a non-cryptographic
// replay stand-in.
func (r *DeterministicRandomness) Next() uint64 {
	r.state += 0x9E3779B97F4A7C15
	z := r.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// SyntheticGasCoin builds a mock coin with the declared budget under the
// sender's address (spec §4.5). It only returns the Object: it does not
// insert it into any store, does not check whether the declared gas coin is
// present, and consults no configuration.
func (s *SystemObjectSynthesizer) SyntheticGasCoin(id ObjectId, sender Address, budget uint64) Object {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, budget)
	return Object{
		Id:      id,
		Version: 1,
		Owner:   AddressOwner(sender),
		Type:    &TypeTag{Module: "coin", Name: "Coin"},
		Bytes:   payload,
	}
}

// MockCryptographicPrimitive implements mock_cryptographic_primitives
// (spec §4.5): when strict=false every signature/VRF verification the VM
// requests succeeds unconditionally; when strict=true the harness refuses.
func (s *SystemObjectSynthesizer) MockCryptographicPrimitive(operation string) (bool, error) {
	if s.strictCrypto {
		return false, &UnsupportedCryptoInReplayError{Operation: operation}
	}
	return true, nil
}
