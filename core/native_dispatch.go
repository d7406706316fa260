package core

import (
	"crypto/sha256"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	"github.com/sirupsen/logrus"
)

// nativeFunc is the concrete implementation behind one native function name.
// Arguments and results are opaque byte vectors; callers agree on their
// shape out of band, matching how the VM harness already hands native
// calls raw byte vectors across the wasm boundary (spec §4.7, §6).
type nativeFunc func(args [][]byte) ([][]byte, error)

// NativeFunctionTable implements NativeDispatcher by binding the three
// native-function categories of spec §6 to one replay's state: category A
// runs real algorithms, category B mocks safely against replay-local state,
// category C is refused or permitted whole based on cfg.Replay.StrictCrypto.
//
// A name -> handler-func map is built once per replay and dispatched
// through a single Dispatch entry point; native handlers close over this
// replay's overlay/events/sys, so one instance per replay is required
// rather than a global table, which would leak state across replays.
type NativeFunctionTable struct {
	rs     *ReplayState
	overlay *Overlay
	events *EventStream
	sys    *SystemObjectSynthesizer
	rng    *DeterministicRandomness

	strictCrypto bool
	idCounter    uint64

	table map[string]nativeFunc
}

// NewNativeFunctionTable builds the dispatch table for one replay. sys may
// be nil only in tests that never call a category-C native. rng backs the
// random_u64/random_bytes natives (spec §4.5: native random operations of
// the VM route to the replay's deterministic randomness stream) and may be
// nil only in tests that never call those natives.
func NewNativeFunctionTable(rs *ReplayState, overlay *Overlay, events *EventStream, sys *SystemObjectSynthesizer, rng *DeterministicRandomness, strictCrypto bool) *NativeFunctionTable {
	n := &NativeFunctionTable{
		rs:           rs,
		overlay:      overlay,
		events:       events,
		sys:          sys,
		rng:          rng,
		strictCrypto: strictCrypto,
	}
	n.table = n.buildTable()
	return n
}

// Dispatch resolves name against the table built at construction time. An
// unregistered name is always a harness bug or an unsupported native, never
// a replay-data problem, so it surfaces as UnsupportedNative regardless of
// strict_crypto (spec §7).
func (n *NativeFunctionTable) Dispatch(name string, args [][]byte) ([][]byte, error) {
	fn, ok := n.table[name]
	if !ok {
		return nil, &UnsupportedNativeError{Name: name}
	}
	return fn(args)
}

func (n *NativeFunctionTable) buildTable() map[string]nativeFunc {
	t := make(map[string]nativeFunc)

	// --- Category A: real implementations (spec §6) ---
	t["hash_sha2_256"] = func(args [][]byte) ([][]byte, error) {
		sum := sha256.Sum256(firstArg(args))
		return [][]byte{sum[:]}, nil
	}
	t["hash_sha3_256"] = func(args [][]byte) ([][]byte, error) {
		sum := sha3.Sum256(firstArg(args))
		return [][]byte{sum[:]}, nil
	}
	t["hash_blake2b_256"] = func(args [][]byte) ([][]byte, error) {
		sum := blake2b.Sum256(firstArg(args))
		return [][]byte{sum[:]}, nil
	}
	t["bcs_encode_u64"] = func(args [][]byte) ([][]byte, error) {
		e := NewEncoder()
		e.PutFixedU64(decodeUint64(firstArg(args)))
		return [][]byte{e.Bytes()}, nil
	}
	t["bcs_decode_u64"] = func(args [][]byte) ([][]byte, error) {
		d := NewDecoder(firstArg(args))
		v, err := d.GetFixedU64()
		if err != nil {
			return nil, &DeserializationFailedError{Expected: "fixed u64"}
		}
		return [][]byte{encodeUint64(v)}, nil
	}
	t["vector_length"] = func(args [][]byte) ([][]byte, error) {
		return [][]byte{encodeUint64(uint64(len(args)))}, nil
	}
	t["vector_concat"] = func(args [][]byte) ([][]byte, error) {
		var out []byte
		for _, a := range args {
			out = append(out, a...)
		}
		return [][]byte{out}, nil
	}
	t["string_from_bytes"] = func(args [][]byte) ([][]byte, error) {
		return [][]byte{firstArg(args)}, nil
	}
	t["type_name"] = func(args [][]byte) ([][]byte, error) {
		tag, err := DecodeTypeTag(firstArg(args))
		if err != nil {
			return nil, &DeserializationFailedError{Expected: "type tag"}
		}
		return [][]byte{[]byte(tag.String())}, nil
	}
	t["debug_print"] = func(args [][]byte) ([][]byte, error) {
		logrus.WithField("replay_digest", n.rs.Transaction.Digest.Hex()).Debug(string(firstArg(args)))
		return nil, nil
	}
	t["signer_extract"] = func(args [][]byte) ([][]byte, error) {
		sender := n.rs.Transaction.Sender
		return [][]byte{sender[:]}, nil
	}

	// --- Category B: safe mocks backed by replay-local state (spec §6) ---
	t["tx_context_sender"] = func(args [][]byte) ([][]byte, error) {
		sender := n.rs.Transaction.Sender
		return [][]byte{sender[:]}, nil
	}
	t["tx_context_digest"] = func(args [][]byte) ([][]byte, error) {
		digest := n.rs.Transaction.Digest
		return [][]byte{digest[:]}, nil
	}
	t["tx_context_gas_budget"] = func(args [][]byte) ([][]byte, error) {
		return [][]byte{encodeUint64(n.rs.Transaction.GasBudget)}, nil
	}
	t["object_id_mint"] = func(args [][]byte) ([][]byte, error) {
		id := n.mintObjectId()
		return [][]byte{id[:]}, nil
	}
	t["ownership_register"] = func(args [][]byte) ([][]byte, error) {
		if len(args) < 2 || len(args[0]) != IdentifierLength || len(args[1]) != IdentifierLength {
			return nil, &DeserializationFailedError{Expected: "object_id, address"}
		}
		id := ObjectIdFromBytes(args[0])
		owner := AddressFromBytes(args[1])
		n.overlay.owners[id] = AddressOwner(owner)
		return nil, nil
	}
	t["event_emit_raw"] = func(args [][]byte) ([][]byte, error) {
		if len(args) < 3 {
			return nil, &DeserializationFailedError{Expected: "module, name, payload"}
		}
		tag := TypeTag{Module: string(args[0]), Name: string(args[1])}
		if n.events != nil {
			n.events.Emit(tag, n.rs.Transaction.Sender, args[2])
		}
		return nil, nil
	}
	t["clock_read"] = func(args [][]byte) ([][]byte, error) {
		o, ok := n.overlay.Get(clockObjectId, 0)
		if !ok {
			return nil, &MissingObjectError{Id: clockObjectId}
		}
		return [][]byte{o.Bytes}, nil
	}
	t["type_introspect"] = func(args [][]byte) ([][]byte, error) {
		tag, err := DecodeTypeTag(firstArg(args))
		if err != nil {
			return nil, &DeserializationFailedError{Expected: "type tag"}
		}
		return [][]byte{tag.Address[:], []byte(tag.Module), []byte(tag.Name)}, nil
	}
	t["random_u64"] = func(args [][]byte) ([][]byte, error) {
		if n.rng == nil {
			return nil, &UnsupportedNativeError{Name: "random_u64"}
		}
		return [][]byte{encodeUint64(n.rng.Next())}, nil
	}
	t["random_bytes"] = func(args [][]byte) ([][]byte, error) {
		if n.rng == nil {
			return nil, &UnsupportedNativeError{Name: "random_bytes"}
		}
		count := int(decodeUint64(firstArg(args)))
		if count <= 0 || count > 4096 {
			count = 32
		}
		out := make([]byte, 0, count)
		for len(out) < count {
			var buf [8]byte
			binaryPutUint64(buf[:], n.rng.Next())
			out = append(out, buf[:]...)
		}
		return [][]byte{out[:count]}, nil
	}

	// --- Category C: refused in strict mode, permissive mock otherwise ---
	cryptoNames := []string{
		"crypto_verify_signature",
		"crypto_bls12381_verify",
		"crypto_secp256r1_verify",
		"crypto_ed25519_verify",
		"crypto_groth16_verify",
		"vrf_verify",
		"zklogin_verify",
		"attestation_verify",
	}
	for _, name := range cryptoNames {
		opName := name
		t[opName] = func(args [][]byte) ([][]byte, error) {
			ok, err := n.mockCrypto(opName)
			if err != nil {
				return nil, err
			}
			if ok {
				n.rs.ExecutionPath.SyntheticCrypto = true
				return [][]byte{{1}}, nil
			}
			return [][]byte{{0}}, nil
		}
	}

	return t
}

func (n *NativeFunctionTable) mockCrypto(operation string) (bool, error) {
	if n.sys != nil {
		return n.sys.MockCryptographicPrimitive(operation)
	}
	if n.strictCrypto {
		return false, &UnsupportedCryptoInReplayError{Operation: operation}
	}
	return true, nil
}

// mintObjectId is the category-B object_id_mint native: deterministic by a
// per-replay counter seeded from the transaction digest (spec §6), mirroring
// the executor's own minting but with an independently-scoped counter since
// natives and PTB commands mint from separate sequences.
func (n *NativeFunctionTable) mintObjectId() ObjectId {
	n.idCounter++
	buf := make([]byte, IdentifierLength+8)
	copy(buf, n.rs.Transaction.Digest[:])
	binaryPutUint64(buf[IdentifierLength:], ^n.idCounter) // distinct domain from the executor's counter
	return ObjectId(blake2b.Sum256(buf))
}

func binaryPutUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func firstArg(args [][]byte) []byte {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}
