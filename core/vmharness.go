package core

import (
	"fmt"

	wasmer "github.com/wasmerio/wasmer-go/wasmer"
	"github.com/sirupsen/logrus"

	"chainreplay/pkg/config"
)

// VMHarness is the callback contract the executor drives a Move call
// through (spec §4.7, C7). CallFunction runs one entry function to
// completion (or a ContractAbortError) and returns its result values in
// the order the PTB expects them wired into later commands' arguments.
type VMHarness interface {
	CallFunction(storageId Address, module, function string, typeArgs []TypeTag, args []Value) ([]Value, error)
}

// NativeDispatcher resolves the native function categories of spec §6:
// category A (real, pure) natives execute directly; category B (safe
// mocks) route through system-object/replay state; category C
// (cryptographic) natives are refused or permitted per
// cfg.Replay.StrictCrypto. Implemented by NativeFunctionTable
// (native_dispatch.go).
type NativeDispatcher interface {
	Dispatch(name string, args [][]byte) ([][]byte, error)
}

// WasmHarness is the concrete VMHarness backed by wasmer: package modules
// are compiled bytecode, and the host surface below is the only way a
// module observes or mutates replay state, matching spec §4.7's closed
// callback contract ("no other channel to host state").
//
// CallFunction compiles the module, builds a per-call hostCtx, registers
// the ten host_* functions under the "env" namespace, instantiates, and
// invokes the exported entry point.
type WasmHarness struct {
	rs      *ReplayState
	overlay *Overlay
	fields  *DynamicFieldResolver
	events  *EventStream
	gas     *GasMeter
	natives NativeDispatcher
	sys     *SystemObjectSynthesizer
	rng     *DeterministicRandomness
	cfg     *config.Config

	engine *wasmer.Engine
	store  *wasmer.Store
}

// NewWasmHarness constructs a harness bound to one replay's mutable state.
// natives and sys may be nil in tests that never execute a MoveCall.
func NewWasmHarness(rs *ReplayState, overlay *Overlay, fields *DynamicFieldResolver, events *EventStream, gas *GasMeter, natives NativeDispatcher, sys *SystemObjectSynthesizer, cfg *config.Config) *WasmHarness {
	if cfg == nil {
		c := config.Default()
		cfg = &c
	}
	engine := wasmer.NewEngine()
	return &WasmHarness{
		rs:      rs,
		overlay: overlay,
		fields:  fields,
		events:  events,
		gas:     gas,
		natives: natives,
		sys:     sys,
		rng:     NewDeterministicRandomness([32]byte(rs.Transaction.Digest)),
		cfg:     cfg,
		engine:  engine,
		store:   wasmer.NewStore(engine),
	}
}

// hostCallCtx carries everything a single CallFunction invocation's host
// functions need: the shared harness, the call's argument/result buffers,
// and the wasm instance's linear memory (bound once instantiation
// completes, since registerHost runs before the memory export exists).
type hostCallCtx struct {
	h       *WasmHarness
	mem     *wasmer.Memory
	args    []Value
	results []Value
	abort   *ContractAbortError
}

func (c *hostCallCtx) read(ptr, length int32) []byte {
	data := c.mem.Data()
	out := make([]byte, length)
	copy(out, data[ptr:ptr+length])
	return out
}

func (c *hostCallCtx) write(ptr int32, data []byte) {
	copy(c.mem.Data()[ptr:], data)
}

// CallFunction compiles the requested package module (its bytecode is held
// per storageId by the surrounding PackageRegistry; the compiled module is
// not cached and is rebuilt on every call), instantiates it against the
// host surface below, and invokes the named entry function. A module that
// calls host_abort sets ctx.abort instead of returning an error from the
// wasm export, mirroring a Move abort's non-error-but-terminal status
// (spec §7: ContractAbort is a status, not an execution failure).
func (h *WasmHarness) CallFunction(storageId Address, module, function string, typeArgs []TypeTag, args []Value) ([]Value, error) {
	bytecode, err := h.rs.Packages.LoadModule(storageId, module)
	if err != nil {
		return nil, err
	}

	mod, err := wasmer.NewModule(h.store, bytecode)
	if err != nil {
		return nil, &DeserializationFailedError{Expected: "valid compiled module bytecode"}
	}

	ctx := &hostCallCtx{h: h, args: args}
	imports := h.registerHost(ctx)

	instance, err := wasmer.NewInstance(mod, imports)
	if err != nil {
		return nil, fmt.Errorf("vm harness: instantiate %s::%s: %w", module, function, err)
	}
	defer instance.Close()

	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return nil, &UnsupportedNativeError{Name: "memory export"}
	}
	ctx.mem = mem

	entry, err := instance.Exports.GetFunction(function)
	if err != nil {
		return nil, &UnsupportedNativeError{Name: function}
	}

	logrus.WithFields(logrus.Fields{
		"storage_id": storageId.Hex(),
		"module":     module,
		"function":   function,
	}).Debug("vm harness: calling function")

	if _, err := entry(); err != nil {
		return nil, fmt.Errorf("vm harness: %s::%s trapped: %w", module, function, err)
	}
	if ctx.abort != nil {
		return nil, ctx.abort
	}
	return ctx.results, nil
}

// registerHost builds the "env" import namespace every compiled module
// links against. Each function is a thin adapter between wasm's i32-only
// calling convention and the strongly-typed replay APIs (spec §4.7).
func (h *WasmHarness) registerHost(ctx *hostCallCtx) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()
	store := h.store

	i32 := wasmer.ValueKind(wasmer.I32)

	hostConsumeGas := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			op := uint64(args[0].I32())
			if !h.gas.Charge(op) {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		},
	)

	// host_get_arg(index i32, dstPtr i32) -> i32(len)|-1. Each argument is
	// written as a one-byte tag (0=raw bytes, 1=object ref) followed by its
	// payload: either the raw bytes, or a canonical-encoded ObjectRef.
	hostGetArg := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			idx, dst := int(args[0].I32()), args[1].I32()
			if idx < 0 || idx >= len(ctx.args) {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			v := ctx.args[idx]
			var payload []byte
			if v.IsObject {
				payload = append([]byte{1}, EncodeObjectRef(v.Ref)...)
			} else {
				payload = append([]byte{0}, v.Bytes...)
			}
			ctx.write(dst, payload)
			return []wasmer.Value{wasmer.NewI32(int32(len(payload)))}, nil
		},
	)

	// host_load_object(idPtr, versionLo, versionHi, dstPtr) -> i32(len)|-1.
	// Falls back to the dynamic-field resolver when the overlay/base store
	// does not hold the object directly (spec §4.4 "on-demand fetch").
	hostLoadObject := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32, i32, i32), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			idPtr, vLo, vHi, dst := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32()
			id := ObjectIdFromBytes(ctx.read(idPtr, IdentifierLength))
			version := Version(uint64(uint32(vLo)) | uint64(uint32(vHi))<<32)

			o, ok := h.overlay.Get(id, version)
			if !ok && h.fields != nil {
				var lookup ChildLookupResult
				var ferr error
				o, lookup, ferr = h.fields.FetchChildOnDemand(id, id)
				ok = ferr == nil && lookup == ChildFound
			}
			if !ok {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			ctx.write(dst, o.Bytes)
			return []wasmer.Value{wasmer.NewI32(int32(len(o.Bytes)))}, nil
		},
	)

	// host_write_object(idPtr, versionLo, versionHi, ownerPtr, dataPtr, dataLen) -> i32.
	hostWriteObject := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32, i32, i32, i32, i32), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			idPtr, vLo, vHi, ownerPtr, dataPtr, dataLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32(), args[4].I32(), args[5].I32()
			id := ObjectIdFromBytes(ctx.read(idPtr, IdentifierLength))
			version := Version(uint64(uint32(vLo)) | uint64(uint32(vHi))<<32)
			ownerAddr := AddressFromBytes(ctx.read(ownerPtr, IdentifierLength))
			data := ctx.read(dataPtr, dataLen)

			h.overlay.Put(Object{
				Id:      id,
				Version: version,
				Owner:   AddressOwner(ownerAddr),
				Bytes:   data,
				Digest:  ObjectDigest(data),
			})
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		},
	)

	// host_child_access(parentPtr, childPtr, dstPtr) -> i32(len)|-1.
	hostChildAccess := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32, i32), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if h.fields == nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			parentPtr, childPtr, dst := args[0].I32(), args[1].I32(), args[2].I32()
			parent := ObjectIdFromBytes(ctx.read(parentPtr, IdentifierLength))
			child := ObjectIdFromBytes(ctx.read(childPtr, IdentifierLength))
			o, result, err := h.fields.FetchChildOnDemand(parent, child)
			if err != nil || result != ChildFound {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			ctx.write(dst, o.Bytes)
			return []wasmer.Value{wasmer.NewI32(int32(len(o.Bytes)))}, nil
		},
	)

	// host_native_dispatch(namePtr, nameLen, argPtr, argLen, dstPtr) -> i32(len)|-1.
	// args are passed as a single length-prefixed-vector encoding (see
	// core/encoding.go); category C natives answer via
	// SystemObjectSynthesizer.MockCryptographicPrimitive under the hood of
	// NativeFunctionTable.
	hostNativeDispatch := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32, i32, i32, i32), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if h.natives == nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			if !h.gas.Charge(perNativeCallGas) {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			namePtr, nameLen, argPtr, argLen, dst := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32(), args[4].I32()
			name := string(ctx.read(namePtr, nameLen))
			raw := ctx.read(argPtr, argLen)
			callArgs, err := decodeByteVector(raw)
			if err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			results, err := h.natives.Dispatch(name, callArgs)
			if err != nil {
				if abort, ok := err.(*ContractAbortError); ok {
					ctx.abort = abort
				}
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			encoded := encodeByteVector(results)
			ctx.write(dst, encoded)
			return []wasmer.Value{wasmer.NewI32(int32(len(encoded)))}, nil
		},
	)

	// host_emit_event(modPtr, modLen, namePtr, nameLen, senderPtr, payloadPtr, payloadLen).
	hostEmitEvent := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32, i32, i32, i32, i32, i32), wasmer.NewValueTypes()),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			modPtr, modLen := args[0].I32(), args[1].I32()
			namePtr, nameLen := args[2].I32(), args[3].I32()
			senderPtr := args[4].I32()
			payloadPtr, payloadLen := args[5].I32(), args[6].I32()

			tag := TypeTag{
				Module: string(ctx.read(modPtr, modLen)),
				Name:   string(ctx.read(namePtr, nameLen)),
			}
			sender := AddressFromBytes(ctx.read(senderPtr, IdentifierLength))
			payload := ctx.read(payloadPtr, payloadLen)
			if h.events != nil {
				h.events.Emit(tag, sender, payload)
			}
			return []wasmer.Value{}, nil
		},
	)

	// host_push_result(isObject i32, idPtr, versionLo, versionHi, digestPtr, dataPtr, dataLen).
	// A module calls this once per value it wants visible to later PTB
	// commands; idPtr/digestPtr are only read when isObject != 0.
	hostPushResult := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32, i32, i32, i32, i32, i32), wasmer.NewValueTypes()),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			isObject := args[0].I32()
			if isObject != 0 {
				idPtr, vLo, vHi, digestPtr := args[1].I32(), args[2].I32(), args[3].I32(), args[4].I32()
				id := ObjectIdFromBytes(ctx.read(idPtr, IdentifierLength))
				version := Version(uint64(uint32(vLo)) | uint64(uint32(vHi))<<32)
				digest := DigestFromBytes(ctx.read(digestPtr, IdentifierLength))
				ctx.results = append(ctx.results, Value{IsObject: true, Ref: ObjectRef{Id: id, Version: version, Digest: digest}})
				return []wasmer.Value{}, nil
			}
			dataPtr, dataLen := args[5].I32(), args[6].I32()
			ctx.results = append(ctx.results, Value{Bytes: ctx.read(dataPtr, dataLen)})
			return []wasmer.Value{}, nil
		},
	)

	// host_abort(code i32, subStatus i32) marks the call as a Move abort
	// rather than a harness failure (spec §7).
	hostAbort := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32), wasmer.NewValueTypes()),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			ctx.abort = &ContractAbortError{Code: uint64(args[0].I32()), SubStatus: uint64(args[1].I32())}
			return []wasmer.Value{}, nil
		},
	)

	hostLog := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32), wasmer.NewValueTypes()),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			p, l := args[0].I32(), args[1].I32()
			logrus.WithField("replay_digest", h.rs.Transaction.Digest.Hex()).Debug(string(ctx.read(p, l)))
			return []wasmer.Value{}, nil
		},
	)

	imports.Register("env", map[string]wasmer.IntoExtern{
		"host_consume_gas":     hostConsumeGas,
		"host_get_arg":         hostGetArg,
		"host_load_object":     hostLoadObject,
		"host_write_object":    hostWriteObject,
		"host_child_access":    hostChildAccess,
		"host_native_dispatch": hostNativeDispatch,
		"host_emit_event":      hostEmitEvent,
		"host_push_result":     hostPushResult,
		"host_abort":           hostAbort,
		"host_log":             hostLog,
	})

	return imports
}

// decodeByteVector reads a uvarint count followed by that many
// length-prefixed byte strings (core/encoding.go's vector convention).
func decodeByteVector(raw []byte) ([][]byte, error) {
	d := NewDecoder(raw)
	n, err := d.GetUvarint()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		b, err := d.GetBytes()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func encodeByteVector(vs [][]byte) []byte {
	e := NewEncoder()
	e.PutUvarint(uint64(len(vs)))
	for _, v := range vs {
		e.PutBytes(v)
	}
	return e.Bytes()
}
