package core

import (
	"encoding/binary"
	"sort"

	"golang.org/x/crypto/blake2b"

	"chainreplay/pkg/config"
)

// Value is the runtime value produced by a command and referenced by later
// commands' arguments (spec §4.6): either a reference to an object (by id,
// version, digest) or a raw encoded primitive.
type Value struct {
	IsObject bool
	Ref      ObjectRef
	Bytes    []byte
}

// PTBExecutor interprets a transaction's command vector, wires arguments by
// reference, drives the VM harness per call, and collects per-command
// results into an effects accumulator (spec §4.6, C6).
//
// Commands run in declared order, one at a time; a failing command's own
// overlay writes are rolled back, while writes of earlier commands stay in
// the overlay and appear in the returned effects.
type PTBExecutor struct {
	rs      *ReplayState
	overlay *Overlay
	harness VMHarness
	fields  *DynamicFieldResolver
	events  *EventStream
	gas     *GasMeter
	cfg     *config.Config

	commit *CommitLog

	results   [][]Value
	idCounter uint64
	touched   map[ObjectId]ObjectRef
}

// CommitLog returns the RLP-serializable audit log of every overlay write
// this executor produced (spec §6 "on-disk replay cache entries").
func (ex *PTBExecutor) CommitLog() *CommitLog {
	return ex.commit
}

// NewPTBExecutor constructs an executor for one replay. fields and harness
// may be nil for commands that never exercise dynamic fields or MoveCall
// (tests commonly construct a minimal executor this way).
func NewPTBExecutor(rs *ReplayState, harness VMHarness, fields *DynamicFieldResolver, cfg *config.Config) *PTBExecutor {
	if cfg == nil {
		c := config.Default()
		cfg = &c
	}
	overlay := rs.Objects.NewOverlay()
	commit := NewCommitLog()
	overlay.SetCommitLog(commit)
	return &PTBExecutor{
		rs:      rs,
		overlay: overlay,
		harness: harness,
		fields:  fields,
		events:  NewEventStream(),
		gas:     NewGasMeter(rs.Transaction.GasBudget),
		cfg:     cfg,
		commit:  commit,
		touched: make(map[ObjectId]ObjectRef),
	}
}

// Overlay exposes the executor's transient write layer (the source of the
// created/mutated/deleted lists in the returned Effects).
func (ex *PTBExecutor) Overlay() *Overlay { return ex.overlay }

// Events exposes the executor's event stream so a caller wiring a VM
// harness's natives through the same replay can emit into the stream that
// ultimately backs this executor's Effects.Events.
func (ex *PTBExecutor) Events() *EventStream { return ex.events }

// Execute runs the state machine of spec §4.6: INIT -> HYDRATED ->
// EXECUTING(cmd=k) -> {EXECUTING(cmd=k+1) | ABORTED | SUCCEEDED} -> REPORTED.
// A zero-command transaction executes to SUCCESS with empty effects
// (spec §8 boundary behavior). handle may be nil when cancellation support
// is not needed (e.g. unit tests).
func (ex *PTBExecutor) Execute(handle *ReplayHandle) (Effects, error) {
	tx := ex.rs.Transaction
	ex.results = make([][]Value, len(tx.Commands))

	for k, cmd := range tx.Commands {
		if handle != nil && ex.cfg.Replay.CancellationPollEveryCommand && handle.Cancelled() {
			return ex.partialEffects(k, true), &AbortedByCancellationError{FailedCommandIndex: k}
		}

		argVals, err := ex.resolveAndCheckArguments(k, cmd)
		if err != nil {
			return ex.abortedEffects(k, err), err
		}

		var out []Value
		err = ex.overlay.Snapshot(func() error {
			var execErr error
			out, execErr = ex.dispatch(k, cmd, argVals)
			return execErr
		})
		if err != nil {
			if abort, ok := err.(*ContractAbortError); ok {
				return ex.terminalAbortEffects(k, abort), nil
			}
			return ex.abortedEffects(k, err), err
		}
		ex.results[k] = out
	}

	return ex.successEffects(), nil
}

// resolveAndCheckArguments resolves every argument a command references and
// checks ownership on OwnedObject/SharedObject/Receiving input arguments
// before the command runs (spec §4.6).
func (ex *PTBExecutor) resolveAndCheckArguments(cmdIdx int, cmd Command) ([]Value, error) {
	var argRefs []Argument
	switch cmd.Kind {
	case CmdMoveCall:
		argRefs = cmd.Arguments
	case CmdTransferObjects:
		argRefs = append(append([]Argument{}, cmd.Objects...), cmd.Recipient)
	case CmdSplitCoins:
		argRefs = append([]Argument{cmd.Coin}, cmd.Amounts...)
	case CmdMergeCoins:
		argRefs = append([]Argument{cmd.Dest}, cmd.Sources...)
	case CmdMakeVec:
		argRefs = cmd.Elements
	}

	out := make([]Value, len(argRefs))
	for i, a := range argRefs {
		v, err := ex.resolveArgument(cmdIdx, i, a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (ex *PTBExecutor) resolveArgument(cmdIdx, argIdx int, a Argument) (Value, error) {
	switch a.Kind {
	case ArgInput:
		if a.Idx < 0 || a.Idx >= len(ex.rs.Transaction.Inputs) {
			return Value{}, &TypeMismatchError{Command: cmdIdx, ArgumentIndex: argIdx, Expected: "valid input index"}
		}
		return ex.resolveInput(cmdIdx, argIdx, ex.rs.Transaction.Inputs[a.Idx])
	case ArgResult:
		if a.Idx < 0 || a.Idx >= len(ex.results) || len(ex.results[a.Idx]) == 0 {
			return Value{}, &TypeMismatchError{Command: cmdIdx, ArgumentIndex: argIdx, Expected: "prior command result"}
		}
		return ex.results[a.Idx][0], nil
	case ArgNestedResult:
		if a.Idx < 0 || a.Idx >= len(ex.results) || a.Nest < 0 || a.Nest >= len(ex.results[a.Idx]) {
			return Value{}, &TypeMismatchError{Command: cmdIdx, ArgumentIndex: argIdx, Expected: "prior command nested result"}
		}
		return ex.results[a.Idx][a.Nest], nil
	case ArgGasCoin:
		return ex.gasCoinValue(), nil
	default:
		return Value{}, &TypeMismatchError{Command: cmdIdx, ArgumentIndex: argIdx, Expected: "known argument kind"}
	}
}

// objectValue records o as touched (a candidate for
// unchanged_loaded_runtime_objects unless later created/mutated/deleted)
// and returns the Value referencing it.
func (ex *PTBExecutor) objectValue(o Object) Value {
	ref := ObjectRef{Id: o.Id, Version: o.Version, Digest: o.Digest}
	ex.touched[o.Id] = ref
	return Value{IsObject: true, Ref: ref}
}

func (ex *PTBExecutor) gasCoinValue() Value {
	return Value{IsObject: false, Bytes: encodeUint64(ex.rs.Transaction.GasBudget - ex.gas.Used())}
}

func (ex *PTBExecutor) resolveInput(cmdIdx, argIdx int, in Input) (Value, error) {
	sender := ex.rs.Transaction.Sender
	switch in.Kind {
	case InputPure:
		return Value{Bytes: in.Bytes}, nil
	case InputOwnedObject:
		owner, ok := ex.overlay.OwnershipOf(in.Id)
		if !ok {
			return Value{}, &MissingOwnershipError{Id: in.Id}
		}
		if owner.Kind != OwnerAddress || owner.Address != sender {
			return Value{}, &MissingOwnershipError{Id: in.Id}
		}
		o, ok := ex.overlay.Get(in.Id, in.Version)
		if !ok {
			return Value{}, &MissingObjectError{Id: in.Id, Version: &in.Version}
		}
		return ex.objectValue(o), nil
	case InputSharedObject:
		owner, ok := ex.overlay.OwnershipOf(in.Id)
		if !ok || owner.Kind != OwnerShared || owner.InitialSharedVersion != in.InitialSharedVersion {
			return Value{}, &MissingOwnershipError{Id: in.Id}
		}
		o, ok := ex.overlay.Get(in.Id, in.Version)
		if !ok {
			if latestV, latestO, ok2 := ex.rs.Objects.GetLatestKnown(in.Id); ok2 {
				o, ok = latestO, true
				_ = latestV
			}
		}
		if !ok {
			return Value{}, &MissingObjectError{Id: in.Id}
		}
		return ex.objectValue(o), nil
	case InputReceiving:
		owner, ok := ex.overlay.OwnershipOf(in.Id)
		if !ok {
			return Value{}, &MissingOwnershipError{Id: in.Id}
		}
		// Resolves spec §9's second open question: whether a Receiving
		// object owned (in the base store) by another address may still
		// be replayed. ReceivingRequiresSenderOwnership=true enforces the
		// spec's stated rule that the sender must be the logical
		// recipient; =false permits the historically inconsistent case.
		if ex.cfg.Replay.ReceivingRequiresSenderOwnership {
			if owner.Kind != OwnerAddress || owner.Address != sender {
				return Value{}, &MissingOwnershipError{Id: in.Id}
			}
		} else if owner.Kind != OwnerAddress || owner.Address != sender {
			ex.rs.ExecutionPath.AddFallback("receiving_without_sender_ownership")
		}
		o, ok := ex.overlay.Get(in.Id, in.Version)
		if !ok {
			return Value{}, &MissingObjectError{Id: in.Id, Version: &in.Version}
		}
		return ex.objectValue(o), nil
	case InputGasCoin:
		return ex.gasCoinValue(), nil
	default:
		return Value{}, &TypeMismatchError{Command: cmdIdx, ArgumentIndex: argIdx, Expected: "known input kind"}
	}
}

// dispatch executes the per-command semantics summarized in spec §4.6.
func (ex *PTBExecutor) dispatch(cmdIdx int, cmd Command, args []Value) ([]Value, error) {
	replayCommandsTotal.Inc()
	if !ex.gas.Charge(GasCostForCommand(cmd.Kind)) {
		return nil, &ContractAbortError{Module: "gas", Function: "charge", Code: 1}
	}
	switch cmd.Kind {
	case CmdMoveCall:
		return ex.execMoveCall(cmdIdx, cmd, args)
	case CmdTransferObjects:
		return ex.execTransferObjects(cmdIdx, cmd, args)
	case CmdSplitCoins:
		return ex.execSplitCoins(cmdIdx, cmd, args)
	case CmdMergeCoins:
		return ex.execMergeCoins(cmdIdx, cmd, args)
	case CmdMakeVec:
		return ex.execMakeVec(cmd, args)
	case CmdPublish:
		return ex.execPublish(cmdIdx, cmd)
	case CmdUpgrade:
		return ex.execUpgrade(cmdIdx, cmd)
	default:
		return nil, &TypeMismatchError{Command: cmdIdx, Expected: "known command kind"}
	}
}

func (ex *PTBExecutor) execMoveCall(cmdIdx int, cmd Command, args []Value) ([]Value, error) {
	if ex.harness == nil {
		return nil, &MissingPackageError{OriginalId: cmd.Package}
	}
	storageId, err := ex.rs.Packages.Resolve(cmd.Package, nil, nil)
	if err != nil {
		return nil, err
	}
	return ex.harness.CallFunction(storageId, cmd.Module, cmd.Function, cmd.TypeArgs, args)
}

func (ex *PTBExecutor) execTransferObjects(cmdIdx int, cmd Command, args []Value) ([]Value, error) {
	n := len(cmd.Objects)
	recipientVal := args[n]
	recipient, err := valueToAddress(recipientVal)
	if err != nil {
		return nil, &TypeMismatchError{Command: cmdIdx, ArgumentIndex: n, Expected: "address"}
	}
	for i := 0; i < n; i++ {
		v := args[i]
		if !v.IsObject {
			return nil, &TypeMismatchError{Command: cmdIdx, ArgumentIndex: i, Expected: "object"}
		}
		o, ok := ex.overlay.Get(v.Ref.Id, v.Ref.Version)
		if !ok {
			return nil, &MissingObjectError{Id: v.Ref.Id, Version: &v.Ref.Version}
		}
		mutated := o.Clone()
		mutated.Version++
		mutated.Owner = AddressOwner(recipient)
		mutated.Digest = ObjectDigest(mutated.Bytes)
		ex.overlay.Put(mutated)
	}
	return nil, nil
}

func (ex *PTBExecutor) execSplitCoins(cmdIdx int, cmd Command, args []Value) ([]Value, error) {
	coinVal := args[0]
	if !coinVal.IsObject {
		return nil, &TypeMismatchError{Command: cmdIdx, ArgumentIndex: 0, Expected: "coin object"}
	}
	coin, ok := ex.overlay.Get(coinVal.Ref.Id, coinVal.Ref.Version)
	if !ok {
		return nil, &MissingObjectError{Id: coinVal.Ref.Id}
	}
	balance := decodeUint64(coin.Bytes)

	results := make([]Value, 0, len(cmd.Amounts))
	var total uint64
	for i, amtVal := range args[1:] {
		amt := decodeUint64(amtVal.Bytes)
		total += amt
		if total > balance {
			return nil, &TypeMismatchError{Command: cmdIdx, ArgumentIndex: i + 1, Expected: "amount within coin balance"}
		}
		newId := ex.mintObjectId()
		coinBytes := encodeUint64(amt)
		newCoin := Object{
			Id:      newId,
			Version: 1,
			Owner:   coin.Owner,
			Type:    coin.Type,
			Bytes:   coinBytes,
			Digest:  ObjectDigest(coinBytes),
		}
		ex.overlay.Put(newCoin)
		results = append(results, Value{IsObject: true, Ref: ObjectRef{Id: newCoin.Id, Version: newCoin.Version, Digest: newCoin.Digest}})
	}

	remaining := coin.Clone()
	remaining.Version++
	remaining.Bytes = encodeUint64(balance - total)
	remaining.Digest = ObjectDigest(remaining.Bytes)
	ex.overlay.Put(remaining)

	return results, nil
}

func (ex *PTBExecutor) execMergeCoins(cmdIdx int, cmd Command, args []Value) ([]Value, error) {
	if len(args) == 1 && len(cmd.Sources) == 0 {
		return nil, nil // empty sources is a no-op (spec §8 boundary behavior)
	}
	destVal := args[0]
	if !destVal.IsObject {
		return nil, &TypeMismatchError{Command: cmdIdx, ArgumentIndex: 0, Expected: "coin object"}
	}
	dest, ok := ex.overlay.Get(destVal.Ref.Id, destVal.Ref.Version)
	if !ok {
		return nil, &MissingObjectError{Id: destVal.Ref.Id}
	}
	total := decodeUint64(dest.Bytes)
	for i, srcVal := range args[1:] {
		if !srcVal.IsObject {
			return nil, &TypeMismatchError{Command: cmdIdx, ArgumentIndex: i + 1, Expected: "coin object"}
		}
		src, ok := ex.overlay.Get(srcVal.Ref.Id, srcVal.Ref.Version)
		if !ok {
			return nil, &MissingObjectError{Id: srcVal.Ref.Id}
		}
		total += decodeUint64(src.Bytes)
		ex.overlay.Delete(src.Id)
	}
	dest.Version++
	dest.Bytes = encodeUint64(total)
	dest.Digest = ObjectDigest(dest.Bytes)
	ex.overlay.Put(dest)
	return nil, nil
}

func (ex *PTBExecutor) execMakeVec(cmd Command, args []Value) ([]Value, error) {
	e := NewEncoder()
	e.PutUvarint(uint64(len(args)))
	for _, v := range args {
		if v.IsObject {
			e.PutBytes(EncodeObjectRef(v.Ref))
		} else {
			e.PutBytes(v.Bytes)
		}
	}
	return []Value{{Bytes: e.Bytes()}}, nil
}

func (ex *PTBExecutor) execPublish(cmdIdx int, cmd Command) ([]Value, error) {
	newAddr := ex.mintAddress()
	modules := make(map[string][]byte, len(cmd.Modules))
	for i, m := range cmd.Modules {
		modules[moduleNameFor(i)] = m
	}
	p := &Package{
		OriginalId: newAddr,
		StorageId:  newAddr,
		Version:    1,
		Modules:    modules,
	}
	ex.rs.Packages.Install(p)
	return []Value{{Bytes: newAddr[:]}}, nil
}

func (ex *PTBExecutor) execUpgrade(cmdIdx int, cmd Command) ([]Value, error) {
	originalId, err := ex.rs.Packages.ReverseLookup(cmd.UpgradePackage)
	if err != nil {
		return nil, err
	}
	newStorage := ex.mintAddress()
	modules := make(map[string][]byte, len(cmd.Modules))
	for i, m := range cmd.Modules {
		modules[moduleNameFor(i)] = m
	}
	linkage := make([]LinkageEntry, 0, len(cmd.Deps))
	for _, dep := range cmd.Deps {
		linkage = append(linkage, LinkageEntry{DepOriginalId: dep, StorageId: dep})
	}
	p := &Package{
		OriginalId: originalId,
		StorageId:  newStorage,
		Version:    ex.nextPackageVersion(originalId),
		Modules:    modules,
		Linkage:    linkage,
	}
	ex.rs.Packages.Install(p)
	return []Value{{Bytes: newStorage[:]}}, nil
}

func (ex *PTBExecutor) nextPackageVersion(originalId Address) uint64 {
	storageId, err := ex.rs.Packages.Resolve(originalId, nil, nil)
	if err != nil {
		return 1
	}
	v, err := ex.rs.Packages.VersionOf(storageId)
	if err != nil {
		return 1
	}
	return v + 1
}

func moduleNameFor(i int) string {
	return "module_" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// mintObjectId implements the deterministic object-id minting native
// described in spec §6 (category B): a per-replay counter seeded from the
// transaction digest.
func (ex *PTBExecutor) mintObjectId() ObjectId {
	ex.idCounter++
	buf := make([]byte, IdentifierLength+8)
	copy(buf, ex.rs.Transaction.Digest[:])
	binary.LittleEndian.PutUint64(buf[IdentifierLength:], ex.idCounter)
	return ObjectId(blake2b.Sum256(buf))
}

func (ex *PTBExecutor) mintAddress() Address {
	return Address(ex.mintObjectId())
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func decodeUint64(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func valueToAddress(v Value) (Address, error) {
	if v.IsObject {
		return Address(v.Ref.Id), nil
	}
	if len(v.Bytes) != IdentifierLength {
		return Address{}, &DeserializationFailedError{Expected: "32-byte address"}
	}
	return AddressFromBytes(v.Bytes), nil
}

// baseEffects assembles the object-reference lists common to every exit
// path, in the canonical order of spec §4.6: created sorted by ObjectId,
// mutated in insertion order matching command order, deleted in encounter
// order.
func (ex *PTBExecutor) baseEffects() Effects {
	created := objectsToRefsSorted(ex.overlay.CreatedObjects())
	mutated := objectsToRefs(ex.overlay.MutatedObjects())
	deleted := idsToRefs(ex.overlay.DeletedIds())

	mutatedOrDeleted := make(map[ObjectId]bool, len(mutated)+len(deleted))
	for _, r := range mutated {
		mutatedOrDeleted[r.Id] = true
	}
	for _, r := range deleted {
		mutatedOrDeleted[r.Id] = true
	}
	createdIds := make(map[ObjectId]bool, len(created))
	for _, r := range created {
		createdIds[r.Id] = true
	}

	var unchanged []ObjectRef
	for id, ref := range ex.touched {
		if mutatedOrDeleted[id] || createdIds[id] {
			continue
		}
		unchanged = append(unchanged, ref)
	}

	return Effects{
		Created:                       created,
		Mutated:                       mutated,
		Deleted:                       deleted,
		Events:                        ex.events.All(),
		GasUsed:                       ex.gas.Used(),
		UnchangedLoadedRuntimeObjects: unchanged,
	}
}

func (ex *PTBExecutor) successEffects() Effects {
	e := ex.baseEffects()
	e.Status = ExecutionStatus{Kind: StatusSuccess}
	return e
}

// partialEffects builds the report for a cancellation delivered between
// commands: exactly the prefix of effects produced by commands that
// completed (spec §8 boundary behavior). aborted is always true here since
// this path is reached only via AbortedByCancellationError.
func (ex *PTBExecutor) partialEffects(failedCommandIndex int, aborted bool) Effects {
	e := ex.baseEffects()
	e.Status = ExecutionStatus{Kind: StatusExecutionError, ErrorKind: "AbortedByCancellation"}
	return e
}

// abortedEffects builds the report for a hard replay failure (missing
// package/object/ownership, stale child, type mismatch, deserialization
// failure): the failed command index is recorded in the status's ErrorKind
// ("command <k>: <error>") so a caller can act on it (spec §4.6, §7).
func (ex *PTBExecutor) abortedEffects(failedCommandIndex int, err error) Effects {
	e := ex.baseEffects()
	e.Status = ExecutionStatus{Kind: StatusExecutionError, ErrorKind: "command " + itoa(failedCommandIndex) + ": " + err.Error()}
	return e
}

// terminalAbortEffects builds the report for a VM-raised ContractAbort: this
// is the transaction's terminal status, not a replay failure, and feeds the
// comparator like any other outcome (spec §7).
func (ex *PTBExecutor) terminalAbortEffects(cmdIdx int, abort *ContractAbortError) Effects {
	e := ex.baseEffects()
	e.Status = ExecutionStatus{
		Kind:     StatusAbort,
		Location: abort.Module + "::" + abort.Function,
		Code:     abort.Code,
	}
	return e
}

func objectsToRefs(objs []Object) []ObjectRef {
	out := make([]ObjectRef, 0, len(objs))
	for _, o := range objs {
		out = append(out, ObjectRef{Id: o.Id, Version: o.Version, Digest: o.Digest})
	}
	return out
}

func objectsToRefsSorted(objs []Object) []ObjectRef {
	out := objectsToRefs(objs)
	sortObjectRefsById(out)
	return out
}

func idsToRefs(ids []ObjectId) []ObjectRef {
	out := make([]ObjectRef, 0, len(ids))
	for _, id := range ids {
		out = append(out, ObjectRef{Id: id})
	}
	return out
}

func sortObjectRefsById(refs []ObjectRef) {
	sort.Slice(refs, func(i, j int) bool { return lessObjectId(refs[i].Id, refs[j].Id) })
}

func lessObjectId(a, b ObjectId) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
