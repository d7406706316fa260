package core

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Canonical JSON import/export of a ReplayState (spec §6 "Replay state
// JSON"). json.Marshal already serializes Go maps with sorted keys and
// without insignificant whitespace, which is what makes the objects/
// packages sections of the document canonical; struct-typed sections are
// serialized in a fixed declaration order, which is equally deterministic
// and therefore still satisfies the round-trip law `export(import(export(s)))
// == export(s)` (spec §8) even though it is not
// alphabetically sorted field-by-field.

type jsonReplayState struct {
	Transaction       jsonTransaction        `json:"transaction"`
	Objects           map[string]jsonObject  `json:"objects"`
	Packages          map[string]jsonPackage `json:"packages"`
	ProtocolVersion   uint64                 `json:"protocol_version"`
	Epoch             uint64                 `json:"epoch"`
	ReferenceGasPrice uint64                 `json:"reference_gas_price"`
	Checkpoint        *uint64                `json:"checkpoint,omitempty"`
}

type jsonTransaction struct {
	Digest      string         `json:"digest"`
	Sender      string         `json:"sender"`
	GasBudget   uint64         `json:"gas_budget"`
	GasPrice    uint64         `json:"gas_price"`
	TimestampMs uint64         `json:"timestamp_ms"`
	Commands    []jsonCommand  `json:"commands"`
	Inputs      []jsonInput    `json:"inputs"`
	TypeParams  []jsonTypeTag  `json:"type_params,omitempty"`
	Effects     *jsonEffects   `json:"effects,omitempty"`
}

type jsonTypeTag struct {
	Address    string        `json:"address"`
	Module     string        `json:"module"`
	Name       string        `json:"name"`
	TypeParams []jsonTypeTag `json:"type_params,omitempty"`
}

type jsonInput struct {
	Kind                 string `json:"kind"`
	BytesBase64          string `json:"bytes_base64,omitempty"`
	Id                   string `json:"id,omitempty"`
	Version              uint64 `json:"version,omitempty"`
	Digest               string `json:"digest,omitempty"`
	InitialSharedVersion uint64 `json:"initial_shared_version,omitempty"`
	Mutable              bool   `json:"mutable,omitempty"`
}

type jsonArgument struct {
	Kind string `json:"kind"`
	Idx  int    `json:"idx"`
	Nest int    `json:"nest,omitempty"`
}

type jsonCommand struct {
	Kind string `json:"kind"`

	Package   string         `json:"package,omitempty"`
	Module    string         `json:"module,omitempty"`
	Function  string         `json:"function,omitempty"`
	TypeArgs  []jsonTypeTag  `json:"type_args,omitempty"`
	Arguments []jsonArgument `json:"arguments,omitempty"`

	Objects   []jsonArgument `json:"objects,omitempty"`
	Recipient *jsonArgument  `json:"recipient,omitempty"`

	Coin    *jsonArgument  `json:"coin,omitempty"`
	Amounts []jsonArgument `json:"amounts,omitempty"`

	Dest    *jsonArgument  `json:"dest,omitempty"`
	Sources []jsonArgument `json:"sources,omitempty"`

	ElementType *jsonTypeTag   `json:"element_type,omitempty"`
	Elements    []jsonArgument `json:"elements,omitempty"`

	ModulesBase64  []string `json:"modules_base64,omitempty"`
	Deps           []string `json:"deps,omitempty"`
	UpgradePackage string   `json:"upgrade_package,omitempty"`
	Ticket         *jsonArgument `json:"ticket,omitempty"`
}

type jsonStatus struct {
	Kind      string `json:"kind"`
	Location  string `json:"location,omitempty"`
	Code      uint64 `json:"code,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

type jsonObjectRef struct {
	Id      string `json:"id"`
	Version uint64 `json:"version"`
	Digest  string `json:"digest"`
}

type jsonEvent struct {
	Type          jsonTypeTag `json:"type"`
	Sender        string      `json:"sender"`
	PayloadBase64 string      `json:"payload_base64"`
}

type jsonEffects struct {
	Status                        jsonStatus      `json:"status"`
	Created                       []jsonObjectRef `json:"created,omitempty"`
	Mutated                       []jsonObjectRef `json:"mutated,omitempty"`
	Deleted                       []jsonObjectRef `json:"deleted,omitempty"`
	Wrapped                       []jsonObjectRef `json:"wrapped,omitempty"`
	Unwrapped                     []jsonObjectRef `json:"unwrapped,omitempty"`
	Events                        []jsonEvent     `json:"events,omitempty"`
	GasUsed                       uint64          `json:"gas_used"`
	UnchangedLoadedRuntimeObjects []jsonObjectRef `json:"unchanged_loaded_runtime_objects,omitempty"`
}

type jsonOwner struct {
	Kind                 string `json:"kind"`
	Address              string `json:"address,omitempty"`
	Parent               string `json:"parent,omitempty"`
	InitialSharedVersion uint64 `json:"initial_shared_version,omitempty"`
}

type jsonObject struct {
	Owner       jsonOwner    `json:"owner"`
	Type        *jsonTypeTag `json:"type,omitempty"`
	BytesBase64 string       `json:"bytes_base64"`
	Digest      string       `json:"digest"`
	IsPackage   bool         `json:"is_package,omitempty"`
}

type jsonLinkageEntry struct {
	DepOriginalId string `json:"dep_original_id"`
	StorageId     string `json:"storage_id"`
	Version       uint64 `json:"version"`
}

type jsonPackage struct {
	OriginalId    string             `json:"original_id"`
	Version       uint64             `json:"version"`
	ModulesBase64 map[string]string  `json:"modules_base64"`
	Linkage       []jsonLinkageEntry `json:"linkage,omitempty"`
}

// ExportReplayState serializes rs into the canonical JSON document of spec
// §6. tx and effects (if known) are recorded alongside the object/package
// tables so a subsequent ImportReplayState reconstructs an equivalent
// ReplayState without needing to re-consult a StateProvider.
func ExportReplayState(rs *ReplayState, effects *Effects) ([]byte, error) {
	doc := jsonReplayState{
		Transaction:       exportTransaction(rs.Transaction, effects),
		Objects:           exportObjects(rs.Objects),
		Packages:          exportPackages(rs.Packages),
		ProtocolVersion:   rs.ProtocolVersion,
		Epoch:             rs.Epoch,
		ReferenceGasPrice: rs.ReferenceGasPrice,
	}
	if rs.CheckpointHint != nil {
		doc.Checkpoint = rs.CheckpointHint
	}
	return json.Marshal(doc)
}

// ImportReplayState is the inverse of ExportReplayState: it reconstructs a
// ReplayState's object store and package registry from the canonical
// document, along with the Transaction and (if present) recorded Effects.
func ImportReplayState(data []byte, cacheEntries int) (*ReplayState, *Effects, error) {
	var doc jsonReplayState
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, err
	}

	tx, effects, err := importTransaction(doc.Transaction)
	if err != nil {
		return nil, nil, err
	}

	store := NewVersionedObjectStore()
	for key, jo := range doc.Objects {
		id, version, err := parseObjectKey(key)
		if err != nil {
			return nil, nil, err
		}
		o, err := importObject(id, version, jo)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Insert(o); err != nil {
			return nil, nil, err
		}
	}

	registry := NewPackageRegistry(cacheEntries)
	for storageKey, jp := range doc.Packages {
		storageId, err := AddressFromHex(storageKey)
		if err != nil {
			return nil, nil, err
		}
		p, err := importPackage(storageId, jp)
		if err != nil {
			return nil, nil, err
		}
		registry.Install(p)
	}

	rs := &ReplayState{
		Transaction:       tx,
		Objects:           store,
		Packages:          registry,
		ProtocolVersion:   doc.ProtocolVersion,
		Epoch:             doc.Epoch,
		ReferenceGasPrice: doc.ReferenceGasPrice,
	}
	if doc.Checkpoint != nil {
		v := *doc.Checkpoint
		rs.CheckpointHint = &v
	}
	return rs, effects, nil
}

func exportTransaction(tx Transaction, effects *Effects) jsonTransaction {
	jt := jsonTransaction{
		Digest:      tx.Digest.Hex(),
		Sender:      tx.Sender.Hex(),
		GasBudget:   tx.GasBudget,
		GasPrice:    tx.GasPrice,
		TimestampMs: tx.TimestampMs,
	}
	for _, tp := range tx.TypeParams {
		jt.TypeParams = append(jt.TypeParams, exportTypeTag(tp))
	}
	for _, in := range tx.Inputs {
		jt.Inputs = append(jt.Inputs, exportInput(in))
	}
	for _, cmd := range tx.Commands {
		jt.Commands = append(jt.Commands, exportCommand(cmd))
	}
	if effects != nil {
		je := exportEffects(*effects)
		jt.Effects = &je
	}
	return jt
}

func exportTypeTag(t TypeTag) jsonTypeTag {
	jt := jsonTypeTag{Address: t.Address.Hex(), Module: t.Module, Name: t.Name}
	for _, p := range t.TypeParams {
		jt.TypeParams = append(jt.TypeParams, exportTypeTag(p))
	}
	return jt
}

func importTypeTag(jt jsonTypeTag) (TypeTag, error) {
	addr, err := AddressFromHex(jt.Address)
	if err != nil {
		return TypeTag{}, err
	}
	t := TypeTag{Address: addr, Module: jt.Module, Name: jt.Name}
	for _, p := range jt.TypeParams {
		sub, err := importTypeTag(p)
		if err != nil {
			return TypeTag{}, err
		}
		t.TypeParams = append(t.TypeParams, sub)
	}
	return t, nil
}

func exportInput(in Input) jsonInput {
	ji := jsonInput{Kind: inputKindName(in.Kind)}
	switch in.Kind {
	case InputPure:
		ji.BytesBase64 = base64.StdEncoding.EncodeToString(in.Bytes)
	case InputOwnedObject, InputReceiving:
		ji.Id = in.Id.Hex()
		ji.Version = uint64(in.Version)
		ji.Digest = in.Digest.Hex()
	case InputSharedObject:
		ji.Id = in.Id.Hex()
		ji.InitialSharedVersion = uint64(in.InitialSharedVersion)
		ji.Mutable = in.Mutable
	}
	return ji
}

func importInput(ji jsonInput) (Input, error) {
	kind, err := inputKindFromName(ji.Kind)
	if err != nil {
		return Input{}, err
	}
	in := Input{Kind: kind}
	switch kind {
	case InputPure:
		b, err := base64.StdEncoding.DecodeString(ji.BytesBase64)
		if err != nil {
			return Input{}, err
		}
		in.Bytes = b
	case InputOwnedObject, InputReceiving:
		if in.Id, err = ObjectIdFromHex(ji.Id); err != nil {
			return Input{}, err
		}
		in.Version = Version(ji.Version)
		if in.Digest, err = DigestFromHex(ji.Digest); err != nil {
			return Input{}, err
		}
	case InputSharedObject:
		if in.Id, err = ObjectIdFromHex(ji.Id); err != nil {
			return Input{}, err
		}
		in.InitialSharedVersion = Version(ji.InitialSharedVersion)
		in.Mutable = ji.Mutable
	}
	return in, nil
}

func inputKindName(k InputKind) string {
	switch k {
	case InputPure:
		return "pure"
	case InputOwnedObject:
		return "owned_object"
	case InputSharedObject:
		return "shared_object"
	case InputReceiving:
		return "receiving"
	case InputGasCoin:
		return "gas_coin"
	default:
		return "unknown"
	}
}

func inputKindFromName(s string) (InputKind, error) {
	switch s {
	case "pure":
		return InputPure, nil
	case "owned_object":
		return InputOwnedObject, nil
	case "shared_object":
		return InputSharedObject, nil
	case "receiving":
		return InputReceiving, nil
	case "gas_coin":
		return InputGasCoin, nil
	default:
		return 0, fmt.Errorf("json state: unknown input kind %q", s)
	}
}

func exportArgument(a Argument) jsonArgument {
	names := [...]string{"input", "result", "nested_result", "gas_coin"}
	name := "unknown"
	if int(a.Kind) >= 0 && int(a.Kind) < len(names) {
		name = names[a.Kind]
	}
	return jsonArgument{Kind: name, Idx: a.Idx, Nest: a.Nest}
}

func importArgument(ja jsonArgument) (Argument, error) {
	switch ja.Kind {
	case "input":
		return InputArg(ja.Idx), nil
	case "result":
		return ResultArg(ja.Idx), nil
	case "nested_result":
		return NestedResultArg(ja.Idx, ja.Nest), nil
	case "gas_coin":
		return GasCoinArg(), nil
	default:
		return Argument{}, fmt.Errorf("json state: unknown argument kind %q", ja.Kind)
	}
}

func exportArguments(args []Argument) []jsonArgument {
	out := make([]jsonArgument, 0, len(args))
	for _, a := range args {
		out = append(out, exportArgument(a))
	}
	return out
}

func importArguments(jargs []jsonArgument) ([]Argument, error) {
	out := make([]Argument, 0, len(jargs))
	for _, ja := range jargs {
		a, err := importArgument(ja)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func commandKindName(k CommandKind) string {
	switch k {
	case CmdMoveCall:
		return "move_call"
	case CmdTransferObjects:
		return "transfer_objects"
	case CmdSplitCoins:
		return "split_coins"
	case CmdMergeCoins:
		return "merge_coins"
	case CmdMakeVec:
		return "make_vec"
	case CmdPublish:
		return "publish"
	case CmdUpgrade:
		return "upgrade"
	default:
		return "unknown"
	}
}

func commandKindFromName(s string) (CommandKind, error) {
	switch s {
	case "move_call":
		return CmdMoveCall, nil
	case "transfer_objects":
		return CmdTransferObjects, nil
	case "split_coins":
		return CmdSplitCoins, nil
	case "merge_coins":
		return CmdMergeCoins, nil
	case "make_vec":
		return CmdMakeVec, nil
	case "publish":
		return CmdPublish, nil
	case "upgrade":
		return CmdUpgrade, nil
	default:
		return 0, fmt.Errorf("json state: unknown command kind %q", s)
	}
}

func exportCommand(cmd Command) jsonCommand {
	jc := jsonCommand{Kind: commandKindName(cmd.Kind)}
	switch cmd.Kind {
	case CmdMoveCall:
		jc.Package = cmd.Package.Hex()
		jc.Module = cmd.Module
		jc.Function = cmd.Function
		for _, t := range cmd.TypeArgs {
			jc.TypeArgs = append(jc.TypeArgs, exportTypeTag(t))
		}
		jc.Arguments = exportArguments(cmd.Arguments)
	case CmdTransferObjects:
		jc.Objects = exportArguments(cmd.Objects)
		r := exportArgument(cmd.Recipient)
		jc.Recipient = &r
	case CmdSplitCoins:
		c := exportArgument(cmd.Coin)
		jc.Coin = &c
		jc.Amounts = exportArguments(cmd.Amounts)
	case CmdMergeCoins:
		d := exportArgument(cmd.Dest)
		jc.Dest = &d
		jc.Sources = exportArguments(cmd.Sources)
	case CmdMakeVec:
		if cmd.ElementType != nil {
			t := exportTypeTag(*cmd.ElementType)
			jc.ElementType = &t
		}
		jc.Elements = exportArguments(cmd.Elements)
	case CmdPublish, CmdUpgrade:
		for _, m := range cmd.Modules {
			jc.ModulesBase64 = append(jc.ModulesBase64, base64.StdEncoding.EncodeToString(m))
		}
		for _, d := range cmd.Deps {
			jc.Deps = append(jc.Deps, d.Hex())
		}
		if cmd.Kind == CmdUpgrade {
			jc.UpgradePackage = cmd.UpgradePackage.Hex()
			t := exportArgument(cmd.Ticket)
			jc.Ticket = &t
		}
	}
	return jc
}

func importCommand(jc jsonCommand) (Command, error) {
	kind, err := commandKindFromName(jc.Kind)
	if err != nil {
		return Command{}, err
	}
	cmd := Command{Kind: kind}
	switch kind {
	case CmdMoveCall:
		if cmd.Package, err = AddressFromHex(jc.Package); err != nil {
			return Command{}, err
		}
		cmd.Module = jc.Module
		cmd.Function = jc.Function
		for _, jt := range jc.TypeArgs {
			t, err := importTypeTag(jt)
			if err != nil {
				return Command{}, err
			}
			cmd.TypeArgs = append(cmd.TypeArgs, t)
		}
		if cmd.Arguments, err = importArguments(jc.Arguments); err != nil {
			return Command{}, err
		}
	case CmdTransferObjects:
		if cmd.Objects, err = importArguments(jc.Objects); err != nil {
			return Command{}, err
		}
		if jc.Recipient != nil {
			if cmd.Recipient, err = importArgument(*jc.Recipient); err != nil {
				return Command{}, err
			}
		}
	case CmdSplitCoins:
		if jc.Coin != nil {
			if cmd.Coin, err = importArgument(*jc.Coin); err != nil {
				return Command{}, err
			}
		}
		if cmd.Amounts, err = importArguments(jc.Amounts); err != nil {
			return Command{}, err
		}
	case CmdMergeCoins:
		if jc.Dest != nil {
			if cmd.Dest, err = importArgument(*jc.Dest); err != nil {
				return Command{}, err
			}
		}
		if cmd.Sources, err = importArguments(jc.Sources); err != nil {
			return Command{}, err
		}
	case CmdMakeVec:
		if jc.ElementType != nil {
			t, err := importTypeTag(*jc.ElementType)
			if err != nil {
				return Command{}, err
			}
			cmd.ElementType = &t
		}
		if cmd.Elements, err = importArguments(jc.Elements); err != nil {
			return Command{}, err
		}
	case CmdPublish, CmdUpgrade:
		for _, mb := range jc.ModulesBase64 {
			m, err := base64.StdEncoding.DecodeString(mb)
			if err != nil {
				return Command{}, err
			}
			cmd.Modules = append(cmd.Modules, m)
		}
		for _, d := range jc.Deps {
			addr, err := AddressFromHex(d)
			if err != nil {
				return Command{}, err
			}
			cmd.Deps = append(cmd.Deps, addr)
		}
		if kind == CmdUpgrade {
			if cmd.UpgradePackage, err = AddressFromHex(jc.UpgradePackage); err != nil {
				return Command{}, err
			}
			if jc.Ticket != nil {
				if cmd.Ticket, err = importArgument(*jc.Ticket); err != nil {
					return Command{}, err
				}
			}
		}
	}
	return cmd, nil
}

func exportStatus(s ExecutionStatus) jsonStatus {
	names := [...]string{"success", "abort", "execution_error"}
	name := "unknown"
	if int(s.Kind) >= 0 && int(s.Kind) < len(names) {
		name = names[s.Kind]
	}
	return jsonStatus{Kind: name, Location: s.Location, Code: s.Code, ErrorKind: s.ErrorKind}
}

func importStatus(js jsonStatus) (ExecutionStatus, error) {
	var kind ExecutionStatusKind
	switch js.Kind {
	case "success":
		kind = StatusSuccess
	case "abort":
		kind = StatusAbort
	case "execution_error":
		kind = StatusExecutionError
	default:
		return ExecutionStatus{}, fmt.Errorf("json state: unknown status kind %q", js.Kind)
	}
	return ExecutionStatus{Kind: kind, Location: js.Location, Code: js.Code, ErrorKind: js.ErrorKind}, nil
}

func exportObjectRef(r ObjectRef) jsonObjectRef {
	return jsonObjectRef{Id: r.Id.Hex(), Version: uint64(r.Version), Digest: r.Digest.Hex()}
}

func importObjectRef(jr jsonObjectRef) (ObjectRef, error) {
	id, err := ObjectIdFromHex(jr.Id)
	if err != nil {
		return ObjectRef{}, err
	}
	digest, err := DigestFromHex(jr.Digest)
	if err != nil {
		return ObjectRef{}, err
	}
	return ObjectRef{Id: id, Version: Version(jr.Version), Digest: digest}, nil
}

func exportObjectRefs(refs []ObjectRef) []jsonObjectRef {
	out := make([]jsonObjectRef, 0, len(refs))
	for _, r := range refs {
		out = append(out, exportObjectRef(r))
	}
	return out
}

func importObjectRefs(jrefs []jsonObjectRef) ([]ObjectRef, error) {
	out := make([]ObjectRef, 0, len(jrefs))
	for _, jr := range jrefs {
		r, err := importObjectRef(jr)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func exportEffects(e Effects) jsonEffects {
	je := jsonEffects{
		Status:                        exportStatus(e.Status),
		Created:                       exportObjectRefs(e.Created),
		Mutated:                       exportObjectRefs(e.Mutated),
		Deleted:                       exportObjectRefs(e.Deleted),
		Wrapped:                       exportObjectRefs(e.Wrapped),
		Unwrapped:                     exportObjectRefs(e.Unwrapped),
		GasUsed:                       e.GasUsed,
		UnchangedLoadedRuntimeObjects: exportObjectRefs(e.UnchangedLoadedRuntimeObjects),
	}
	for _, ev := range e.Events {
		je.Events = append(je.Events, jsonEvent{
			Type:          exportTypeTag(ev.Type),
			Sender:        ev.Sender.Hex(),
			PayloadBase64: base64.StdEncoding.EncodeToString(ev.Payload),
		})
	}
	return je
}

func importEffects(je jsonEffects) (Effects, error) {
	status, err := importStatus(je.Status)
	if err != nil {
		return Effects{}, err
	}
	e := Effects{Status: status, GasUsed: je.GasUsed}
	if e.Created, err = importObjectRefs(je.Created); err != nil {
		return Effects{}, err
	}
	if e.Mutated, err = importObjectRefs(je.Mutated); err != nil {
		return Effects{}, err
	}
	if e.Deleted, err = importObjectRefs(je.Deleted); err != nil {
		return Effects{}, err
	}
	if e.Wrapped, err = importObjectRefs(je.Wrapped); err != nil {
		return Effects{}, err
	}
	if e.Unwrapped, err = importObjectRefs(je.Unwrapped); err != nil {
		return Effects{}, err
	}
	if e.UnchangedLoadedRuntimeObjects, err = importObjectRefs(je.UnchangedLoadedRuntimeObjects); err != nil {
		return Effects{}, err
	}
	for _, jev := range je.Events {
		tag, err := importTypeTag(jev.Type)
		if err != nil {
			return Effects{}, err
		}
		sender, err := AddressFromHex(jev.Sender)
		if err != nil {
			return Effects{}, err
		}
		payload, err := base64.StdEncoding.DecodeString(jev.PayloadBase64)
		if err != nil {
			return Effects{}, err
		}
		e.Events = append(e.Events, Event{Type: tag, Sender: sender, Payload: payload})
	}
	return e, nil
}

func importTransaction(jt jsonTransaction) (Transaction, *Effects, error) {
	digest, err := DigestFromHex(jt.Digest)
	if err != nil {
		return Transaction{}, nil, err
	}
	sender, err := AddressFromHex(jt.Sender)
	if err != nil {
		return Transaction{}, nil, err
	}
	tx := Transaction{
		Digest:      digest,
		Sender:      sender,
		GasBudget:   jt.GasBudget,
		GasPrice:    jt.GasPrice,
		TimestampMs: jt.TimestampMs,
	}
	for _, jtp := range jt.TypeParams {
		tp, err := importTypeTag(jtp)
		if err != nil {
			return Transaction{}, nil, err
		}
		tx.TypeParams = append(tx.TypeParams, tp)
	}
	for _, ji := range jt.Inputs {
		in, err := importInput(ji)
		if err != nil {
			return Transaction{}, nil, err
		}
		tx.Inputs = append(tx.Inputs, in)
	}
	for _, jc := range jt.Commands {
		cmd, err := importCommand(jc)
		if err != nil {
			return Transaction{}, nil, err
		}
		tx.Commands = append(tx.Commands, cmd)
	}
	var effects *Effects
	if jt.Effects != nil {
		e, err := importEffects(*jt.Effects)
		if err != nil {
			return Transaction{}, nil, err
		}
		effects = &e
	}
	return tx, effects, nil
}

func ownerKindName(k OwnerKind) string {
	switch k {
	case OwnerAddress:
		return "address"
	case OwnerObject:
		return "object"
	case OwnerShared:
		return "shared"
	case OwnerImmutable:
		return "immutable"
	default:
		return "unknown"
	}
}

func ownerKindFromName(s string) (OwnerKind, error) {
	switch s {
	case "address":
		return OwnerAddress, nil
	case "object":
		return OwnerObject, nil
	case "shared":
		return OwnerShared, nil
	case "immutable":
		return OwnerImmutable, nil
	default:
		return 0, fmt.Errorf("json state: unknown owner kind %q", s)
	}
}

func exportOwner(o Owner) jsonOwner {
	jo := jsonOwner{Kind: ownerKindName(o.Kind)}
	switch o.Kind {
	case OwnerAddress:
		jo.Address = o.Address.Hex()
	case OwnerObject:
		jo.Parent = o.Parent.Hex()
	case OwnerShared:
		jo.InitialSharedVersion = uint64(o.InitialSharedVersion)
	}
	return jo
}

func importOwner(jo jsonOwner) (Owner, error) {
	kind, err := ownerKindFromName(jo.Kind)
	if err != nil {
		return Owner{}, err
	}
	switch kind {
	case OwnerAddress:
		addr, err := AddressFromHex(jo.Address)
		if err != nil {
			return Owner{}, err
		}
		return AddressOwner(addr), nil
	case OwnerObject:
		parent, err := ObjectIdFromHex(jo.Parent)
		if err != nil {
			return Owner{}, err
		}
		return ObjectOwner(parent), nil
	case OwnerShared:
		return SharedOwner(Version(jo.InitialSharedVersion)), nil
	default:
		return ImmutableOwner(), nil
	}
}

func exportObjects(store *VersionedObjectStore) map[string]jsonObject {
	store.mu.RLock()
	defer store.mu.RUnlock()
	out := make(map[string]jsonObject, len(store.objects))
	for key, o := range store.objects {
		out[objectKeyString(key.id, key.v)] = jsonObject{
			Owner:       exportOwner(o.Owner),
			Type:        exportTypePtr(o.Type),
			BytesBase64: base64.StdEncoding.EncodeToString(o.Bytes),
			Digest:      o.Digest.Hex(),
			IsPackage:   o.IsPackage,
		}
	}
	return out
}

func exportTypePtr(t *TypeTag) *jsonTypeTag {
	if t == nil {
		return nil
	}
	jt := exportTypeTag(*t)
	return &jt
}

func importObject(id ObjectId, version Version, jo jsonObject) (Object, error) {
	owner, err := importOwner(jo.Owner)
	if err != nil {
		return Object{}, err
	}
	bytes, err := base64.StdEncoding.DecodeString(jo.BytesBase64)
	if err != nil {
		return Object{}, err
	}
	digest, err := DigestFromHex(jo.Digest)
	if err != nil {
		return Object{}, err
	}
	o := Object{Id: id, Version: version, Digest: digest, Owner: owner, Bytes: bytes, IsPackage: jo.IsPackage}
	if jo.Type != nil {
		t, err := importTypeTag(*jo.Type)
		if err != nil {
			return Object{}, err
		}
		o.Type = &t
	}
	return o, nil
}

func objectKeyString(id ObjectId, v Version) string {
	return id.Hex() + "::" + strconv.FormatUint(uint64(v), 10)
}

func parseObjectKey(key string) (ObjectId, Version, error) {
	parts := strings.SplitN(key, "::", 2)
	if len(parts) != 2 {
		return ObjectId{}, 0, fmt.Errorf("json state: malformed object key %q", key)
	}
	id, err := ObjectIdFromHex(parts[0])
	if err != nil {
		return ObjectId{}, 0, err
	}
	v, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return ObjectId{}, 0, fmt.Errorf("json state: malformed object key version %q: %w", key, err)
	}
	return id, Version(v), nil
}

func exportPackages(registry *PackageRegistry) map[string]jsonPackage {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	out := make(map[string]jsonPackage, len(registry.byStorage))
	for storageId, p := range registry.byStorage {
		jp := jsonPackage{
			OriginalId:    p.OriginalId.Hex(),
			Version:       p.Version,
			ModulesBase64: make(map[string]string, len(p.Modules)),
		}
		for name, code := range p.Modules {
			jp.ModulesBase64[name] = base64.StdEncoding.EncodeToString(code)
		}
		for _, l := range p.Linkage {
			jp.Linkage = append(jp.Linkage, jsonLinkageEntry{
				DepOriginalId: l.DepOriginalId.Hex(),
				StorageId:     l.StorageId.Hex(),
				Version:       l.Version,
			})
		}
		out[storageId.Hex()] = jp
	}
	return out
}

func importPackage(storageId Address, jp jsonPackage) (*Package, error) {
	originalId, err := AddressFromHex(jp.OriginalId)
	if err != nil {
		return nil, err
	}
	p := &Package{
		OriginalId: originalId,
		StorageId:  storageId,
		Version:    jp.Version,
		Modules:    make(map[string][]byte, len(jp.ModulesBase64)),
	}
	for name, mb := range jp.ModulesBase64 {
		code, err := base64.StdEncoding.DecodeString(mb)
		if err != nil {
			return nil, err
		}
		p.Modules[name] = code
	}
	for _, jl := range jp.Linkage {
		dep, err := AddressFromHex(jl.DepOriginalId)
		if err != nil {
			return nil, err
		}
		storage, err := AddressFromHex(jl.StorageId)
		if err != nil {
			return nil, err
		}
		p.Linkage = append(p.Linkage, LinkageEntry{DepOriginalId: dep, StorageId: storage, Version: jl.Version})
	}
	return p, nil
}
