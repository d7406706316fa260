package core

import (
	"bytes"
	"testing"
)

func buildRoundTripState() *ReplayState {
	sender := AddressFromBytes([]byte("alice"))
	ownedId := ObjectIdFromBytes([]byte("owned"))
	pkgAddr := AddressFromBytes([]byte("pkg"))

	tx := Transaction{
		Digest:      DigestFromBytes([]byte("tx")),
		Sender:      sender,
		GasBudget:   1_000_000,
		GasPrice:    1000,
		TimestampMs: 42,
		Inputs: []Input{
			{Kind: InputPure, Bytes: []byte{1, 2, 3}},
			{Kind: InputOwnedObject, Id: ownedId, Version: 1, Digest: DigestFromBytes([]byte("owned-digest"))},
			{Kind: InputSharedObject, Id: ObjectIdFromBytes([]byte("shared")), InitialSharedVersion: 5, Mutable: true},
		},
		Commands: []Command{
			{
				Kind:      CmdMoveCall,
				Package:   pkgAddr,
				Module:    "coin",
				Function:  "split",
				TypeArgs:  []TypeTag{{Address: pkgAddr, Module: "sui", Name: "SUI"}},
				Arguments: []Argument{InputArg(0), GasCoinArg()},
			},
			{Kind: CmdTransferObjects, Objects: []Argument{InputArg(1)}, Recipient: InputArg(0)},
			{Kind: CmdSplitCoins, Coin: InputArg(1), Amounts: []Argument{ResultArg(0)}},
			{Kind: CmdMergeCoins, Dest: InputArg(1), Sources: []Argument{NestedResultArg(0, 1)}},
			{
				Kind:        CmdMakeVec,
				ElementType: &TypeTag{Module: "coin", Name: "Coin"},
				Elements:    []Argument{InputArg(0)},
			},
			{Kind: CmdPublish, Modules: [][]byte{[]byte("module-bytes")}, Deps: []Address{pkgAddr}},
			{
				Kind:           CmdUpgrade,
				Modules:        [][]byte{[]byte("upgraded-bytes")},
				Deps:           []Address{pkgAddr},
				UpgradePackage: pkgAddr,
				Ticket:         InputArg(2),
			},
		},
		TypeParams: []TypeTag{{Address: pkgAddr, Module: "coin", Name: "Coin"}},
	}

	store := NewVersionedObjectStore()
	store.Insert(Object{
		Id:      ownedId,
		Version: 1,
		Digest:  DigestFromBytes([]byte("owned-digest")),
		Owner:   AddressOwner(sender),
		Bytes:   []byte("owned-bytes"),
		Type:    &TypeTag{Module: "coin", Name: "Coin"},
	})
	store.Insert(Object{
		Id:        ObjectIdFromBytes([]byte("a-package-object")),
		Version:   1,
		Digest:    DigestFromBytes([]byte("pkg-object-digest")),
		Owner:     ImmutableOwner(),
		Bytes:     []byte("pkg-object-bytes"),
		IsPackage: true,
	})
	store.Insert(Object{
		Id:      ObjectIdFromBytes([]byte("child")),
		Version: 1,
		Digest:  DigestFromBytes([]byte("child-digest")),
		Owner:   ObjectOwner(ownedId),
		Bytes:   []byte("child-bytes"),
	})
	store.Insert(Object{
		Id:      ObjectIdFromBytes([]byte("shared-obj")),
		Version: 3,
		Digest:  DigestFromBytes([]byte("shared-digest")),
		Owner:   SharedOwner(1),
		Bytes:   []byte("shared-bytes"),
	})

	registry := NewPackageRegistry(0)
	registry.Install(&Package{
		OriginalId: pkgAddr,
		StorageId:  pkgAddr,
		Version:    1,
		Modules:    map[string][]byte{"coin": []byte("coin-bytecode")},
		Linkage:    []LinkageEntry{{DepOriginalId: AddressFromBytes([]byte("dep")), StorageId: AddressFromBytes([]byte("dep-storage")), Version: 1}},
	})

	checkpoint := uint64(777)
	return &ReplayState{
		Transaction:       tx,
		Objects:           store,
		Packages:          registry,
		CheckpointHint:    &checkpoint,
		ProtocolVersion:   10,
		Epoch:             5,
		ReferenceGasPrice: 1000,
	}
}

func TestExportImportReplayStateRoundTrip(t *testing.T) {
	rs := buildRoundTripState()
	effects := Effects{
		Status:  ExecutionStatus{Kind: StatusSuccess},
		Created: []ObjectRef{{Id: ObjectIdFromBytes([]byte("created")), Version: 1, Digest: DigestFromBytes([]byte("cd"))}},
		GasUsed: 999,
	}

	data, err := ExportReplayState(rs, &effects)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	imported, importedEffects, err := ImportReplayState(data, 0)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if importedEffects == nil {
		t.Fatal("expected recorded effects to survive the round trip")
	}
	if importedEffects.GasUsed != effects.GasUsed {
		t.Fatalf("gas used: got %d, want %d", importedEffects.GasUsed, effects.GasUsed)
	}

	reExported, err := ExportReplayState(imported, importedEffects)
	if err != nil {
		t.Fatalf("re-export: %v", err)
	}
	if !bytes.Equal(data, reExported) {
		t.Fatalf("export(import(export(s))) != export(s)\nfirst:  %s\nsecond: %s", data, reExported)
	}
}

func TestImportReplayStatePreservesObjectFields(t *testing.T) {
	rs := buildRoundTripState()
	data, err := ExportReplayState(rs, nil)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	imported, effects, err := ImportReplayState(data, 0)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if effects != nil {
		t.Fatal("expected no effects when none were exported")
	}

	ownedId := ObjectIdFromBytes([]byte("owned"))
	o, ok := imported.Objects.Get(ownedId, 1)
	if !ok {
		t.Fatal("expected the owned object to survive the round trip")
	}
	if string(o.Bytes) != "owned-bytes" {
		t.Fatalf("bytes: got %q", o.Bytes)
	}
	if o.Type == nil || o.Type.Name != "Coin" {
		t.Fatalf("expected type tag to survive, got %+v", o.Type)
	}
	if o.Owner.Kind != OwnerAddress {
		t.Fatalf("expected address owner, got %+v", o.Owner)
	}

	childId := ObjectIdFromBytes([]byte("child"))
	child, ok := imported.Objects.Get(childId, 1)
	if !ok || child.Owner.Kind != OwnerObject || child.Owner.Parent != ownedId {
		t.Fatalf("expected object-owned child to survive, got %+v ok=%v", child, ok)
	}

	sharedId := ObjectIdFromBytes([]byte("shared-obj"))
	shared, ok := imported.Objects.Get(sharedId, 3)
	if !ok || shared.Owner.Kind != OwnerShared || shared.Owner.InitialSharedVersion != 1 {
		t.Fatalf("expected shared object to survive, got %+v ok=%v", shared, ok)
	}

	if imported.CheckpointHint == nil || *imported.CheckpointHint != 777 {
		t.Fatalf("expected checkpoint hint to survive, got %v", imported.CheckpointHint)
	}
	if imported.ProtocolVersion != 10 || imported.Epoch != 5 || imported.ReferenceGasPrice != 1000 {
		t.Fatalf("expected protocol metadata to survive, got %+v", imported)
	}
}

func TestImportReplayStatePreservesPackageLinkage(t *testing.T) {
	rs := buildRoundTripState()
	data, err := ExportReplayState(rs, nil)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	imported, _, err := ImportReplayState(data, 0)
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	pkgAddr := AddressFromBytes([]byte("pkg"))
	code, err := imported.Packages.LoadModule(pkgAddr, "coin")
	if err != nil {
		t.Fatalf("load module: %v", err)
	}
	if string(code) != "coin-bytecode" {
		t.Fatalf("module bytecode: got %q", code)
	}
}

func TestImportReplayStateRejectsMalformedDocument(t *testing.T) {
	if _, _, err := ImportReplayState([]byte("not json"), 0); err == nil {
		t.Fatal("expected malformed JSON to fail import")
	}
}

func TestImportReplayStateRejectsUnknownInputKind(t *testing.T) {
	data := []byte(`{
		"transaction": {
			"digest": "` + DigestFromBytes([]byte("tx")).Hex() + `",
			"sender": "` + AddressFromBytes([]byte("alice")).Hex() + `",
			"gas_budget": 1,
			"gas_price": 1,
			"timestamp_ms": 1,
			"commands": [],
			"inputs": [{"kind": "not_a_real_kind"}]
		},
		"objects": {},
		"packages": {},
		"protocol_version": 1,
		"epoch": 1,
		"reference_gas_price": 1
	}`)
	if _, _, err := ImportReplayState(data, 0); err == nil {
		t.Fatal("expected an unknown input kind to fail import")
	}
}
