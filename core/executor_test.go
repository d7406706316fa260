package core

import (
	"testing"

	"chainreplay/pkg/config"
)

func newTestReplayStateWithCoin(sender Address, coinId ObjectId, balance uint64) *ReplayState {
	store := NewVersionedObjectStore()
	coinBytes := encodeUint64(balance)
	store.Insert(Object{
		Id:      coinId,
		Version: 1,
		Owner:   AddressOwner(sender),
		Type:    &TypeTag{Module: "coin", Name: "Coin"},
		Bytes:   coinBytes,
		Digest:  ObjectDigest(coinBytes),
	})
	return &ReplayState{
		Transaction: Transaction{
			Digest:    DigestFromBytes([]byte("tx")),
			Sender:    sender,
			GasBudget: 1_000_000,
		},
		Objects:  store,
		Packages: NewPackageRegistry(0),
	}
}

func TestExecutorZeroCommandTransactionSucceeds(t *testing.T) {
	rs := newTestReplayStateWithCoin(AddressFromBytes([]byte("alice")), ObjectIdFromBytes([]byte("coin")), 100)
	cfg := config.Default()
	ex := NewPTBExecutor(rs, nil, nil, &cfg)

	effects, err := ex.Execute(nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if effects.Status.Kind != StatusSuccess {
		t.Fatalf("expected success status, got %v", effects.Status)
	}
	if len(effects.Created) != 0 || len(effects.Mutated) != 0 {
		t.Fatalf("expected no created/mutated objects, got %+v", effects)
	}
}

func TestExecutorTransferObjectsMutatesOwner(t *testing.T) {
	sender := AddressFromBytes([]byte("alice"))
	recipient := AddressFromBytes([]byte("bob"))
	coinId := ObjectIdFromBytes([]byte("coin"))
	rs := newTestReplayStateWithCoin(sender, coinId, 100)
	rs.Transaction.Inputs = []Input{
		{Kind: InputOwnedObject, Id: coinId, Version: 1},
		{Kind: InputPure, Bytes: recipient[:]},
	}
	rs.Transaction.Commands = []Command{
		{Kind: CmdTransferObjects, Objects: []Argument{InputArg(0)}, Recipient: InputArg(1)},
	}

	cfg := config.Default()
	ex := NewPTBExecutor(rs, nil, nil, &cfg)
	effects, err := ex.Execute(nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if effects.Status.Kind != StatusSuccess {
		t.Fatalf("expected success, got %+v", effects.Status)
	}
	if len(effects.Mutated) != 1 || effects.Mutated[0].Id != coinId {
		t.Fatalf("expected the coin to be reported mutated, got %+v", effects.Mutated)
	}

	owner, ok := ex.Overlay().OwnershipOf(coinId)
	if !ok || owner.Kind != OwnerAddress || owner.Address != recipient {
		t.Fatalf("expected ownership transferred to recipient, got %+v, %v", owner, ok)
	}
}

func TestExecutorSplitCoinsProducesCorrectBalances(t *testing.T) {
	sender := AddressFromBytes([]byte("alice"))
	coinId := ObjectIdFromBytes([]byte("coin"))
	rs := newTestReplayStateWithCoin(sender, coinId, 100)
	rs.Transaction.Inputs = []Input{
		{Kind: InputOwnedObject, Id: coinId, Version: 1},
		{Kind: InputPure, Bytes: encodeUint64(30)},
	}
	rs.Transaction.Commands = []Command{
		{Kind: CmdSplitCoins, Coin: InputArg(0), Amounts: []Argument{InputArg(1)}},
	}

	cfg := config.Default()
	ex := NewPTBExecutor(rs, nil, nil, &cfg)
	effects, err := ex.Execute(nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if effects.Status.Kind != StatusSuccess {
		t.Fatalf("expected success, got %+v", effects.Status)
	}
	if len(effects.Created) != 1 {
		t.Fatalf("expected exactly 1 created coin, got %+v", effects.Created)
	}
	newCoin, ok := ex.Overlay().Get(effects.Created[0].Id, effects.Created[0].Version)
	if !ok {
		t.Fatal("expected to find the newly created coin in the overlay")
	}
	if decodeUint64(newCoin.Bytes) != 30 {
		t.Fatalf("expected new coin balance 30, got %d", decodeUint64(newCoin.Bytes))
	}
	if newCoin.Digest == (Digest{}) {
		t.Fatal("expected new coin to carry a non-zero digest")
	}

	remaining, ok := ex.Overlay().Get(coinId, 2)
	if !ok {
		t.Fatal("expected remaining coin at version 2")
	}
	if decodeUint64(remaining.Bytes) != 70 {
		t.Fatalf("expected remaining balance 70, got %d", decodeUint64(remaining.Bytes))
	}
}

func TestExecutorSplitCoinsOverBalanceAborts(t *testing.T) {
	sender := AddressFromBytes([]byte("alice"))
	coinId := ObjectIdFromBytes([]byte("coin"))
	rs := newTestReplayStateWithCoin(sender, coinId, 10)
	rs.Transaction.Inputs = []Input{
		{Kind: InputOwnedObject, Id: coinId, Version: 1},
		{Kind: InputPure, Bytes: encodeUint64(999)},
	}
	rs.Transaction.Commands = []Command{
		{Kind: CmdSplitCoins, Coin: InputArg(0), Amounts: []Argument{InputArg(1)}},
	}

	cfg := config.Default()
	ex := NewPTBExecutor(rs, nil, nil, &cfg)
	effects, err := ex.Execute(nil)
	if err == nil {
		t.Fatal("expected an error for over-balance split")
	}
	if effects.Status.Kind != StatusExecutionError {
		t.Fatalf("expected execution-error status, got %+v", effects.Status)
	}
}

func TestExecutorMergeCoinsCombinesBalances(t *testing.T) {
	sender := AddressFromBytes([]byte("alice"))
	destId := ObjectIdFromBytes([]byte("dest"))
	srcId := ObjectIdFromBytes([]byte("src"))
	rs := newTestReplayStateWithCoin(sender, destId, 40)
	srcBytes := encodeUint64(15)
	rs.Objects.Insert(Object{
		Id: srcId, Version: 1, Owner: AddressOwner(sender),
		Type: &TypeTag{Module: "coin", Name: "Coin"}, Bytes: srcBytes, Digest: ObjectDigest(srcBytes),
	})
	rs.Transaction.Inputs = []Input{
		{Kind: InputOwnedObject, Id: destId, Version: 1},
		{Kind: InputOwnedObject, Id: srcId, Version: 1},
	}
	rs.Transaction.Commands = []Command{
		{Kind: CmdMergeCoins, Dest: InputArg(0), Sources: []Argument{InputArg(1)}},
	}

	cfg := config.Default()
	ex := NewPTBExecutor(rs, nil, nil, &cfg)
	effects, err := ex.Execute(nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if effects.Status.Kind != StatusSuccess {
		t.Fatalf("expected success, got %+v", effects.Status)
	}
	if len(effects.Deleted) != 1 || effects.Deleted[0].Id != srcId {
		t.Fatalf("expected source coin deleted, got %+v", effects.Deleted)
	}
	dest, ok := ex.Overlay().Get(destId, 2)
	if !ok {
		t.Fatal("expected mutated dest coin at version 2")
	}
	if decodeUint64(dest.Bytes) != 55 {
		t.Fatalf("expected combined balance 55, got %d", decodeUint64(dest.Bytes))
	}
}

func TestExecutorPublishInstallsPackage(t *testing.T) {
	sender := AddressFromBytes([]byte("alice"))
	rs := newTestReplayStateWithCoin(sender, ObjectIdFromBytes([]byte("coin")), 1)
	rs.Transaction.Commands = []Command{
		{Kind: CmdPublish, Modules: [][]byte{[]byte("module-bytecode")}},
	}

	cfg := config.Default()
	ex := NewPTBExecutor(rs, nil, nil, &cfg)
	effects, err := ex.Execute(nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if effects.Status.Kind != StatusSuccess {
		t.Fatalf("expected success, got %+v", effects.Status)
	}
	if len(ex.results) == 0 || len(ex.results[0]) == 0 {
		t.Fatal("expected publish to produce a result value (the new package address)")
	}
	newAddr := AddressFromBytes(ex.results[0][0].Bytes)
	if _, err := rs.Packages.LoadModule(newAddr, "module_0"); err != nil {
		t.Fatalf("expected published module to be installed, got: %v", err)
	}
}

func TestExecutorMoveCallWithoutHarnessFails(t *testing.T) {
	sender := AddressFromBytes([]byte("alice"))
	rs := newTestReplayStateWithCoin(sender, ObjectIdFromBytes([]byte("coin")), 1)
	rs.Transaction.Commands = []Command{
		{Kind: CmdMoveCall, Package: AddressFromBytes([]byte("pkg")), Module: "m", Function: "f"},
	}

	cfg := config.Default()
	ex := NewPTBExecutor(rs, nil, nil, &cfg)
	effects, err := ex.Execute(nil)
	if err == nil {
		t.Fatal("expected MoveCall without a harness to fail")
	}
	if effects.Status.Kind != StatusExecutionError {
		t.Fatalf("expected execution-error status, got %+v", effects.Status)
	}
}

func TestExecutorCommitLogRecordsEveryWrite(t *testing.T) {
	sender := AddressFromBytes([]byte("alice"))
	recipient := AddressFromBytes([]byte("bob"))
	coinId := ObjectIdFromBytes([]byte("coin"))
	rs := newTestReplayStateWithCoin(sender, coinId, 100)
	rs.Transaction.Inputs = []Input{
		{Kind: InputOwnedObject, Id: coinId, Version: 1},
		{Kind: InputPure, Bytes: recipient[:]},
	}
	rs.Transaction.Commands = []Command{
		{Kind: CmdTransferObjects, Objects: []Argument{InputArg(0)}, Recipient: InputArg(1)},
	}

	cfg := config.Default()
	ex := NewPTBExecutor(rs, nil, nil, &cfg)
	if _, err := ex.Execute(nil); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(ex.CommitLog().Entries()) == 0 {
		t.Fatal("expected the commit log to record the transfer's write")
	}
}
