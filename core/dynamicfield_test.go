package core

import "testing"

func TestDeriveChildIdDeterministic(t *testing.T) {
	parent := ObjectIdFromBytes([]byte("parent"))
	keyType := TypeTag{Module: "dynamic_field", Name: "Name"}
	keyBytes := []byte("some-key")

	a, err := DeriveChildId(parent, keyType, keyBytes)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, err := DeriveChildId(parent, keyType, keyBytes)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if a != b {
		t.Fatalf("expected deterministic child id, got %s != %s", a.Hex(), b.Hex())
	}
}

func TestDeriveChildIdDiffersByKeyBytes(t *testing.T) {
	parent := ObjectIdFromBytes([]byte("parent"))
	keyType := TypeTag{Module: "dynamic_field", Name: "Name"}

	a, err := DeriveChildId(parent, keyType, []byte("key-a"))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, err := DeriveChildId(parent, keyType, []byte("key-b"))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if a == b {
		t.Fatal("expected different keys to derive different child ids")
	}
}

type mockStateProvider struct {
	fields map[ObjectId][]DynamicFieldEntry
	latest map[ObjectId]Object
}

func (m *mockStateProvider) FetchTransaction(digest Digest) (Transaction, Effects, *uint64, error) {
	return Transaction{}, Effects{}, nil, &MissingObjectError{}
}

func (m *mockStateProvider) FetchObjectAt(id ObjectId, version Version) (Object, error) {
	return Object{}, &MissingObjectError{Id: id, Version: &version}
}

func (m *mockStateProvider) FetchObjectLatest(id ObjectId) (Version, Object, error) {
	if o, ok := m.latest[id]; ok {
		return o.Version, o, nil
	}
	return 0, Object{}, &MissingObjectError{Id: id}
}

func (m *mockStateProvider) FetchPackage(storageId Address) (*Package, error) {
	return nil, &MissingPackageError{OriginalId: storageId}
}

func (m *mockStateProvider) ListDynamicFields(id ObjectId, max int) ([]DynamicFieldEntry, error) {
	return m.fields[id], nil
}

func (m *mockStateProvider) ListCheckpointTransactions(checkpointSeq uint64) ([]Digest, error) {
	return nil, nil
}

func TestDynamicFieldResolverFetchChildOnDemandFromStore(t *testing.T) {
	store := NewVersionedObjectStore()
	childId := ObjectIdFromBytes([]byte("child"))
	store.Insert(Object{Id: childId, Version: 1, Bytes: []byte("v")})

	resolver := NewDynamicFieldResolver(store, nil, 10, 0, 0)
	o, result, err := resolver.FetchChildOnDemand(ObjectIdFromBytes([]byte("parent")), childId)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if result != ChildFound {
		t.Fatalf("expected ChildFound, got %v", result)
	}
	if string(o.Bytes) != "v" {
		t.Fatalf("got %q", o.Bytes)
	}
}

func TestDynamicFieldResolverFetchChildNotFoundWithoutProvider(t *testing.T) {
	store := NewVersionedObjectStore()
	resolver := NewDynamicFieldResolver(store, nil, 10, 0, 0)
	_, result, err := resolver.FetchChildOnDemand(ObjectIdFromBytes([]byte("parent")), ObjectIdFromBytes([]byte("absent")))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if result != ChildNotFound {
		t.Fatalf("expected ChildNotFound, got %v", result)
	}
}

func TestDynamicFieldResolverStaleBeyondMaxLamport(t *testing.T) {
	store := NewVersionedObjectStore()
	childId := ObjectIdFromBytes([]byte("child"))
	provider := &mockStateProvider{
		latest: map[ObjectId]Object{childId: {Id: childId, Version: 99, Bytes: []byte("too-new")}},
	}
	resolver := NewDynamicFieldResolver(store, provider, 5, 0, 0)
	_, result, err := resolver.FetchChildOnDemand(ObjectIdFromBytes([]byte("parent")), childId)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if result != ChildStale {
		t.Fatalf("expected ChildStale, got %v", result)
	}
}

func TestDynamicFieldResolverPredictChildren(t *testing.T) {
	parent := ObjectIdFromBytes([]byte("parent"))
	child := ObjectIdFromBytes([]byte("child"))
	provider := &mockStateProvider{
		fields: map[ObjectId][]DynamicFieldEntry{
			parent: {{ChildId: child, ChildVersion: 1}},
		},
	}
	resolver := NewDynamicFieldResolver(NewVersionedObjectStore(), provider, 10, 10, 0)
	predicted, err := resolver.PredictChildren(parent, 1)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(predicted) != 1 || predicted[0].ChildId != child {
		t.Fatalf("expected predicted child, got %+v", predicted)
	}
}
