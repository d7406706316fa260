package core

import "testing"

func TestVersionedObjectStoreInsertAndGet(t *testing.T) {
	store := NewVersionedObjectStore()
	id := ObjectIdFromBytes([]byte("coin-1"))
	owner := AddressOwner(AddressFromBytes([]byte("alice")))
	obj := Object{Id: id, Version: 1, Owner: owner, Bytes: []byte("v1")}

	if err := store.Insert(obj); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, ok := store.Get(id, 1)
	if !ok {
		t.Fatal("expected object to be found at exact version")
	}
	if string(got.Bytes) != "v1" {
		t.Fatalf("got %q, want %q", got.Bytes, "v1")
	}

	if _, ok := store.Get(id, 2); ok {
		t.Fatal("expected no object at an unrecorded version")
	}
}

func TestVersionedObjectStoreInsertIdempotentOnIdenticalPayload(t *testing.T) {
	store := NewVersionedObjectStore()
	id := ObjectIdFromBytes([]byte("coin-2"))
	obj := Object{Id: id, Version: 1, Bytes: []byte("same"), Digest: ObjectDigest([]byte("same"))}

	if err := store.Insert(obj); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := store.Insert(obj); err != nil {
		t.Fatalf("re-insert of identical object should be a no-op, got: %v", err)
	}
}

func TestVersionedObjectStoreInsertRejectsConflictingPayload(t *testing.T) {
	store := NewVersionedObjectStore()
	id := ObjectIdFromBytes([]byte("coin-3"))
	first := Object{Id: id, Version: 1, Bytes: []byte("a"), Digest: ObjectDigest([]byte("a"))}
	second := Object{Id: id, Version: 1, Bytes: []byte("b"), Digest: ObjectDigest([]byte("b"))}

	if err := store.Insert(first); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := store.Insert(second)
	if err == nil {
		t.Fatal("expected InconsistentStateError for conflicting payload at the same (id, version)")
	}
	if _, ok := err.(*InconsistentStateError); !ok {
		t.Fatalf("expected *InconsistentStateError, got %T", err)
	}
}

func TestVersionedObjectStoreGetLatestKnown(t *testing.T) {
	store := NewVersionedObjectStore()
	id := ObjectIdFromBytes([]byte("coin-4"))
	store.Insert(Object{Id: id, Version: 1, Bytes: []byte("v1")})
	store.Insert(Object{Id: id, Version: 3, Bytes: []byte("v3")})
	store.Insert(Object{Id: id, Version: 2, Bytes: []byte("v2")})

	v, obj, ok := store.GetLatestKnown(id)
	if !ok {
		t.Fatal("expected a latest version")
	}
	if v != 3 || string(obj.Bytes) != "v3" {
		t.Fatalf("expected version 3 (v3), got version %d (%q)", v, obj.Bytes)
	}
}

func TestOverlayPutDistinguishesCreateFromMutate(t *testing.T) {
	store := NewVersionedObjectStore()
	existingId := ObjectIdFromBytes([]byte("existing"))
	store.Insert(Object{Id: existingId, Version: 1, Bytes: []byte("base")})

	overlay := store.NewOverlay()
	overlay.Put(Object{Id: existingId, Version: 2, Bytes: []byte("mutated")})

	newId := ObjectIdFromBytes([]byte("new"))
	overlay.Put(Object{Id: newId, Version: 1, Bytes: []byte("created")})

	created := overlay.CreatedObjects()
	mutated := overlay.MutatedObjects()
	if len(created) != 1 || created[0].Id != newId {
		t.Fatalf("expected exactly the new object in created, got %+v", created)
	}
	if len(mutated) != 1 || mutated[0].Id != existingId {
		t.Fatalf("expected exactly the base object in mutated, got %+v", mutated)
	}
}

func TestOverlayDeleteHidesObject(t *testing.T) {
	store := NewVersionedObjectStore()
	id := ObjectIdFromBytes([]byte("to-delete"))
	store.Insert(Object{Id: id, Version: 1, Bytes: []byte("x")})

	overlay := store.NewOverlay()
	if _, ok := overlay.Get(id, 1); !ok {
		t.Fatal("expected overlay to see the base object before deletion")
	}
	overlay.Delete(id)
	if _, ok := overlay.Get(id, 1); ok {
		t.Fatal("expected deleted object to be hidden from the overlay")
	}
	deleted := overlay.DeletedIds()
	if len(deleted) != 1 || deleted[0] != id {
		t.Fatalf("expected exactly one deleted id, got %+v", deleted)
	}
}

func TestOverlaySnapshotRollsBackOnError(t *testing.T) {
	store := NewVersionedObjectStore()
	overlay := store.NewOverlay()
	id := ObjectIdFromBytes([]byte("rollback"))

	wantErr := &MissingObjectError{Id: id}
	err := overlay.Snapshot(func() error {
		overlay.Put(Object{Id: id, Version: 1, Bytes: []byte("partial")})
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected snapshot to propagate the error, got %v", err)
	}
	if _, ok := overlay.Get(id, 1); ok {
		t.Fatal("expected overlay to roll back the write made inside the failed snapshot")
	}
}

func TestOverlayOwnershipFallsBackToBase(t *testing.T) {
	store := NewVersionedObjectStore()
	id := ObjectIdFromBytes([]byte("owned"))
	owner := AddressOwner(AddressFromBytes([]byte("bob")))
	store.Insert(Object{Id: id, Version: 1, Owner: owner})

	overlay := store.NewOverlay()
	got, ok := overlay.OwnershipOf(id)
	if !ok || got != owner {
		t.Fatalf("expected overlay to resolve ownership via base store, got %+v, %v", got, ok)
	}
}
