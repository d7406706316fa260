package core

import (
	"bytes"
	"sync"

	"github.com/sirupsen/logrus"
)

// objectKey is the composite map key for (ObjectId, Version) lookups.
type objectKey struct {
	id ObjectId
	v  Version
}

// VersionedObjectStore is the versioned, append-mostly base layer keyed by
// (ObjectId, Version), plus the side-channel ownership map used for
// sender/transfer checks (spec §4.1). Within a replay the base layer is
// immutable; mutation during execution happens only through an Overlay.
type VersionedObjectStore struct {
	mu        sync.RWMutex
	objects   map[objectKey]Object
	latest    map[ObjectId]Version
	ownership map[ObjectId]Owner
}

// NewVersionedObjectStore returns an empty store ready for hydration.
func NewVersionedObjectStore() *VersionedObjectStore {
	return &VersionedObjectStore{
		objects:   make(map[objectKey]Object),
		latest:    make(map[ObjectId]Version),
		ownership: make(map[ObjectId]Owner),
	}
}

// Get is an exact-version lookup; it never falls back to a nearby version
// (spec §4.1 contract).
func (s *VersionedObjectStore) Get(id ObjectId, v Version) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[objectKey{id, v}]
	return o, ok
}

// GetLatestKnown returns the highest version of id known to the store. Used
// only outside replay (e.g. harness bootstrap), per spec §4.1.
func (s *VersionedObjectStore) GetLatestKnown(id ObjectId) (Version, Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.latest[id]
	if !ok {
		return 0, Object{}, false
	}
	o := s.objects[objectKey{id, v}]
	return v, o, true
}

// OwnershipOf returns the owner recorded for id. Every object the store
// serves must have a consistent ownership entry (spec §4.1 invariant).
func (s *VersionedObjectStore) OwnershipOf(id ObjectId) (Owner, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.ownership[id]
	return o, ok
}

// Insert is idempotent on (id, version): re-inserting an identical payload
// is a no-op, but a differing payload at the same key is rejected as
// InconsistentState (spec §4.1 contract).
func (s *VersionedObjectStore) Insert(o Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := objectKey{o.Id, o.Version}
	if existing, ok := s.objects[key]; ok {
		if !bytes.Equal(existing.Bytes, o.Bytes) || existing.Digest != o.Digest {
			return &InconsistentStateError{Id: o.Id, Version: o.Version}
		}
		return nil
	}
	s.objects[key] = o
	if cur, ok := s.latest[o.Id]; !ok || o.Version > cur {
		s.latest[o.Id] = o.Version
	}
	s.ownership[o.Id] = o.Owner
	logrus.WithFields(logrus.Fields{
		"object_id": o.Id.Hex(),
		"version":   o.Version,
	}).Debug("object store: inserted object")
	return nil
}

// SetOwnership records or updates the owner of id independently of a full
// object insert; used when C6 rewrites ownership (TransferObjects) and the
// resulting state lives only in an Overlay, not the base store.
func (s *VersionedObjectStore) SetOwnership(id ObjectId, owner Owner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ownership[id] = owner
}

// Overlay is a transient, per-replay writable layer on top of the
// immutable base store (spec §3 "Overlay", §4.1 "overlay() -> OverlayHandle").
// Writes are visible through the overlay only. The overlay has no commit
// operation, so its writes never reach the base store; its contents feed
// the executor's Effects, which the comparator checks against recorded ones.
type Overlay struct {
	base    *VersionedObjectStore
	created map[ObjectId]Object
	written map[objectKey]Object
	deleted map[ObjectId]bool
	owners  map[ObjectId]Owner

	// *Order preserve first-encounter order for canonical effects assembly
	// (spec §4.6: "mutated in insertion order matching the command order",
	// "deleted in encounter order"). Go map iteration order is randomized,
	// so these are tracked explicitly alongside the maps above.
	createdOrder []ObjectId
	mutatedOrder []ObjectId
	deletedOrder []ObjectId

	// commit, if set, mirrors every Put/Delete into an RLP-serializable
	// audit log (spec §6 "on-disk replay cache entries"). Optional: nil
	// unless SetCommitLog is called (NewPTBExecutor always calls it).
	commit *CommitLog
}

// SetCommitLog attaches a CommitLog that subsequent Put/Delete calls mirror
// their writes into.
func (ov *Overlay) SetCommitLog(c *CommitLog) {
	ov.commit = c
}

// NewOverlay opens a transient mutable layer over the store.
func (s *VersionedObjectStore) NewOverlay() *Overlay {
	return &Overlay{
		base:    s,
		created: make(map[ObjectId]Object),
		written: make(map[objectKey]Object),
		deleted: make(map[ObjectId]bool),
		owners:  make(map[ObjectId]Owner),
	}
}

// Get resolves id/version through the overlay first, falling back to the
// immutable base layer.
func (ov *Overlay) Get(id ObjectId, v Version) (Object, bool) {
	if ov.deleted[id] {
		return Object{}, false
	}
	if o, ok := ov.written[objectKey{id, v}]; ok {
		return o, true
	}
	return ov.base.Get(id, v)
}

// Put records a create/mutate within the overlay without touching the base
// store.
func (ov *Overlay) Put(o Object) {
	ov.written[objectKey{o.Id, o.Version}] = o
	ov.owners[o.Id] = o.Owner
	if _, known := ov.base.latest[o.Id]; !known {
		if _, already := ov.created[o.Id]; !already {
			ov.created[o.Id] = o
			ov.createdOrder = append(ov.createdOrder, o.Id)
			if ov.commit != nil {
				ov.commit.RecordCreate(o)
			}
			return
		}
	}
	if !containsId(ov.mutatedOrder, o.Id) && !containsId(ov.createdOrder, o.Id) {
		ov.mutatedOrder = append(ov.mutatedOrder, o.Id)
	}
	if ov.commit != nil {
		ov.commit.RecordMutate(o)
	}
}

func containsId(ids []ObjectId, id ObjectId) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// Delete marks id as removed for the remainder of the replay.
func (ov *Overlay) Delete(id ObjectId) {
	if !ov.deleted[id] {
		ov.deletedOrder = append(ov.deletedOrder, id)
		if ov.commit != nil {
			ov.commit.RecordDelete(id)
		}
	}
	ov.deleted[id] = true
}

// OwnershipOf resolves ownership through the overlay first, then the base.
func (ov *Overlay) OwnershipOf(id ObjectId) (Owner, bool) {
	if ov.deleted[id] {
		return Owner{}, false
	}
	if o, ok := ov.owners[id]; ok {
		return o, true
	}
	return ov.base.OwnershipOf(id)
}

// Snapshot runs fn and, if it returns an error, rolls the overlay back to
// its pre-call contents. Mirrors the base ledger's snapshot-around-apply
// pattern: copy mutable maps up front, restore them wholesale on failure.
func (ov *Overlay) Snapshot(fn func() error) error {
	origCreated := cloneObjectMap(ov.created)
	origWritten := cloneKeyedMap(ov.written)
	origDeleted := cloneBoolMap(ov.deleted)
	origOwners := cloneOwnerMap(ov.owners)
	origCreatedOrder := append([]ObjectId(nil), ov.createdOrder...)
	origMutatedOrder := append([]ObjectId(nil), ov.mutatedOrder...)
	origDeletedOrder := append([]ObjectId(nil), ov.deletedOrder...)

	err := fn()
	if err != nil {
		ov.created = origCreated
		ov.written = origWritten
		ov.deleted = origDeleted
		ov.owners = origOwners
		ov.createdOrder = origCreatedOrder
		ov.mutatedOrder = origMutatedOrder
		ov.deletedOrder = origDeletedOrder
	}
	return err
}

func cloneObjectMap(m map[ObjectId]Object) map[ObjectId]Object {
	out := make(map[ObjectId]Object, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneKeyedMap(m map[objectKey]Object) map[objectKey]Object {
	out := make(map[objectKey]Object, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneBoolMap(m map[ObjectId]bool) map[ObjectId]bool {
	out := make(map[ObjectId]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneOwnerMap(m map[ObjectId]Owner) map[ObjectId]Owner {
	out := make(map[ObjectId]Owner, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CreatedObjects returns the objects newly created in this overlay, in
// first-encounter order (spec §4.6: created is later sorted by ObjectId at
// the comparator/effects-assembly boundary, but insertion order is kept
// here so callers needing raw encounter order also have it).
func (ov *Overlay) CreatedObjects() []Object {
	out := make([]Object, 0, len(ov.createdOrder))
	for _, id := range ov.createdOrder {
		out = append(out, ov.latestWrite(id))
	}
	return out
}

// MutatedObjects returns every overlay write whose id was already known to
// the base store, in insertion order matching command order (spec §4.6).
func (ov *Overlay) MutatedObjects() []Object {
	out := make([]Object, 0, len(ov.mutatedOrder))
	for _, id := range ov.mutatedOrder {
		out = append(out, ov.latestWrite(id))
	}
	return out
}

// latestWrite returns the most recently written version of id in the
// overlay (the highest-version entry recorded for id).
func (ov *Overlay) latestWrite(id ObjectId) Object {
	var best Object
	var found bool
	for k, o := range ov.written {
		if k.id != id {
			continue
		}
		if !found || o.Version > best.Version {
			best = o
			found = true
		}
	}
	return best
}

// DeletedIds returns the ids marked deleted in this overlay, in encounter
// order (spec §4.6: "deleted in encounter order").
func (ov *Overlay) DeletedIds() []ObjectId {
	out := make([]ObjectId, 0, len(ov.deletedOrder))
	for _, id := range ov.deletedOrder {
		if ov.deleted[id] {
			out = append(out, id)
		}
	}
	return out
}
