package core

// DynamicFieldEntry is one entry returned by StateProvider.ListDynamicFields:
// (key_type, key_bytes, child_id, child_version) (spec §4.3 step 5, §6).
type DynamicFieldEntry struct {
	KeyType      TypeTag
	KeyBytes     []byte
	ChildId      ObjectId
	ChildVersion Version
}

// StateProvider is the external, inbound interface the core requires an
// adapter to implement (spec §6). Timeouts and retries are the provider's
// concern; the core treats any returned error as terminal for the request.
// Deliberately out of scope for this module (spec §1): concrete
// implementations backed by a blob store, RPC, or local JSON snapshots.
type StateProvider interface {
	// FetchTransaction returns the transaction, its recorded on-chain
	// effects, and an optional checkpoint hint for the given digest.
	FetchTransaction(digest Digest) (Transaction, Effects, *uint64, error)

	// FetchObjectAt returns the object exactly at (id, version).
	FetchObjectAt(id ObjectId, version Version) (Object, error)

	// FetchObjectLatest returns the highest known version of id.
	FetchObjectLatest(id ObjectId) (Version, Object, error)

	// FetchPackage returns the package stored at storageId.
	FetchPackage(storageId Address) (*Package, error)

	// ListDynamicFields returns up to max entries describing id's dynamic
	// fields; the result may be approximate (spec §4.3 step 5, §4.4).
	ListDynamicFields(id ObjectId, max int) ([]DynamicFieldEntry, error)

	// ListCheckpointTransactions returns the digests of every transaction
	// recorded in the given checkpoint sequence number, in execution order.
	ListCheckpointTransactions(checkpointSeq uint64) ([]Digest, error)
}
