package core

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/blake2b"
)

// dynamicFieldIdPrefix is the fixed domain-separation byte prepended to
// every dynamic-field child-id hash input (spec §4.4).
const dynamicFieldIdPrefix = 0xf0

// DeriveChildId computes a dynamic-field child-object id as the blake2b-256
// digest over the domain prefix, the parent id, a length-prefixed encoding
// of the key's type tag, and the key value's canonical serialization
// (spec §4.4, byte-exact). The type tag is encoded using the key type's
// defining package's original_id, per §4.4.
func DeriveChildId(parent ObjectId, keyType TypeTag, keyBytes []byte) (ObjectId, error) {
	tagBytes, err := EncodeTypeTag(keyType)
	if err != nil {
		return ObjectId{}, err
	}
	if len(tagBytes) > 0xff {
		return ObjectId{}, &DeserializationFailedError{Expected: "type tag <= 255 bytes"}
	}

	buf := make([]byte, 0, 1+IdentifierLength+1+len(tagBytes)+len(keyBytes))
	buf = append(buf, dynamicFieldIdPrefix)
	buf = append(buf, parent[:]...)
	buf = append(buf, byte(len(tagBytes)))
	buf = append(buf, tagBytes...)
	buf = append(buf, keyBytes...)

	digest := blake2b.Sum256(buf)
	return ObjectId(digest), nil
}

// PredictedChild is a (child_id, child_version) pair surfaced during
// hydration prefetch (spec §4.4 contract).
type PredictedChild struct {
	ChildId      ObjectId
	ChildVersion Version
}

// ChildLookupResult discriminates the three outcomes of an on-demand child
// fetch (spec §4.4: "Object | NotFound | Stale").
type ChildLookupResult int

const (
	ChildFound ChildLookupResult = iota
	ChildNotFound
	ChildStale
)

// DynamicFieldResolver computes deterministic child-object ids and serves
// them lazily with version validation against a replay's max_lamport_version
// safety bound (spec §4.4, C4).
type DynamicFieldResolver struct {
	store         *VersionedObjectStore
	maxLamport    Version
	provider      StateProvider
	maxPerParent  int

	// positive/negative caches are per-replay: negative results depend on
	// max_lamport_version, which is scoped to one replay (spec §5).
	positive *lru.Cache[dynFieldCacheKey, Object]
	negative *lru.Cache[dynFieldCacheKey, struct{}]
}

type dynFieldCacheKey struct {
	parent ObjectId
	child  ObjectId
}

// NewDynamicFieldResolver constructs a resolver bound to one replay's
// object store, provider, and max-lamport safety bound. cacheEntries sizes
// the positive/negative caches (pkg/config Cache.ChildEntries).
func NewDynamicFieldResolver(store *VersionedObjectStore, provider StateProvider, maxLamport Version, maxPerParent, cacheEntries int) *DynamicFieldResolver {
	if cacheEntries <= 0 {
		cacheEntries = 16384
	}
	pos, _ := lru.New[dynFieldCacheKey, Object](cacheEntries)
	neg, _ := lru.New[dynFieldCacheKey, struct{}](cacheEntries)
	return &DynamicFieldResolver{
		store:        store,
		maxLamport:   maxLamport,
		provider:     provider,
		maxPerParent: maxPerParent,
		positive:     pos,
		negative:     neg,
	}
}

// PredictChildren enumerates likely children of parent for prefetching
// during hydration, bounded by depth and maxPerParent (spec §4.4 contract).
// depth controls how many levels of nested dynamic-field parents (children
// that are themselves parents) are walked.
func (r *DynamicFieldResolver) PredictChildren(parent ObjectId, depth int) ([]PredictedChild, error) {
	if depth <= 0 || r.provider == nil {
		return nil, nil
	}
	var out []PredictedChild
	frontier := []ObjectId{parent}
	for level := 0; level < depth && len(frontier) > 0; level++ {
		var next []ObjectId
		for _, p := range frontier {
			fields, err := r.provider.ListDynamicFields(p, r.maxPerParent)
			if err != nil {
				return nil, err
			}
			for _, f := range fields {
				out = append(out, PredictedChild{ChildId: f.ChildId, ChildVersion: f.ChildVersion})
				next = append(next, f.ChildId)
				if len(out) >= r.maxPerParent*(level+1) {
					break
				}
			}
		}
		frontier = next
	}
	return out, nil
}

// FetchChildOnDemand is called by the executor/VM harness when bytecode
// requests a child object the store does not yet hold (spec §4.4 contract).
func (r *DynamicFieldResolver) FetchChildOnDemand(parent, child ObjectId) (Object, ChildLookupResult, error) {
	key := dynFieldCacheKey{parent: parent, child: child}
	if r.positive != nil {
		if o, ok := r.positive.Get(key); ok {
			return o, ChildFound, nil
		}
	}
	if r.negative != nil {
		if _, ok := r.negative.Get(key); ok {
			return Object{}, ChildStale, nil
		}
	}

	if v, o, ok := r.store.GetLatestKnown(child); ok {
		r.cachePositive(key, o)
		_ = v
		return o, ChildFound, nil
	}

	if r.provider == nil {
		r.cacheNegative(key)
		return Object{}, ChildNotFound, nil
	}

	version, o, err := r.provider.FetchObjectLatest(child)
	if err != nil {
		r.cacheNegative(key)
		return Object{}, ChildNotFound, nil
	}
	if version > r.maxLamport {
		r.cacheNegative(key)
		return Object{}, ChildStale, nil
	}
	r.cachePositive(key, o)
	return o, ChildFound, nil
}

func (r *DynamicFieldResolver) cachePositive(key dynFieldCacheKey, o Object) {
	if r.positive != nil {
		r.positive.Add(key, o)
	}
}

func (r *DynamicFieldResolver) cacheNegative(key dynFieldCacheKey) {
	if r.negative != nil {
		r.negative.Add(key, struct{}{})
	}
}
