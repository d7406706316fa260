package core

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// This file holds the shared package cache and shared child-discovery cache
// described in spec §5 ("Shared resources") and §9 ("Global mutable
// state"). Other package-level mutable state lives elsewhere (gas.go's
// missing-cost log set, overlay_lifecycle.go's replay registry, metrics.go's
// counters). The caches' lifecycle is tied to the harness process, not to
// individual replays, and SetProtocolVersion clears both on a
// protocol-version change. Each cache is lazily initialized once via
// sync.Once; no other code in this module calls SharedPackageCache or
// SharedChildCache.

var (
	sharedPackageCacheOnce sync.Once
	sharedPackageCache     *lru.Cache[Address, *Package]

	sharedChildCacheOnce sync.Once
	sharedChildCache     *lru.Cache[sharedChildKey, Object]

	currentProtocolVersion uint64
	protocolVersionMu      sync.Mutex
)

type sharedChildKey struct {
	parent ObjectId
	child  ObjectId
}

// SharedPackageCache returns the process-wide package cache, lazily sized on
// first use. Many readers may consult it concurrently. The returned cache
// does not arbitrate between installers of the same storage_id: Add
// replaces any value already held for the key, while ContainsOrAdd keeps
// the first one.
func SharedPackageCache(capacity int) *lru.Cache[Address, *Package] {
	sharedPackageCacheOnce.Do(func() {
		if capacity <= 0 {
			capacity = 4096
		}
		sharedPackageCache, _ = lru.New[Address, *Package](capacity)
	})
	return sharedPackageCache
}

// SharedChildCache returns the process-wide dynamic-field child cache.
// Negative results are deliberately NOT stored here since staleness depends
// on a replay's own max_lamport_version (spec §5); only positive results
// that are safe across replays (the object bytes themselves never change
// for a fixed (id) at a fixed discovered version) are cached process-wide.
func SharedChildCache(capacity int) *lru.Cache[sharedChildKey, Object] {
	sharedChildCacheOnce.Do(func() {
		if capacity <= 0 {
			capacity = 16384
		}
		sharedChildCache, _ = lru.New[sharedChildKey, Object](capacity)
	})
	return sharedChildCache
}

// SetProtocolVersion records the protocol version currently in effect. If it
// differs from the previously recorded version, both shared caches are
// purged, per spec §9: "Clear caches on protocol-version change."
func SetProtocolVersion(v uint64) {
	protocolVersionMu.Lock()
	defer protocolVersionMu.Unlock()
	if v == currentProtocolVersion {
		return
	}
	currentProtocolVersion = v
	if sharedPackageCache != nil {
		sharedPackageCache.Purge()
	}
	if sharedChildCache != nil {
		sharedChildCache.Purge()
	}
}
