package core

import (
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

// LinkageEntry records the exact dependency version used at publication:
// original_id -> storage_id@version (spec §3 "linkage_table").
type LinkageEntry struct {
	DepOriginalId Address
	StorageId     Address
	Version       uint64
}

// Package is the immutable bytecode bundle deployed at an address. It
// carries two distinct identities (spec §3, §9 "Package dual identity"):
// OriginalId is the stable address embedded in the package's own modules,
// StorageId is the address at which the current bytecode is stored and
// changes on every upgrade.
type Package struct {
	OriginalId Address
	StorageId  Address
	Version    uint64 // this package's own upgrade version, starting at 1
	Modules    map[string][]byte // module name -> bytecode
	Linkage    []LinkageEntry
}

// PackageRegistry resolves module references across package upgrades and
// holds bytecode plus original<->storage aliasing (spec §4.2, C2).
//
// A byStorage map guarded by a mutex backs Install/LoadModule/Resolve to
// match the dual-identity (original_id / storage_id) contract packages
// require across upgrades.
type PackageRegistry struct {
	mu sync.RWMutex

	// byStorage indexes every known package by its storage_id.
	byStorage map[Address]*Package

	// byOriginal indexes every storage_id known for a given original_id,
	// sorted ascending by recorded linkage version, to support resolve().
	byOriginal map[Address][]*Package

	// resolveCache memoizes (original_id, version_hint) -> storage_id
	// lookups across a replay; shared caches are read-mostly after
	// installation (spec §5 "Shared resources").
	resolveCache *lru.Cache[resolveCacheKey, Address]
}

type resolveCacheKey struct {
	original Address
	hint     uint64
	hasHint  bool
}

// NewPackageRegistry returns an empty registry with an LRU resolve cache of
// the given capacity (spec §5: package cache is a process-wide shared
// resource; capacity is supplied by pkg/config's Cache.PackageEntries).
func NewPackageRegistry(cacheEntries int) *PackageRegistry {
	if cacheEntries <= 0 {
		cacheEntries = 4096
	}
	cache, _ := lru.New[resolveCacheKey, Address](cacheEntries)
	return &PackageRegistry{
		byStorage:    make(map[Address]*Package),
		byOriginal:   make(map[Address][]*Package),
		resolveCache: cache,
	}
}

// Install registers a package under both identity spaces. Idempotent on
// storage_id.
func (r *PackageRegistry) Install(p *Package) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byStorage[p.StorageId]; exists {
		return
	}
	r.byStorage[p.StorageId] = p
	list := r.byOriginal[p.OriginalId]
	list = append(list, p)
	sort.Slice(list, func(i, j int) bool {
		return list[i].Version < list[j].Version
	})
	r.byOriginal[p.OriginalId] = list
	if r.resolveCache != nil {
		r.resolveCache.Purge() // a new version can change any cached resolution
	}
	logrus.WithFields(logrus.Fields{
		"original_id": p.OriginalId.Hex(),
		"storage_id":  p.StorageId.Hex(),
		"version":     p.Version,
	}).Debug("linkage registry: installed package")
}

// LoadModule returns the bytecode of module_name inside the package stored
// at storage_id (spec §4.2 contract).
func (r *PackageRegistry) LoadModule(storageId Address, moduleName string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byStorage[storageId]
	if !ok {
		return nil, &MissingPackageError{OriginalId: storageId}
	}
	b, ok := p.Modules[moduleName]
	if !ok {
		return nil, &MissingPackageError{OriginalId: p.OriginalId}
	}
	return b, nil
}

// Resolve picks the storage_id for an original_id reference, given an
// optional version hint carried by the calling context (spec §4.2):
// choose the highest recorded linkage version <= hint; with no hint, the
// caller is expected to have already consulted its own linkage table
// (callingLinkage); if still ambiguous, pick the highest known.
func (r *PackageRegistry) Resolve(originalId Address, versionHint *uint64, callingLinkage []LinkageEntry) (Address, error) {
	key := resolveCacheKey{original: originalId}
	if versionHint != nil {
		key.hint = *versionHint
		key.hasHint = true
	}
	if r.resolveCache != nil {
		if v, ok := r.resolveCache.Get(key); ok {
			return v, nil
		}
	}

	r.mu.RLock()
	candidates := r.byOriginal[originalId]
	r.mu.RUnlock()
	if len(candidates) == 0 {
		return Address{}, &MissingPackageError{OriginalId: originalId}
	}

	var chosen *Package
	if versionHint != nil {
		// candidates is sorted ascending by Version; pick the highest one
		// not exceeding the hint.
		for i := len(candidates) - 1; i >= 0; i-- {
			if candidates[i].Version <= *versionHint {
				chosen = candidates[i]
				break
			}
		}
		if chosen == nil {
			v := *versionHint
			return Address{}, &MissingPackageError{OriginalId: originalId, SuggestedVersion: versionPtr(Version(v))}
		}
	} else if len(callingLinkage) > 0 {
		for _, l := range callingLinkage {
			if l.DepOriginalId == originalId {
				chosen = findByStorageAndOriginal(candidates, l.StorageId)
				break
			}
		}
		if chosen == nil {
			chosen = candidates[len(candidates)-1]
		}
	} else {
		chosen = candidates[len(candidates)-1]
	}

	if r.resolveCache != nil {
		r.resolveCache.Add(key, chosen.StorageId)
	}
	return chosen.StorageId, nil
}

func versionPtr(v Version) *Version { return &v }

func findByStorageAndOriginal(candidates []*Package, storageId Address) *Package {
	for _, p := range candidates {
		if p.StorageId == storageId {
			return p
		}
	}
	return nil
}

// VersionOf returns the upgrade version recorded for the package stored at
// storageId.
func (r *PackageRegistry) VersionOf(storageId Address) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byStorage[storageId]
	if !ok {
		return 0, &MissingPackageError{OriginalId: storageId}
	}
	return p.Version, nil
}

// ReverseLookup returns the original_id of the package stored at storageId.
func (r *PackageRegistry) ReverseLookup(storageId Address) (Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byStorage[storageId]
	if !ok {
		return Address{}, &MissingPackageError{OriginalId: storageId}
	}
	return p.OriginalId, nil
}

// LoadClosure ensures every package transitively referenced from root,
// following each package's linkage_table, is present in the registry. It
// fails MissingPackage{original_id, suggested_version} naming the first gap
// found (spec §4.2 contract). fetch is invoked for any original_id the
// registry cannot resolve locally; it is expected to come from an external
// StateProvider-backed fetch path (C3 drives this during hydration).
func (r *PackageRegistry) LoadClosure(rootStorageId Address, fetch func(originalId Address, storageHint Address) (*Package, error)) error {
	visited := make(map[Address]bool)
	var visit func(storageId Address) error
	visit = func(storageId Address) error {
		if visited[storageId] {
			return nil
		}
		visited[storageId] = true

		r.mu.RLock()
		p, ok := r.byStorage[storageId]
		r.mu.RUnlock()
		if !ok {
			if fetch == nil {
				return &MissingPackageError{OriginalId: storageId}
			}
			fetched, err := fetch(storageId, storageId)
			if err != nil {
				return err
			}
			r.Install(fetched)
			p = fetched
		}
		for _, dep := range p.Linkage {
			r.mu.RLock()
			_, depKnown := r.byStorage[dep.StorageId]
			r.mu.RUnlock()
			if depKnown {
				if err := visit(dep.StorageId); err != nil {
					return err
				}
				continue
			}
			if fetch == nil {
				v := Version(dep.Version)
				return &MissingPackageError{OriginalId: dep.DepOriginalId, SuggestedVersion: &v}
			}
			fetched, err := fetch(dep.DepOriginalId, dep.StorageId)
			if err != nil {
				return err
			}
			r.Install(fetched)
			if err := visit(dep.StorageId); err != nil {
				return err
			}
		}
		return nil
	}
	return visit(rootStorageId)
}
