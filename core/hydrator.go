package core

import (
	"encoding/hex"
	"fmt"

	"github.com/sirupsen/logrus"

	"chainreplay/pkg/config"
)

// ReplayState is what the hydrator produces and the executor consumes
// (spec §3): the transaction, a (ObjectId,Version)->Object mapping covering
// all known inputs and read-only runtime objects, a package registry
// indexed both by storage_id and original_id, plus protocol metadata.
type ReplayState struct {
	Transaction Transaction

	Objects  *VersionedObjectStore
	Packages *PackageRegistry

	CheckpointHint    *uint64
	ProtocolVersion   uint64
	Epoch             uint64
	ReferenceGasPrice uint64

	// MaxLamportVersion is the safety bound computed in hydration step 6:
	// the maximum version across all objects named in the recorded effects.
	// On-demand children discovered later must not exceed it (spec §4.4).
	MaxLamportVersion Version

	ExecutionPath ExecutionPathMetadata
}

// Hydrator turns a digest (plus optional checkpoint) into a ReplayState by
// coordinating a StateProvider (spec §4.3, C3).
//
// It reconstructs state by deterministically replaying a sequence of
// recorded facts — the transaction's declared inputs and recorded
// effects — rather than trusting a snapshot.
type Hydrator struct {
	provider StateProvider
	cfg      *config.Config
}

// NewHydrator constructs a Hydrator bound to a StateProvider and config.
func NewHydrator(provider StateProvider, cfg *config.Config) *Hydrator {
	if cfg == nil {
		c := config.Default()
		cfg = &c
	}
	return &Hydrator{provider: provider, cfg: cfg}
}

// Hydrate executes the algorithm of spec §4.3: fetch the transaction and
// its recorded effects, fetch every declared input and prior-version
// read-only object, load the transitive package closure, compute the
// max-lamport safety bound, and synthesize absent system objects.
func (h *Hydrator) Hydrate(digest Digest) (*ReplayState, error) {
	tx, effects, checkpointHint, err := h.provider.FetchTransaction(digest)
	if err != nil {
		return nil, err
	}

	rs := &ReplayState{
		Transaction:    tx,
		Objects:        NewVersionedObjectStore(),
		Packages:       NewPackageRegistry(h.cfg.Cache.PackageEntries),
		CheckpointHint: checkpointHint,
	}

	// Step 2: fetch every declared input at its exact version.
	for _, in := range tx.Inputs {
		switch in.Kind {
		case InputOwnedObject, InputReceiving:
			if err := h.fetchAndInsert(rs, in.Id, in.Version); err != nil {
				return nil, err
			}
		case InputSharedObject:
			if err := h.fetchAndInsert(rs, in.Id, in.InitialSharedVersion); err != nil {
				return nil, err
			}
		}
	}

	// Step 3: from recorded effects, fetch every created/mutated/
	// unchanged-loaded-runtime object at its *input* version.
	for _, ref := range effects.Created {
		if err := h.fetchAndInsert(rs, ref.Id, ref.Version); err != nil {
			return nil, err
		}
	}
	for _, ref := range effects.Mutated {
		inputVersion := ref.Version
		if inputVersion > 0 {
			inputVersion--
		}
		if err := h.fetchAndInsert(rs, ref.Id, inputVersion); err != nil {
			return nil, err
		}
	}
	missingEffects := len(effects.UnchangedLoadedRuntimeObjects) == 0
	for _, ref := range effects.UnchangedLoadedRuntimeObjects {
		if err := h.fetchAndInsert(rs, ref.Id, ref.Version); err != nil {
			return nil, err
		}
	}
	if missingEffects {
		h.applyMissingEffectsPolicy(rs)
	}

	// Step 4: shared-object ownership is recorded as each input is
	// inserted via fetchAndInsert -> Insert, which seeds ownership from the
	// fetched Object. Nothing further to do here.

	// Step 5: resolve the transitive package closure for every MoveCall
	// command, installing original_id and storage_id indexes.
	for _, cmd := range tx.Commands {
		if cmd.Kind != CmdMoveCall {
			continue
		}
		if err := rs.Packages.LoadClosure(cmd.Package, h.fetchPackage); err != nil {
			return nil, err
		}
	}

	// Step 6: compute max lamport version across all objects named in
	// the recorded effects.
	rs.MaxLamportVersion = maxLamportOf(effects)

	// Step 7: synthesize absent system objects.
	synth := NewSystemObjectSynthesizer(h.cfg.Replay.StrictCrypto)
	if err := synth.InstallDefaults(rs, tx.TimestampMs); err != nil {
		return nil, err
	}

	rs.ProtocolVersion = 1
	logrus.WithField("digest", digest.Hex()).Debug("hydrator: replay state assembled")
	return rs, nil
}

// HydrateCheckpoint hydrates every transaction recorded in checkpointSeq, in
// the provider's order, and computes the Merkle root of their digests
// (core/merkle.go). The root is only written to the debug log; it is not
// returned, so callers that need it compute it with CheckpointRoot.
func (h *Hydrator) HydrateCheckpoint(checkpointSeq uint64) ([]ReplayState, error) {
	digests, err := h.provider.ListCheckpointTransactions(checkpointSeq)
	if err != nil {
		return nil, err
	}
	if len(digests) == 0 {
		return nil, fmt.Errorf("checkpoint %d: no transactions", checkpointSeq)
	}

	states := make([]ReplayState, 0, len(digests))
	for _, d := range digests {
		rs, err := h.Hydrate(d)
		if err != nil {
			return nil, err
		}
		if rs.CheckpointHint == nil || *rs.CheckpointHint != checkpointSeq {
			return nil, &CheckpointMismatchError{CheckpointSeq: checkpointSeq, Digest: d, Hint: rs.CheckpointHint}
		}
		states = append(states, *rs)
	}

	root, err := CheckpointRoot(digests)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"checkpoint": checkpointSeq,
		"root":       hex.EncodeToString(root[:]),
		"count":      len(states),
	}).Debug("hydrator: checkpoint batch hydrated")
	return states, nil
}

func (h *Hydrator) fetchAndInsert(rs *ReplayState, id ObjectId, version Version) error {
	if _, ok := rs.Objects.Get(id, version); ok {
		return nil
	}
	o, err := h.provider.FetchObjectAt(id, version)
	if err != nil {
		return &MissingObjectError{Id: id, Version: &version}
	}
	return rs.Objects.Insert(o)
}

func (h *Hydrator) fetchPackage(originalId, storageHint Address) (*Package, error) {
	p, err := h.provider.FetchPackage(storageHint)
	if err != nil {
		return nil, &MissingPackageError{OriginalId: originalId}
	}
	return p, nil
}

// applyMissingEffectsPolicy resolves spec §9's first open question: when
// unchanged_loaded_runtime_objects is absent from a data source, it records
// the condition in execution_path.fallbacks as "missing_effects_strict"
// (the default) or "missing_effects_best_effort", per the config flag.
// Recording is all either policy does: neither one raises
// StaleDynamicFieldChild or otherwise changes how later child lookups run.
func (h *Hydrator) applyMissingEffectsPolicy(rs *ReplayState) {
	if h.cfg.Replay.MissingEffectsPolicy == config.MissingEffectsBestEffort {
		rs.ExecutionPath.AddFallback("missing_effects_best_effort")
	} else {
		rs.ExecutionPath.AddFallback("missing_effects_strict")
	}
}

func maxLamportOf(effects Effects) Version {
	var max Version
	bump := func(refs []ObjectRef) {
		for _, r := range refs {
			if r.Version > max {
				max = r.Version
			}
		}
	}
	bump(effects.Created)
	bump(effects.Mutated)
	bump(effects.Deleted)
	bump(effects.Wrapped)
	bump(effects.Unwrapped)
	bump(effects.UnchangedLoadedRuntimeObjects)
	return max
}
