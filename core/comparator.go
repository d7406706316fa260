package core

import (
	"bytes"
	"fmt"
	"sort"

	"chainreplay/pkg/config"
)

// ObjectDiff reports the per-object discrepancies between a canonical and
// a locally-replayed object sharing one ObjectId (spec §4.8 normalization
// rules). Every bool field defaults false (no difference).
type ObjectDiff struct {
	Id             ObjectId
	OnlyCanonical  bool
	OnlyLocal      bool
	VersionDiffer  bool
	DigestDiffer   bool
	OwnerDiffer    bool
	PayloadDiffer  bool
}

func (d ObjectDiff) hasDifference() bool {
	return d.OnlyCanonical || d.OnlyLocal || d.VersionDiffer || d.DigestDiffer || d.OwnerDiffer || d.PayloadDiffer
}

// EventDiff reports a positional mismatch in the ordered event sequence
// (spec §4.8: "Events are compared as an ordered sequence; any structural
// difference in a payload field is reported by path").
type EventDiff struct {
	Index         int
	OnlyCanonical bool
	OnlyLocal     bool
	TypeDiffers   bool
	SenderDiffers bool
	PayloadPath   string
}

// StatusDiff reports a mismatch between canonical and local
// ExecutionStatus.
type StatusDiff struct {
	Canonical ExecutionStatus
	Local     ExecutionStatus
}

// GasDiff reports gas_used outside the configured tolerance.
type GasDiff struct {
	Canonical    uint64
	Local        uint64
	TolerancePct int
}

// ComparisonReport is the structured diff produced by C8 (spec §4.8
// "Report shape").
type ComparisonReport struct {
	StatusMatch bool

	CreatedDiffs []ObjectDiff
	MutatedDiffs []ObjectDiff
	DeletedDiffs []ObjectDiff
	EventDiffs   []EventDiff
	Status       *StatusDiff
	Gas          *GasDiff

	ExecutionPath ExecutionPathMetadata
}

// EffectsComparator normalizes canonical and locally-produced effects and
// diffs them (spec §4.8, C8).
//
// Produces a structured, field-level diff rather than a single pass/fail
// bit, since the spec requires naming exactly which sub-field disagreed.
type EffectsComparator struct {
	cfg *config.Config
}

// NewEffectsComparator constructs a comparator bound to the replay's
// tolerance configuration (gas/version tolerances, spec §4.8).
func NewEffectsComparator(cfg *config.Config) *EffectsComparator {
	if cfg == nil {
		c := config.Default()
		cfg = &c
	}
	return &EffectsComparator{cfg: cfg}
}

// Compare diffs canonical (the on-chain-recorded effects) against local
// (the effects produced by this replay) and returns the structured report.
func (c *EffectsComparator) Compare(canonical, local Effects, path ExecutionPathMetadata) ComparisonReport {
	report := ComparisonReport{
		ExecutionPath: path,
		CreatedDiffs:  c.diffObjectSets(canonical.Created, local.Created),
		MutatedDiffs:  c.diffObjectSets(canonical.Mutated, local.Mutated),
		DeletedDiffs:  c.diffObjectSets(canonical.Deleted, local.Deleted),
		EventDiffs:    c.diffEvents(canonical.Events, local.Events),
	}

	statusMatch := statusesEqual(canonical.Status, local.Status)
	if !statusMatch {
		report.Status = &StatusDiff{Canonical: canonical.Status, Local: local.Status}
	}

	gasOk := c.gasWithinTolerance(canonical.GasUsed, local.GasUsed)
	if !gasOk {
		report.Gas = &GasDiff{Canonical: canonical.GasUsed, Local: local.GasUsed, TolerancePct: c.cfg.Replay.GasTolerancePct}
	}

	report.StatusMatch = statusMatch &&
		len(report.CreatedDiffs) == 0 &&
		len(report.MutatedDiffs) == 0 &&
		len(report.DeletedDiffs) == 0 &&
		len(report.EventDiffs) == 0 &&
		gasOk

	if !report.StatusMatch {
		replayEffectsMismatchTotal.Inc()
	}

	return report
}

// diffObjectSets compares two ObjectRef multisets keyed by ObjectId (spec
// §4.8: "compared as multisets keyed by ObjectId"). canonical/local here
// only carry (id, version, digest), so this yields version/digest/presence
// diffs only; owner/payload diffing is done by CompareObjects for callers
// that hold the full Object values.
func (c *EffectsComparator) diffObjectSets(canonical, local []ObjectRef) []ObjectDiff {
	canonIdx := indexRefsById(canonical)
	localIdx := indexRefsById(local)

	ids := make(map[ObjectId]bool, len(canonIdx)+len(localIdx))
	for id := range canonIdx {
		ids[id] = true
	}
	for id := range localIdx {
		ids[id] = true
	}

	var diffs []ObjectDiff
	for id := range ids {
		cr, cok := canonIdx[id]
		lr, lok := localIdx[id]
		d := ObjectDiff{Id: id}
		switch {
		case cok && !lok:
			d.OnlyCanonical = true
		case !cok && lok:
			d.OnlyLocal = true
		default:
			if !c.versionsEqual(cr.Version, lr.Version) {
				d.VersionDiffer = true
			}
			if cr.Digest != lr.Digest {
				d.DigestDiffer = true
			}
		}
		if d.hasDifference() {
			diffs = append(diffs, d)
		}
	}
	sort.Slice(diffs, func(i, j int) bool { return lessObjectId(diffs[i].Id, diffs[j].Id) })
	return diffs
}

// CompareObjects performs the full owner/payload diff spec §4.8 describes
// for a single ObjectId known to both sides, given the actual Object values
// (e.g. fetched from the two stores backing canonical/local effects).
func (c *EffectsComparator) CompareObjects(canonical, local Object) ObjectDiff {
	d := ObjectDiff{Id: canonical.Id}
	if !c.versionsEqual(canonical.Version, local.Version) {
		d.VersionDiffer = true
	}
	if canonical.Digest != local.Digest {
		d.DigestDiffer = true
	}
	if canonical.Owner != local.Owner {
		d.OwnerDiffer = true
	}
	if !bytes.Equal(canonical.Bytes, local.Bytes) {
		d.PayloadDiffer = true
	}
	return d
}

func (c *EffectsComparator) versionsEqual(a, b Version) bool {
	if c.cfg.Replay.VersionTolerance == 0 {
		return a == b
	}
	diff := int64(a) - int64(b)
	if diff < 0 {
		diff = -diff
	}
	return uint64(diff) <= c.cfg.Replay.VersionTolerance
}

func (c *EffectsComparator) gasWithinTolerance(canonical, local uint64) bool {
	if c.cfg.Replay.GasTolerancePct <= 0 {
		return canonical == local
	}
	if canonical == 0 {
		return local == 0
	}
	var diff float64
	if canonical > local {
		diff = float64(canonical - local)
	} else {
		diff = float64(local - canonical)
	}
	return diff/float64(canonical)*100.0 <= float64(c.cfg.Replay.GasTolerancePct)
}

// diffEvents compares the ordered event sequences positionally (spec §4.8).
// A length mismatch reports the extra tail entries as present-on-one-side
// only; a shared position with a type/sender/payload mismatch reports the
// first point of disagreement.
func (c *EffectsComparator) diffEvents(canonical, local []Event) []EventDiff {
	var diffs []EventDiff
	n := canonical
	m := local
	max := len(n)
	if len(m) > max {
		max = len(m)
	}
	for i := 0; i < max; i++ {
		switch {
		case i >= len(n):
			diffs = append(diffs, EventDiff{Index: i, OnlyLocal: true})
		case i >= len(m):
			diffs = append(diffs, EventDiff{Index: i, OnlyCanonical: true})
		default:
			ce, le := n[i], m[i]
			d := EventDiff{Index: i}
			changed := false
			if ce.Type.String() != le.Type.String() {
				d.TypeDiffers = true
				changed = true
			}
			if ce.Sender != le.Sender {
				d.SenderDiffers = true
				changed = true
			}
			if !bytes.Equal(ce.Payload, le.Payload) {
				d.PayloadPath = fmt.Sprintf("events[%d].payload", i)
				changed = true
			}
			if changed {
				diffs = append(diffs, d)
			}
		}
	}
	return diffs
}

func statusesEqual(a, b ExecutionStatus) bool {
	return a.Kind == b.Kind && a.ErrorKind == b.ErrorKind && a.Location == b.Location && a.Code == b.Code
}

func indexRefsById(refs []ObjectRef) map[ObjectId]ObjectRef {
	out := make(map[ObjectId]ObjectRef, len(refs))
	for _, r := range refs {
		out[r.Id] = r
	}
	return out
}
