package core

import (
	"bytes"

	"github.com/ethereum/go-ethereum/rlp"
)

// CommitLogOp enumerates the three overlay write shapes an executor
// produces while driving one PTB (spec §4.6).
type CommitLogOp uint8

const (
	CommitLogCreate CommitLogOp = iota
	CommitLogMutate
	CommitLogDelete
)

// CommitLogEntry is one RLP-encodable record of an overlay write. It is an
// optional audit/debug artifact: the comparator and effects assembly never
// read it back, it exists purely so a caller can persist and later inspect
// or replay the exact sequence of overlay operations one execution
// produced (spec §6 "on-disk replay cache entries").
type CommitLogEntry struct {
	Op      uint8
	Id      [IdentifierLength]byte
	Version uint64
	Owner   [IdentifierLength]byte
	Bytes   []byte
}

// CommitLog accumulates entries for one replay and can (de)serialize them
// with RLP.
//
// An append-only log of RLP-encoded entries, one per overlay write
// (create/mutate/delete), that can be encoded and decoded for inspection.
// Nothing in this package applies a decoded log back to a store.
type CommitLog struct {
	entries []CommitLogEntry
}

// NewCommitLog returns an empty log for one replay.
func NewCommitLog() *CommitLog {
	return &CommitLog{}
}

// RecordCreate appends a creation entry for o.
func (c *CommitLog) RecordCreate(o Object) {
	c.entries = append(c.entries, entryFor(CommitLogCreate, o))
}

// RecordMutate appends a mutation entry for o.
func (c *CommitLog) RecordMutate(o Object) {
	c.entries = append(c.entries, entryFor(CommitLogMutate, o))
}

// RecordDelete appends a deletion entry for id.
func (c *CommitLog) RecordDelete(id ObjectId) {
	c.entries = append(c.entries, CommitLogEntry{Op: uint8(CommitLogDelete), Id: id})
}

// Entries returns the accumulated log in append order.
func (c *CommitLog) Entries() []CommitLogEntry {
	return c.entries
}

// EncodeRLP serializes the full log for on-disk replay caching.
func (c *CommitLog) EncodeRLP() ([]byte, error) {
	var buf bytes.Buffer
	if err := rlp.Encode(&buf, c.entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeCommitLogRLP is the inverse of EncodeRLP.
func DecodeCommitLogRLP(data []byte) (*CommitLog, error) {
	var entries []CommitLogEntry
	if err := rlp.DecodeBytes(data, &entries); err != nil {
		return nil, err
	}
	return &CommitLog{entries: entries}, nil
}

func entryFor(op CommitLogOp, o Object) CommitLogEntry {
	e := CommitLogEntry{Op: uint8(op), Id: o.Id, Version: uint64(o.Version), Bytes: o.Bytes}
	if o.Owner.Kind == OwnerAddress {
		e.Owner = o.Owner.Address
	}
	return e
}
