package core

import "fmt"

// The typed error kinds of spec §7. Each is a distinct Go type so callers
// can discriminate with errors.As instead of matching on strings.

type MissingPackageError struct {
	OriginalId       Address
	SuggestedVersion *Version
}

func (e *MissingPackageError) Error() string {
	if e.SuggestedVersion != nil {
		return fmt.Sprintf("missing package %s (suggested version %d)", e.OriginalId.Hex(), *e.SuggestedVersion)
	}
	return fmt.Sprintf("missing package %s", e.OriginalId.Hex())
}

type MissingObjectError struct {
	Id      ObjectId
	Version *Version
}

func (e *MissingObjectError) Error() string {
	if e.Version != nil {
		return fmt.Sprintf("missing object %s@%d", e.Id.Hex(), *e.Version)
	}
	return fmt.Sprintf("missing object %s", e.Id.Hex())
}

type MissingOwnershipError struct {
	Id ObjectId
}

func (e *MissingOwnershipError) Error() string {
	return fmt.Sprintf("missing ownership entry for %s", e.Id.Hex())
}

type StaleDynamicFieldChildError struct {
	Id                ObjectId
	LatestVersion     Version
	MaxLamportVersion Version
}

func (e *StaleDynamicFieldChildError) Error() string {
	return fmt.Sprintf("stale dynamic-field child %s: latest=%d max_lamport=%d",
		e.Id.Hex(), e.LatestVersion, e.MaxLamportVersion)
}

type TypeMismatchError struct {
	Command       int
	ArgumentIndex int
	Expected      string
	Actual        string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch at command %d argument %d: expected %s, got %s",
		e.Command, e.ArgumentIndex, e.Expected, e.Actual)
}

type DeserializationFailedError struct {
	ArgumentIndex int
	Expected      string
}

func (e *DeserializationFailedError) Error() string {
	return fmt.Sprintf("deserialization failed at argument %d: expected %s", e.ArgumentIndex, e.Expected)
}

// ContractAbortError is recorded as the transaction's terminal status; it is
// not itself a replay failure and feeds the comparator (spec §7).
type ContractAbortError struct {
	Module    string
	Function  string
	Code      uint64
	SubStatus uint64
}

func (e *ContractAbortError) Error() string {
	return fmt.Sprintf("abort in %s::%s: code=%d sub_status=%d", e.Module, e.Function, e.Code, e.SubStatus)
}

type InconsistentStateError struct {
	Id      ObjectId
	Version Version
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("inconsistent state at %s@%d: data sources disagree", e.Id.Hex(), e.Version)
}

type UnsupportedNativeError struct {
	Name string
}

func (e *UnsupportedNativeError) Error() string {
	return fmt.Sprintf("unsupported native function %q in strict mode", e.Name)
}

type AbortedByCancellationError struct {
	FailedCommandIndex int
}

func (e *AbortedByCancellationError) Error() string {
	return fmt.Sprintf("replay cancelled at command %d", e.FailedCommandIndex)
}

// UnsupportedCryptoInReplayError is raised by C5's mock_cryptographic_primitives
// when strict=true and the VM requests a real cryptographic primitive that
// the harness refuses to fake (spec §4.5).
type UnsupportedCryptoInReplayError struct {
	Operation string
}

func (e *UnsupportedCryptoInReplayError) Error() string {
	return fmt.Sprintf("unsupported cryptographic primitive in strict replay: %s", e.Operation)
}

// CheckpointMismatchError is raised when a transaction returned for a
// checkpoint batch carries a checkpoint hint other than the one requested.
type CheckpointMismatchError struct {
	CheckpointSeq uint64
	Digest        Digest
	Hint          *uint64
}

func (e *CheckpointMismatchError) Error() string {
	if e.Hint == nil {
		return fmt.Sprintf("checkpoint %d: transaction %s carries no checkpoint hint", e.CheckpointSeq, e.Digest.Hex())
	}
	return fmt.Sprintf("checkpoint %d: transaction %s reports checkpoint hint %d", e.CheckpointSeq, e.Digest.Hex(), *e.Hint)
}
