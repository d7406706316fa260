package core

import (
	"encoding/hex"
	"fmt"
)

// ObjectId, Address, Digest are all 32-byte identifiers. Addresses and
// packages share the same identifier space (spec §3): a package is simply
// an object whose content is bytecode rather than a typed value.
const IdentifierLength = 32

// ObjectId identifies a single object across its entire version history.
type ObjectId [IdentifierLength]byte

// Address identifies an account or a package. Accounts and packages share
// the address space.
type Address [IdentifierLength]byte

// Digest is the content hash of an object at a specific version.
type Digest [IdentifierLength]byte

// Version is a monotonically increasing per-object counter.
type Version uint64

// AddressZero is the sentinel zero-valued address used for synthesized
// system objects and as a not-present marker in diagnostics.
var AddressZero = Address{}

func (id ObjectId) Hex() string { return hex.EncodeToString(id[:]) }
func (a Address) Hex() string   { return hex.EncodeToString(a[:]) }
func (d Digest) Hex() string    { return hex.EncodeToString(d[:]) }

func (id ObjectId) String() string { return id.Hex() }
func (a Address) String() string   { return a.Hex() }
func (d Digest) String() string    { return d.Hex() }

func (id ObjectId) IsZero() bool { return id == ObjectId{} }
func (a Address) IsZero() bool   { return a == Address{} }

// AddressFromBytes widens an arbitrary byte slice into a 32-byte Address,
// left-padding with zeros or truncating the tail if oversized. This mirrors
// how Sui widens 20-byte EVM-style addresses when it must interoperate with
// narrower identifier spaces (e.g. fixture ids lifted from other chains).
func AddressFromBytes(b []byte) Address {
	var out Address
	if len(b) >= IdentifierLength {
		copy(out[:], b[len(b)-IdentifierLength:])
		return out
	}
	copy(out[IdentifierLength-len(b):], b)
	return out
}

// ObjectIdFromBytes is the ObjectId analogue of AddressFromBytes.
func ObjectIdFromBytes(b []byte) ObjectId {
	return ObjectId(AddressFromBytes(b))
}

// DigestFromBytes is the Digest analogue of AddressFromBytes.
func DigestFromBytes(b []byte) Digest {
	return Digest(AddressFromBytes(b))
}

// ObjectIdFromHex parses a hex string (with or without 0x prefix) into an
// ObjectId. Used by JSON import and CLI fixtures.
func ObjectIdFromHex(s string) (ObjectId, error) {
	b, err := decodeHexFlexible(s)
	if err != nil {
		return ObjectId{}, err
	}
	if len(b) != IdentifierLength {
		return ObjectId{}, fmt.Errorf("object id %q: want %d bytes, got %d", s, IdentifierLength, len(b))
	}
	var out ObjectId
	copy(out[:], b)
	return out, nil
}

// AddressFromHex is the Address analogue of ObjectIdFromHex.
func AddressFromHex(s string) (Address, error) {
	id, err := ObjectIdFromHex(s)
	return Address(id), err
}

// DigestFromHex is the Digest analogue of ObjectIdFromHex.
func DigestFromHex(s string) (Digest, error) {
	id, err := ObjectIdFromHex(s)
	return Digest(id), err
}

func decodeHexFlexible(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	return hex.DecodeString(s)
}

// OwnerKind enumerates the four mutually exclusive ownership forms an
// Object may carry (spec §3).
type OwnerKind int

const (
	OwnerAddress OwnerKind = iota
	OwnerObject
	OwnerShared
	OwnerImmutable
)

func (k OwnerKind) String() string {
	switch k {
	case OwnerAddress:
		return "AddressOwner"
	case OwnerObject:
		return "ObjectOwner"
	case OwnerShared:
		return "Shared"
	case OwnerImmutable:
		return "Immutable"
	default:
		return "UnknownOwner"
	}
}

// Owner is a closed sum type over the four ownership forms. Exactly one of
// the fields is meaningful, selected by Kind; a single struct is used
// rather than an interface per variant, since every variant here is a
// plain value with no distinct behavior attached.
type Owner struct {
	Kind                  OwnerKind
	Address               Address  // valid when Kind == OwnerAddress
	Parent                ObjectId // valid when Kind == OwnerObject (dynamic-field parent)
	InitialSharedVersion  Version  // valid when Kind == OwnerShared
}

func AddressOwner(a Address) Owner { return Owner{Kind: OwnerAddress, Address: a} }
func ObjectOwner(parent ObjectId) Owner {
	return Owner{Kind: OwnerObject, Parent: parent}
}
func SharedOwner(initial Version) Owner {
	return Owner{Kind: OwnerShared, InitialSharedVersion: initial}
}
func ImmutableOwner() Owner { return Owner{Kind: OwnerImmutable} }

// TypeTag names the Move-like type of an Object's content. Only the parts
// needed for dynamic-field hashing and native dispatch are modeled: the
// defining package's original_id, the module name, the type name, and any
// generic type parameters.
type TypeTag struct {
	Address    Address // original_id of the defining package
	Module     string
	Name       string
	TypeParams []TypeTag
}

func (t TypeTag) String() string {
	s := fmt.Sprintf("%s::%s::%s", t.Address.Hex(), t.Module, t.Name)
	if len(t.TypeParams) == 0 {
		return s
	}
	s += "<"
	for i, p := range t.TypeParams {
		if i > 0 {
			s += ", "
		}
		s += p.String()
	}
	return s + ">"
}

// Object is the fundamental state cell (spec §3).
type Object struct {
	Id      ObjectId
	Version Version
	Digest  Digest
	Owner   Owner

	// Type is nil for packages; set for typed values.
	Type *TypeTag

	// Bytes is the canonically-encoded payload (a typed value) or, for a
	// package object, empty — package content lives in the Package record
	// addressed by the same identifier space (see linkage.go).
	Bytes []byte

	// IsPackage distinguishes a package-identity object from a value
	// object sharing the same 32-byte address space.
	IsPackage bool
}

// Clone returns a deep copy safe to hand to an overlay without aliasing the
// receiver's backing array.
func (o Object) Clone() Object {
	out := o
	if o.Bytes != nil {
		out.Bytes = append([]byte(nil), o.Bytes...)
	}
	if o.Type != nil {
		tt := *o.Type
		out.Type = &tt
	}
	return out
}

// ObjectRef is the compact (id, version, digest) triple used throughout
// Effects to name an object without carrying its payload.
type ObjectRef struct {
	Id      ObjectId
	Version Version
	Digest  Digest
}

func (r ObjectRef) String() string {
	return fmt.Sprintf("%s@%d/%s", r.Id.Hex(), r.Version, r.Digest.Hex())
}
