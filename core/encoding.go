package core

import (
	"encoding/binary"
	"fmt"
)

// Canonical serialization (spec §6, bit-exact): fixed-width little-endian
// integers; length-prefixed variable-width fields using a base-128 varint
// (7 bits per byte, high bit as continuation); struct fields serialized in
// declared order; vectors as length-prefix + elements; addresses and ids as
// fixed 32 bytes. The dynamic-field hash in §4.4 depends on this encoding.

// Encoder accumulates canonically-encoded bytes.
type Encoder struct {
	buf []byte
}

func NewEncoder() *Encoder { return &Encoder{} }

func (e *Encoder) Bytes() []byte { return e.buf }

// PutUvarint writes v as a base-128 varint, 7 bits per byte, high bit set
// on every byte but the last.
func (e *Encoder) PutUvarint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	e.buf = append(e.buf, tmp[:n]...)
}

// PutFixedU64 writes v as 8 fixed-width little-endian bytes.
func (e *Encoder) PutFixedU64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

// PutFixedU32 writes v as 4 fixed-width little-endian bytes.
func (e *Encoder) PutFixedU32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

// PutBytes writes a length-prefixed (varint) byte vector.
func (e *Encoder) PutBytes(b []byte) {
	e.PutUvarint(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

// PutFixed32 writes exactly 32 raw bytes with no length prefix, for
// addresses and object ids.
func (e *Encoder) PutFixed32(b [32]byte) {
	e.buf = append(e.buf, b[:]...)
}

// PutString writes a length-prefixed UTF-8 string.
func (e *Encoder) PutString(s string) {
	e.PutBytes([]byte(s))
}

// Decoder reads canonically-encoded bytes in sequence.
type Decoder struct {
	buf []byte
	pos int
}

func NewDecoder(b []byte) *Decoder { return &Decoder{buf: b} }

func (d *Decoder) Remaining() int { return len(d.buf) - d.pos }

func (d *Decoder) GetUvarint() (uint64, error) {
	v, n := binary.Uvarint(d.buf[d.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("canonical decode: invalid varint at offset %d", d.pos)
	}
	d.pos += n
	return v, nil
}

func (d *Decoder) GetFixedU64() (uint64, error) {
	if d.Remaining() < 8 {
		return 0, fmt.Errorf("canonical decode: need 8 bytes at offset %d, have %d", d.pos, d.Remaining())
	}
	v := binary.LittleEndian.Uint64(d.buf[d.pos : d.pos+8])
	d.pos += 8
	return v, nil
}

func (d *Decoder) GetFixedU32() (uint32, error) {
	if d.Remaining() < 4 {
		return 0, fmt.Errorf("canonical decode: need 4 bytes at offset %d, have %d", d.pos, d.Remaining())
	}
	v := binary.LittleEndian.Uint32(d.buf[d.pos : d.pos+4])
	d.pos += 4
	return v, nil
}

func (d *Decoder) GetBytes() ([]byte, error) {
	n, err := d.GetUvarint()
	if err != nil {
		return nil, err
	}
	if uint64(d.Remaining()) < n {
		return nil, fmt.Errorf("canonical decode: need %d bytes at offset %d, have %d", n, d.pos, d.Remaining())
	}
	out := append([]byte(nil), d.buf[d.pos:d.pos+int(n)]...)
	d.pos += int(n)
	return out, nil
}

func (d *Decoder) GetFixed32() ([32]byte, error) {
	var out [32]byte
	if d.Remaining() < 32 {
		return out, fmt.Errorf("canonical decode: need 32 bytes at offset %d, have %d", d.pos, d.Remaining())
	}
	copy(out[:], d.buf[d.pos:d.pos+32])
	d.pos += 32
	return out, nil
}

func (d *Decoder) GetString() (string, error) {
	b, err := d.GetBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EncodeTypeTag canonically serializes a TypeTag: the defining package's
// original_id (32 bytes), then length-prefixed module and name strings,
// then a length-prefixed vector of recursively-encoded type parameters
// (spec §6, consumed by the dynamic-field hash in §4.4).
func EncodeTypeTag(t TypeTag) ([]byte, error) {
	e := NewEncoder()
	e.PutFixed32(t.Address)
	e.PutString(t.Module)
	e.PutString(t.Name)
	e.PutUvarint(uint64(len(t.TypeParams)))
	for _, p := range t.TypeParams {
		sub, err := EncodeTypeTag(p)
		if err != nil {
			return nil, err
		}
		e.PutBytes(sub)
	}
	return e.Bytes(), nil
}

// DecodeTypeTag is the inverse of EncodeTypeTag.
func DecodeTypeTag(b []byte) (TypeTag, error) {
	d := NewDecoder(b)
	return decodeTypeTag(d)
}

func decodeTypeTag(d *Decoder) (TypeTag, error) {
	var t TypeTag
	addr, err := d.GetFixed32()
	if err != nil {
		return t, err
	}
	t.Address = Address(addr)
	if t.Module, err = d.GetString(); err != nil {
		return t, err
	}
	if t.Name, err = d.GetString(); err != nil {
		return t, err
	}
	n, err := d.GetUvarint()
	if err != nil {
		return t, err
	}
	t.TypeParams = make([]TypeTag, 0, n)
	for i := uint64(0); i < n; i++ {
		sub, err := d.GetBytes()
		if err != nil {
			return t, err
		}
		subTag, err := DecodeTypeTag(sub)
		if err != nil {
			return t, err
		}
		t.TypeParams = append(t.TypeParams, subTag)
	}
	return t, nil
}

// EncodeObjectRef canonically serializes an ObjectRef as id || version || digest.
func EncodeObjectRef(r ObjectRef) []byte {
	e := NewEncoder()
	e.PutFixed32(r.Id)
	e.PutFixedU64(uint64(r.Version))
	e.PutFixed32(r.Digest)
	return e.Bytes()
}

// DecodeObjectRef is the inverse of EncodeObjectRef.
func DecodeObjectRef(b []byte) (ObjectRef, error) {
	d := NewDecoder(b)
	var r ObjectRef
	id, err := d.GetFixed32()
	if err != nil {
		return r, err
	}
	r.Id = ObjectId(id)
	v, err := d.GetFixedU64()
	if err != nil {
		return r, err
	}
	r.Version = Version(v)
	dig, err := d.GetFixed32()
	if err != nil {
		return r, err
	}
	r.Digest = Digest(dig)
	return r, nil
}
