package core

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeTypeTagRoundTrip(t *testing.T) {
	tag := TypeTag{
		Address: AddressFromBytes([]byte("pkg")),
		Module:  "coin",
		Name:    "Coin",
		TypeParams: []TypeTag{
			{Address: AddressFromBytes([]byte("sui")), Module: "sui", Name: "SUI"},
		},
	}

	encoded, err := EncodeTypeTag(tag)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeTypeTag(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.String() != tag.String() {
		t.Fatalf("round trip mismatch: got %s, want %s", decoded.String(), tag.String())
	}
}

func TestEncodeDecodeTypeTagEmptyParams(t *testing.T) {
	tag := TypeTag{Address: AddressZero, Module: "m", Name: "N"}
	encoded, err := EncodeTypeTag(tag)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeTypeTag(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.TypeParams) != 0 {
		t.Fatalf("expected no type params, got %d", len(decoded.TypeParams))
	}
}

func TestEncodeDecodeObjectRefRoundTrip(t *testing.T) {
	ref := ObjectRef{
		Id:      ObjectIdFromBytes([]byte("obj-1")),
		Version: 7,
		Digest:  DigestFromBytes([]byte("digest-1")),
	}
	encoded := EncodeObjectRef(ref)
	decoded, err := DecodeObjectRef(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != ref {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, ref)
	}
}

func TestEncoderPutBytesLengthPrefixed(t *testing.T) {
	e := NewEncoder()
	e.PutBytes([]byte("hello"))
	e.PutBytes([]byte("world"))

	d := NewDecoder(e.Bytes())
	first, err := d.GetBytes()
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := d.GetBytes()
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !bytes.Equal(first, []byte("hello")) || !bytes.Equal(second, []byte("world")) {
		t.Fatalf("got %q, %q", first, second)
	}
	if d.Remaining() != 0 {
		t.Fatalf("expected no remaining bytes, got %d", d.Remaining())
	}
}

func TestDecoderErrorsOnTruncatedInput(t *testing.T) {
	d := NewDecoder([]byte{0x01})
	if _, err := d.GetFixedU64(); err == nil {
		t.Fatal("expected error decoding fixed u64 from 1 byte")
	}
}
