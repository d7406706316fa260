package core

import "github.com/ethereum/go-ethereum/crypto"

// ObjectDigest computes the content digest of an object's canonical payload
// (spec §3: "Digest is the content hash of an object at a specific
// version"). Every object the executor creates or mutates during replay is
// redigested this way before being written into the overlay, so the local
// digest is comparable against a canonical digest recorded on chain.
//
// Uses go-ethereum's Keccak-256 as a general-purpose "hash this payload"
// primitive.
func ObjectDigest(bytes []byte) Digest {
	return DigestFromBytes(crypto.Keccak256(bytes))
}
