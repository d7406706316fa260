package core

import (
	"bytes"
	"crypto/sha256"
	"errors"
)

// BuildCheckpointTree supports Hydrator.HydrateCheckpoint: given the digests
// of every transaction replayed in a checkpoint, compute a single root
// binding them together so a caller can cheaply verify a batch replay
// covered exactly the expected transaction set, and produce inclusion
// proofs for individual digests without re-walking the batch. Leaves are
// paired level-by-level with SHA-256, duplicating the last leaf of an odd
// level to keep every level even.
func BuildCheckpointTree(digests []Digest) ([][][32]byte, error) {
	if len(digests) == 0 {
		return nil, errors.New("checkpoint tree: no digests")
	}

	level := make([][32]byte, len(digests))
	for i, d := range digests {
		level[i] = sha256.Sum256(d[:])
	}

	tree := [][][32]byte{level}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
			tree[len(tree)-1] = level
		}
		next := make([][32]byte, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = sha256.Sum256(append(level[i][:], level[i+1][:]...))
		}
		tree = append(tree, next)
		level = next
	}
	return tree, nil
}

// CheckpointRoot returns only the root hash of the tree built from digests.
func CheckpointRoot(digests []Digest) ([32]byte, error) {
	tree, err := BuildCheckpointTree(digests)
	if err != nil {
		return [32]byte{}, err
	}
	return tree[len(tree)-1][0], nil
}

// CheckpointProof returns an inclusion proof for the digest at index, plus
// the tree's root, ordered leaf-to-root.
func CheckpointProof(digests []Digest, index uint32) ([][]byte, [32]byte, error) {
	if int(index) >= len(digests) {
		return nil, [32]byte{}, errors.New("checkpoint tree: index out of range")
	}
	tree, err := BuildCheckpointTree(digests)
	if err != nil {
		return nil, [32]byte{}, err
	}
	proof := make([][]byte, 0, len(tree)-1)
	idx := int(index)
	for i := 0; i < len(tree)-1; i++ {
		level := tree[i]
		if idx%2 == 0 {
			proof = append(proof, level[idx+1][:])
		} else {
			proof = append(proof, level[idx-1][:])
		}
		idx /= 2
	}
	return proof, tree[len(tree)-1][0], nil
}

// VerifyCheckpointPath checks whether proof reconstructs root for the given
// leaf digest and index.
func VerifyCheckpointPath(root [32]byte, leaf Digest, proof [][]byte, index uint32) bool {
	h := sha256.Sum256(leaf[:])
	hash := h[:]
	for _, p := range proof {
		if index%2 == 0 {
			hash = sha256Sum(append(hash, p...))
		} else {
			hash = sha256Sum(append(p, hash...))
		}
		index /= 2
	}
	return bytes.Equal(hash, root[:])
}

func sha256Sum(b []byte) []byte {
	s := sha256.Sum256(b)
	return s[:]
}
