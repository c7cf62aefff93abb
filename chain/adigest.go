package chain

// ADDigest is the authenticated-dictionary commitment a block header
// carries as its stateRoot: the root hash of the persistent AVL tree plus
// the tree's height, packed as a single trailing metadata byte rather than
// a second hash, since the height alone is enough for a verifier to bound
// proof length.
type ADDigest struct {
	RootHash   [32]byte
	TreeHeight byte
}

// Bytes returns the 33-byte wire encoding of the digest: rootHash || height.
func (d ADDigest) Bytes() []byte {
	out := make([]byte, 33)
	copy(out[:32], d.RootHash[:])
	out[32] = d.TreeHeight
	return out
}

// ParseADDigest reads a 33-byte authenticated-state digest.
func ParseADDigest(b []byte) (ADDigest, error) {
	var d ADDigest
	if len(b) != 33 {
		return d, Newf(Malformed, "ad digest: expected 33 bytes, got %d", len(b))
	}
	copy(d.RootHash[:], b[:32])
	d.TreeHeight = b[32]
	return d, nil
}

// ID hashes the digest's wire form, giving it a ModifierId like any other
// exchanged value.
func (d ADDigest) ID() ModifierId {
	return Hash256(d.Bytes())
}

// ADProof is the serialized sequence of AVL operation proofs a block
// carries to let a verifier recompute the post-state ADDigest from the
// pre-state ADDigest without holding the full state.
type ADProof []byte

// Root hashes the proof bytes, used for the header's adProofsRoot field.
func (p ADProof) Root() [32]byte {
	return Hash256(p)
}
