package chain

import "crypto/sha3"

// Hash256 is the node's single content-addressing hash function. Every
// ModifierId, ADDigest root, and merkle node derives from it.
func Hash256(b []byte) [32]byte {
	return sha3.Sum256(b)
}

// TaggedHash domain-separates a hash by prefixing a single tag byte, the
// same convention the authenticated dictionary and the merkle tree use to
// keep leaf and internal-node preimages from colliding.
func TaggedHash(tag byte, parts ...[]byte) [32]byte {
	n := 1
	for _, p := range parts {
		n += len(p)
	}
	buf := make([]byte, 0, n)
	buf = append(buf, tag)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return Hash256(buf)
}
