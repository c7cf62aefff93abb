// Package crypto provides the narrow signing/verification surface the rest
// of the node depends on through an interface rather than a concrete
// algorithm, so a production deployment can swap in an HSM-backed signer
// without touching chain, state, or mining code.
package crypto

// Provider is the crypto interface every signature-checking or
// block-signing component depends on. PublicKey25519 is the only
// signature scheme the node currently recognizes; the interface is kept
// narrow on purpose so a future scheme can be added without widening every
// caller's contract.
type Provider interface {
	// Hash256 is the node's content-addressing hash function.
	Hash256(input []byte) [32]byte
	// Sign produces an Ed25519 signature over msg using the 32-byte seed
	// form of the private key.
	Sign(privateKeySeed [32]byte, msg []byte) ([64]byte, error)
	// Verify checks an Ed25519 signature against a 32-byte public key.
	Verify(pubKey [32]byte, msg []byte, sig [64]byte) bool
}
