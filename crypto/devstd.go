package crypto

import (
	"crypto/ed25519"

	"golang.org/x/crypto/sha3"
)

// StdProvider implements Provider with the standard library's Ed25519 and
// golang.org/x/crypto's SHA3-256, the same hash the teacher's devnet
// provider used before this repo generalized away from its post-quantum
// signature suite to a classical Ed25519 Proposition.
type StdProvider struct{}

func (StdProvider) Hash256(input []byte) [32]byte {
	h := sha3.New256()
	_, _ = h.Write(input)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (StdProvider) Sign(privateKeySeed [32]byte, msg []byte) ([64]byte, error) {
	var out [64]byte
	priv := ed25519.NewKeyFromSeed(privateKeySeed[:])
	sig := ed25519.Sign(priv, msg)
	copy(out[:], sig)
	return out, nil
}

func (StdProvider) Verify(pubKey [32]byte, msg []byte, sig [64]byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pubKey[:]), msg, sig[:])
}
