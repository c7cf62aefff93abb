package chain

import "github.com/Bromel777/EncryCore/crypto"

// PropositionType tags the wire encoding of a Proposition so a parser knows
// which concrete variant follows.
type PropositionType byte

const (
	PropPublicKey25519 PropositionType = 0x01
	PropAddress        PropositionType = 0x02
	PropHeightLock      PropositionType = 0x03
)

// UnlockContext carries the ambient facts a Proposition needs to judge a
// proof: the height the spending transaction is being validated at, the
// exact bytes that were signed, and a provider to check a signature
// against.
type UnlockContext struct {
	Height        Height
	SignedMessage []byte
	Verifier      crypto.Provider
}

// Proposition is a box's spending condition: given a proof (supplied by an
// Unlocker) and the context of the spending transaction, it reports
// whether the box may be consumed.
type Proposition interface {
	Type() PropositionType
	Encode() []byte
	Unlock(proof []byte, ctx UnlockContext) bool
}

// PublicKey25519 unlocks with a valid Ed25519 signature over the spending
// transaction's signed bytes.
type PublicKey25519 struct {
	PubKey [32]byte
}

func (p PublicKey25519) Type() PropositionType { return PropPublicKey25519 }

func (p PublicKey25519) Encode() []byte {
	out := make([]byte, 0, 33)
	out = append(out, byte(PropPublicKey25519))
	out = append(out, p.PubKey[:]...)
	return out
}

func (p PublicKey25519) Unlock(proof []byte, ctx UnlockContext) bool {
	if len(proof) != 64 || ctx.Verifier == nil {
		return false
	}
	var sig [64]byte
	copy(sig[:], proof)
	return ctx.Verifier.Verify(p.PubKey, ctx.SignedMessage, sig)
}

// AddressProposition unlocks with a proof that is itself an encoded
// PublicKey25519 whose hash matches Address, followed by a valid
// signature: it lets a box be addressed by a key's hash rather than the
// key itself.
type AddressProposition struct {
	Address [20]byte
}

func (p AddressProposition) Type() PropositionType { return PropAddress }

func (p AddressProposition) Encode() []byte {
	out := make([]byte, 0, 21)
	out = append(out, byte(PropAddress))
	out = append(out, p.Address[:]...)
	return out
}

// Unlock expects proof = pubkey(32) || signature(64).
func (p AddressProposition) Unlock(proof []byte, ctx UnlockContext) bool {
	if len(proof) != 32+64 || ctx.Verifier == nil {
		return false
	}
	var pubKey [32]byte
	copy(pubKey[:], proof[:32])
	addr := AddressFromPubKey(pubKey)
	if addr != p.Address {
		return false
	}
	var sig [64]byte
	copy(sig[:], proof[32:])
	return ctx.Verifier.Verify(pubKey, ctx.SignedMessage, sig)
}

// AddressFromPubKey derives the 20-byte address a PublicKey25519 resolves
// to under AddressProposition: the low 20 bytes of Hash256(pubkey).
func AddressFromPubKey(pubKey [32]byte) [20]byte {
	h := Hash256(pubKey[:])
	var addr [20]byte
	copy(addr[:], h[12:])
	return addr
}

// HeightProposition unlocks unconditionally once the chain has reached
// LockHeight; it carries no signature check and is used for coinbase
// maturity locks.
type HeightProposition struct {
	LockHeight Height
}

func (p HeightProposition) Type() PropositionType { return PropHeightLock }

func (p HeightProposition) Encode() []byte {
	out := make([]byte, 0, 9)
	out = append(out, byte(PropHeightLock))
	out = appendU64LE(out, uint64(p.LockHeight))
	return out
}

func (p HeightProposition) Unlock(_ []byte, ctx UnlockContext) bool {
	return ctx.Height >= p.LockHeight
}

// parseProposition reads one Proposition from the front of a cursor.
func parseProposition(c *cursor) (Proposition, error) {
	tag, err := c.readU8()
	if err != nil {
		return nil, err
	}
	switch PropositionType(tag) {
	case PropPublicKey25519:
		b, err := c.readExact(32)
		if err != nil {
			return nil, err
		}
		var pk [32]byte
		copy(pk[:], b)
		return PublicKey25519{PubKey: pk}, nil
	case PropAddress:
		b, err := c.readExact(20)
		if err != nil {
			return nil, err
		}
		var addr [20]byte
		copy(addr[:], b)
		return AddressProposition{Address: addr}, nil
	case PropHeightLock:
		h, err := c.readU64LE()
		if err != nil {
			return nil, err
		}
		return HeightProposition{LockHeight: Height(h)}, nil
	default:
		return nil, Newf(Malformed, "proposition: unknown type tag %d", tag)
	}
}
