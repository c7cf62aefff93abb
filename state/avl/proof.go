package avl

import "github.com/Bromel777/EncryCore/chain"

// ProofStep authenticates one node visited on the path from the root to a
// key: its own key and value hash, plus both child hashes (one of which
// the verifier rederives from the next step down, the other it must trust
// directly since the search never descended into it).
type ProofStep struct {
	Key       [32]byte
	ValueHash [32]byte
	LeftHash  [32]byte
	RightHash [32]byte
}

// Proof authenticates either the presence of Key with Value, or its
// absence, against a tree's RootHash.
type Proof struct {
	Key   [32]byte
	Steps []ProofStep
	Found bool
	Value []byte
}

func toSteps(path []pathEntry) []ProofStep {
	steps := make([]ProofStep, 0, len(path))
	for _, e := range path {
		if e.node == nil {
			continue
		}
		steps = append(steps, ProofStep{
			Key:       e.node.key,
			ValueHash: e.node.valueHash,
			LeftHash:  hashOf(e.node.left),
			RightHash: hashOf(e.node.right),
		})
	}
	return steps
}

func stepHash(s ProofStep) [32]byte {
	return chain.TaggedHash(nodeTag, s.Key[:], s.ValueHash[:], s.LeftHash[:], s.RightHash[:])
}

// Verify checks that p authenticates its claimed Found/Value result
// against root.
func (p Proof) Verify(root [32]byte) bool {
	if len(p.Steps) == 0 {
		return root == zeroHash && !p.Found
	}
	for i := len(p.Steps) - 1; i >= 1; i-- {
		h := stepHash(p.Steps[i])
		parent := p.Steps[i-1]
		if lessKey(p.Key, parent.Key) {
			if parent.LeftHash != h {
				return false
			}
		} else if parent.RightHash != h {
			return false
		}
	}
	if stepHash(p.Steps[0]) != root {
		return false
	}

	last := p.Steps[len(p.Steps)-1]
	if p.Found {
		return last.Key == p.Key && chain.Hash256(p.Value) == last.ValueHash
	}
	if last.Key == p.Key {
		return false
	}
	if lessKey(p.Key, last.Key) {
		return last.LeftHash == zeroHash
	}
	return last.RightHash == zeroHash
}

// Encode serializes the proof for inclusion in a block's AD proof blob.
func (p Proof) Encode() []byte {
	out := chain.AppendCompactSize(nil, uint64(len(p.Steps)))
	for _, s := range p.Steps {
		out = append(out, s.Key[:]...)
		out = append(out, s.ValueHash[:]...)
		out = append(out, s.LeftHash[:]...)
		out = append(out, s.RightHash[:]...)
	}
	if p.Found {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	out = chain.AppendCompactSize(out, uint64(len(p.Value)))
	out = append(out, p.Value...)
	return out
}

// DecodeProof reads one encoded Proof from the front of buf (the key is
// not carried on the wire; the caller supplies it from context) and
// reports how many bytes were consumed.
func DecodeProof(buf []byte, key [32]byte) (Proof, int, error) {
	pos := 0
	n, used, err := chain.DecodeCompactSize(buf[pos:])
	if err != nil {
		return Proof{}, 0, err
	}
	pos += used
	steps := make([]ProofStep, 0, n)
	for i := uint64(0); i < n; i++ {
		if len(buf) < pos+128 {
			return Proof{}, 0, chain.Newf(chain.Malformed, "avl proof: truncated step")
		}
		var s ProofStep
		copy(s.Key[:], buf[pos:pos+32])
		copy(s.ValueHash[:], buf[pos+32:pos+64])
		copy(s.LeftHash[:], buf[pos+64:pos+96])
		copy(s.RightHash[:], buf[pos+96:pos+128])
		pos += 128
		steps = append(steps, s)
	}
	if len(buf) < pos+1 {
		return Proof{}, 0, chain.Newf(chain.Malformed, "avl proof: truncated found flag")
	}
	found := buf[pos] == 1
	pos++
	valLen, used, err := chain.DecodeCompactSize(buf[pos:])
	if err != nil {
		return Proof{}, 0, err
	}
	pos += used
	if len(buf) < pos+int(valLen) {
		return Proof{}, 0, chain.Newf(chain.Malformed, "avl proof: truncated value")
	}
	value := append([]byte(nil), buf[pos:pos+int(valLen)]...)
	pos += int(valLen)
	return Proof{Key: key, Steps: steps, Found: found, Value: value}, pos, nil
}
