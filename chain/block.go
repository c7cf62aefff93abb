package chain

// BlockHeader is the committed, signed, proof-of-work-anchored summary of
// a block: everything needed to verify linkage, state transition, and
// authorship without holding the block's transactions.
type BlockHeader struct {
	ParentId         ModifierId
	StateRoot        ADDigest
	ADProofsRoot     [32]byte
	TransactionsRoot [32]byte
	Timestamp        uint64
	Height           Height
	Target           [32]byte
	Nonce            uint64
	MinerPubKey      [32]byte
	Signature        []byte
}

// PowMessage is the byte string the proof-of-work nonce search and the
// miner's signature both range over; it excludes the signature itself so
// that signing a header never invalidates the nonce that was already
// found for it.
func (h *BlockHeader) PowMessage() []byte {
	out := make([]byte, 0, 32+33+32+32+8+8+32+8+32)
	out = append(out, h.ParentId[:]...)
	out = append(out, h.StateRoot.Bytes()...)
	out = append(out, h.ADProofsRoot[:]...)
	out = append(out, h.TransactionsRoot[:]...)
	out = appendU64LE(out, h.Timestamp)
	out = appendU64LE(out, uint64(h.Height))
	out = append(out, h.Target[:]...)
	out = appendU64LE(out, h.Nonce)
	out = append(out, h.MinerPubKey[:]...)
	return out
}

// PowHash is the value the target is checked against.
func (h *BlockHeader) PowHash() [32]byte {
	return Hash256(h.PowMessage())
}

// Bytes is the header's full wire encoding, including the miner's
// signature over PowMessage.
func (h *BlockHeader) Bytes() []byte {
	out := h.PowMessage()
	out = AppendCompactSize(out, uint64(len(h.Signature)))
	out = append(out, h.Signature...)
	return out
}

// ID is the header's ModifierId, the value other headers reference as
// their ParentId.
func (h *BlockHeader) ID() ModifierId {
	return Hash256(h.Bytes())
}

// ParseBlockHeader decodes a header from the front of buf and reports the
// number of bytes consumed.
func ParseBlockHeader(buf []byte) (*BlockHeader, int, error) {
	c := newCursor(buf)
	h, err := parseBlockHeader(c)
	if err != nil {
		return nil, 0, err
	}
	return h, c.pos, nil
}

func parseBlockHeader(c *cursor) (*BlockHeader, error) {
	h := &BlockHeader{}
	var err error
	if h.ParentId, err = c.readHash32(); err != nil {
		return nil, err
	}
	digestBytes, err := c.readExact(33)
	if err != nil {
		return nil, err
	}
	if h.StateRoot, err = ParseADDigest(digestBytes); err != nil {
		return nil, err
	}
	if h.ADProofsRoot, err = c.readHash32(); err != nil {
		return nil, err
	}
	if h.TransactionsRoot, err = c.readHash32(); err != nil {
		return nil, err
	}
	if h.Timestamp, err = c.readU64LE(); err != nil {
		return nil, err
	}
	height, err := c.readU64LE()
	if err != nil {
		return nil, err
	}
	h.Height = Height(height)
	if h.Target, err = c.readHash32(); err != nil {
		return nil, err
	}
	if h.Nonce, err = c.readU64LE(); err != nil {
		return nil, err
	}
	if h.MinerPubKey, err = c.readHash32(); err != nil {
		return nil, err
	}
	sig, err := c.readCompactBytes()
	if err != nil {
		return nil, err
	}
	h.Signature = append([]byte(nil), sig...)
	return h, nil
}

// BlockPayload is the set of transactions a header commits to via its
// TransactionsRoot.
type BlockPayload struct {
	HeaderId     ModifierId
	Transactions []*Transaction
}

// TransactionsRoot recomputes the merkle root the payload's owning header
// must carry.
func (p *BlockPayload) TransactionsRoot() ([32]byte, error) {
	ids := make([][32]byte, len(p.Transactions))
	for i, tx := range p.Transactions {
		ids[i] = tx.ID()
	}
	return MerkleRoot(ids)
}

// ID is the payload's ModifierId, the hash of the header it belongs to
// together with its transaction list — so the same transactions under a
// different header produce a different payload id.
func (p *BlockPayload) ID() ModifierId {
	buf := make([]byte, 0, 32+len(p.Transactions)*32)
	buf = append(buf, p.HeaderId[:]...)
	for _, tx := range p.Transactions {
		id := tx.ID()
		buf = append(buf, id[:]...)
	}
	return Hash256(buf)
}

// Block pairs a header with the payload it commits to.
type Block struct {
	Header  *BlockHeader
	Payload *BlockPayload
}

func (b *Block) ID() ModifierId {
	return b.Header.ID()
}
