package chain

// Unlocker references a box a transaction consumes together with the
// proof that satisfies its Proposition.
type Unlocker struct {
	BoxId BoxId
	Proof []byte
}

func (u Unlocker) encode() []byte {
	out := make([]byte, 0, 32+4+len(u.Proof))
	out = append(out, u.BoxId[:]...)
	out = AppendCompactSize(out, uint64(len(u.Proof)))
	out = append(out, u.Proof...)
	return out
}

func parseUnlocker(c *cursor) (Unlocker, error) {
	idBytes, err := c.readExact(32)
	if err != nil {
		return Unlocker{}, err
	}
	proof, err := c.readCompactBytes()
	if err != nil {
		return Unlocker{}, err
	}
	var id BoxId
	copy(id[:], idBytes)
	return Unlocker{BoxId: id, Proof: append([]byte(nil), proof...)}, nil
}

// DirectiveType tags a Directive's wire encoding so a parser knows which
// kind of box-creation instruction follows. A single kind exists today
// (transfer a plain amount to a Proposition), but the tag is carried on
// the wire so additional directive kinds can be added without breaking
// old transactions.
type DirectiveType byte

const (
	DirectiveTransfer DirectiveType = 0x01
)

// Directive instructs the engine to create one new box when a transaction
// is applied.
type Directive struct {
	Proposition Proposition
	Amount      uint64
}

func (d Directive) Type() DirectiveType { return DirectiveTransfer }

func (d Directive) encode() []byte {
	out := make([]byte, 0, 1+len(d.Proposition.Encode())+8)
	out = append(out, byte(d.Type()))
	out = append(out, d.Proposition.Encode()...)
	out = appendU64LE(out, d.Amount)
	return out
}

func parseDirective(c *cursor) (Directive, error) {
	tag, err := c.readU8()
	if err != nil {
		return Directive{}, err
	}
	if DirectiveType(tag) != DirectiveTransfer {
		return Directive{}, Newf(Malformed, "directive: unknown type tag %d", tag)
	}
	prop, err := parseProposition(c)
	if err != nil {
		return Directive{}, err
	}
	amount, err := c.readU64LE()
	if err != nil {
		return Directive{}, err
	}
	return Directive{Proposition: prop, Amount: amount}, nil
}

// Transaction moves value between boxes (Unlockers consumed, Directives
// created) or, when it carries no Unlockers, mints the block's subsidy as
// a coinbase transaction.
type Transaction struct {
	Fee        uint64
	Timestamp  uint64
	Unlockers  []Unlocker
	Directives []Directive
	Signature  []byte
}

// IsCoinbase reports whether tx mints new value rather than spending
// existing boxes: a transaction with no Unlockers consumes nothing, so it
// can only be valid as the block's single subsidy-minting transaction.
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.Unlockers) == 0
}

// SignedBytes returns the byte string a Proposition's signature proof
// is computed over: every field except the signature itself.
func (tx *Transaction) SignedBytes() []byte {
	out := make([]byte, 0, 256)
	out = appendU64LE(out, tx.Fee)
	out = appendU64LE(out, tx.Timestamp)
	out = AppendCompactSize(out, uint64(len(tx.Unlockers)))
	for _, u := range tx.Unlockers {
		out = append(out, u.BoxId[:]...)
	}
	out = AppendCompactSize(out, uint64(len(tx.Directives)))
	for _, d := range tx.Directives {
		out = append(out, d.encode()...)
	}
	return out
}

// Encode returns the transaction's full wire form, including witness data
// (the per-unlocker proofs and the transaction-level signature).
func (tx *Transaction) Encode() []byte {
	out := make([]byte, 0, 256)
	out = appendU64LE(out, tx.Fee)
	out = appendU64LE(out, tx.Timestamp)
	out = AppendCompactSize(out, uint64(len(tx.Unlockers)))
	for _, u := range tx.Unlockers {
		out = append(out, u.encode()...)
	}
	out = AppendCompactSize(out, uint64(len(tx.Directives)))
	for _, d := range tx.Directives {
		out = append(out, d.encode()...)
	}
	out = AppendCompactSize(out, uint64(len(tx.Signature)))
	out = append(out, tx.Signature...)
	return out
}

// ID is the transaction's ModifierId: the hash of its signed bytes, so a
// transaction's identity does not change if it is re-witnessed.
func (tx *Transaction) ID() ModifierId {
	return Hash256(tx.SignedBytes())
}

// ParseTransaction decodes a transaction from the front of buf and reports
// the number of bytes consumed.
func ParseTransaction(buf []byte) (*Transaction, int, error) {
	c := newCursor(buf)
	tx, err := parseTransaction(c)
	if err != nil {
		return nil, 0, err
	}
	return tx, c.pos, nil
}

func parseTransaction(c *cursor) (*Transaction, error) {
	fee, err := c.readU64LE()
	if err != nil {
		return nil, err
	}
	ts, err := c.readU64LE()
	if err != nil {
		return nil, err
	}
	nUnlockers, err := c.readCompactSize()
	if err != nil {
		return nil, err
	}
	unlockers := make([]Unlocker, 0, nUnlockers)
	for i := uint64(0); i < nUnlockers; i++ {
		u, err := parseUnlocker(c)
		if err != nil {
			return nil, err
		}
		unlockers = append(unlockers, u)
	}
	nDirectives, err := c.readCompactSize()
	if err != nil {
		return nil, err
	}
	directives := make([]Directive, 0, nDirectives)
	for i := uint64(0); i < nDirectives; i++ {
		d, err := parseDirective(c)
		if err != nil {
			return nil, err
		}
		directives = append(directives, d)
	}
	sig, err := c.readCompactBytes()
	if err != nil {
		return nil, err
	}
	return &Transaction{
		Fee:        fee,
		Timestamp:  ts,
		Unlockers:  unlockers,
		Directives: directives,
		Signature:  append([]byte(nil), sig...),
	}, nil
}
