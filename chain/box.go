package chain

// BoxId identifies a box (an unspent output) in the authenticated
// dictionary: the key under which state.Engine stores it.
type BoxId [32]byte

// NewBoxId derives the id a transaction's output at index produces,
// matching the way the teacher derived a UTXO outpoint from a txid and
// vout, generalized to the box model's single flat key space.
func NewBoxId(txId ModifierId, index uint32) BoxId {
	buf := make([]byte, 0, 36)
	buf = append(buf, txId[:]...)
	buf = appendU32LE(buf, index)
	return BoxId(Hash256(buf))
}

// BoxType tags a box's wire encoding so a parser knows which concrete
// variant follows.
type BoxType byte

const (
	BoxTypeAsset      BoxType = 0x01
	BoxTypeCoinbase   BoxType = 0x02
	BoxTypePubKeyInfo BoxType = 0x03
)

// Box is a unit of spendable (or informational) state committed in the
// authenticated dictionary.
type Box interface {
	ID() BoxId
	Type() BoxType
	Value() uint64
	Proposition() Proposition
	Encode() []byte
}

// AssetBox carries a plain value locked by a Proposition.
type AssetBox struct {
	Id   BoxId
	Val  uint64
	Prop Proposition
}

func (b AssetBox) ID() BoxId              { return b.Id }
func (b AssetBox) Type() BoxType          { return BoxTypeAsset }
func (b AssetBox) Value() uint64          { return b.Val }
func (b AssetBox) Proposition() Proposition { return b.Prop }

func (b AssetBox) Encode() []byte {
	out := make([]byte, 0, 1+32+8+len(b.Prop.Encode()))
	out = append(out, byte(BoxTypeAsset))
	out = append(out, b.Id[:]...)
	out = appendU64LE(out, b.Val)
	out = append(out, b.Prop.Encode()...)
	return out
}

// CoinbaseBox carries block-subsidy value plus the height it was created
// at, so the engine can enforce coinbase maturity independently of
// whatever Proposition locks it.
type CoinbaseBox struct {
	Id             BoxId
	Val            uint64
	Prop           Proposition
	CreationHeight Height
}

func (b CoinbaseBox) ID() BoxId              { return b.Id }
func (b CoinbaseBox) Type() BoxType          { return BoxTypeCoinbase }
func (b CoinbaseBox) Value() uint64          { return b.Val }
func (b CoinbaseBox) Proposition() Proposition { return b.Prop }

func (b CoinbaseBox) Encode() []byte {
	out := make([]byte, 0, 1+32+8+8+len(b.Prop.Encode()))
	out = append(out, byte(BoxTypeCoinbase))
	out = append(out, b.Id[:]...)
	out = appendU64LE(out, b.Val)
	out = appendU64LE(out, uint64(b.CreationHeight))
	out = append(out, b.Prop.Encode()...)
	return out
}

// PubKeyInfoBox records a signing key in the authenticated dictionary; it
// carries no spendable value. Nothing in this node constructs one, and
// header signatures are checked against the header's own MinerPubKey, not
// against a PubKeyInfoBox.
type PubKeyInfoBox struct {
	Id     BoxId
	PubKey [32]byte
	Prop    Proposition
}

func (b PubKeyInfoBox) ID() BoxId              { return b.Id }
func (b PubKeyInfoBox) Type() BoxType          { return BoxTypePubKeyInfo }
func (b PubKeyInfoBox) Value() uint64          { return 0 }
func (b PubKeyInfoBox) Proposition() Proposition { return b.Prop }

func (b PubKeyInfoBox) Encode() []byte {
	out := make([]byte, 0, 1+32+32+len(b.Prop.Encode()))
	out = append(out, byte(BoxTypePubKeyInfo))
	out = append(out, b.Id[:]...)
	out = append(out, b.PubKey[:]...)
	out = append(out, b.Prop.Encode()...)
	return out
}

// ParseBox decodes a box from its Encode() form, the representation stored
// verbatim as the authenticated dictionary's leaf value.
func ParseBox(buf []byte) (Box, error) {
	c := newCursor(buf)
	tag, err := c.readU8()
	if err != nil {
		return nil, err
	}
	idBytes, err := c.readExact(32)
	if err != nil {
		return nil, err
	}
	var id BoxId
	copy(id[:], idBytes)

	switch BoxType(tag) {
	case BoxTypeAsset:
		val, err := c.readU64LE()
		if err != nil {
			return nil, err
		}
		prop, err := parseProposition(c)
		if err != nil {
			return nil, err
		}
		return AssetBox{Id: id, Val: val, Prop: prop}, nil
	case BoxTypeCoinbase:
		val, err := c.readU64LE()
		if err != nil {
			return nil, err
		}
		height, err := c.readU64LE()
		if err != nil {
			return nil, err
		}
		prop, err := parseProposition(c)
		if err != nil {
			return nil, err
		}
		return CoinbaseBox{Id: id, Val: val, CreationHeight: Height(height), Prop: prop}, nil
	case BoxTypePubKeyInfo:
		pkBytes, err := c.readExact(32)
		if err != nil {
			return nil, err
		}
		var pk [32]byte
		copy(pk[:], pkBytes)
		prop, err := parseProposition(c)
		if err != nil {
			return nil, err
		}
		return PubKeyInfoBox{Id: id, PubKey: pk, Prop: prop}, nil
	default:
		return nil, Newf(Malformed, "box: unknown type tag %d", tag)
	}
}
