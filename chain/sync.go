package chain

// SyncInfo is what a node exchanges with a peer to establish which of
// them is ahead: a sparse, oldest-first locator of known header ids —
// LastHeaderIds[0] is the most distant checkpoint offered and the final
// entry is the sender's actual chain tip.
type SyncInfo struct {
	LastHeaderIds []ModifierId
}

// Encode serializes the locator as a CompactSize-prefixed id list.
func (s SyncInfo) Encode() []byte {
	out := AppendCompactSize(nil, uint64(len(s.LastHeaderIds)))
	for _, id := range s.LastHeaderIds {
		out = append(out, id[:]...)
	}
	return out
}

// ParseSyncInfo decodes a SyncInfo from the front of buf.
func ParseSyncInfo(buf []byte) (SyncInfo, error) {
	c := newCursor(buf)
	n, err := c.readCompactSize()
	if err != nil {
		return SyncInfo{}, err
	}
	ids := make([]ModifierId, 0, n)
	for i := uint64(0); i < n; i++ {
		id, err := c.readHash32()
		if err != nil {
			return SyncInfo{}, err
		}
		ids = append(ids, id)
	}
	return SyncInfo{LastHeaderIds: ids}, nil
}

// Comparison is the four-way (plus Unknown) result of comparing a peer's
// SyncInfo against the local chain.
type Comparison int

const (
	Unknown Comparison = iota
	Equal
	Younger
	Older
	Nonsense
)
