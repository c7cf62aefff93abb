package chain

// ModifierId content-addresses any persistent value the node exchanges or
// stores: a header, a payload, a transaction, or an authenticated-state
// digest. It is always the Hash256 of the value's canonical encoding.
type ModifierId [32]byte

// VersionTag identifies a committed authenticated-state snapshot. The
// engine always sets it equal to the ModifierId of the block that produced
// the snapshot, so "roll back to version v" and "roll back to the state
// right after block v" are the same operation.
type VersionTag = ModifierId

// Height is a block's distance from genesis. Genesis sits at height 0;
// PreGenesisHeight is the sentinel height of the engine before any block
// has ever been applied.
type Height int64

// PreGenesisHeight is the height of the empty chain, one below genesis.
const PreGenesisHeight Height = -1

// GenesisHeight is the height of the first real block.
const GenesisHeight Height = 0

// ZeroModifier is the sentinel parent id carried by the genesis header: no
// real modifier ever hashes to it because the value space is the image of
// Hash256, whose preimage is never the empty byte string hashed to zero.
var ZeroModifier ModifierId

func (id ModifierId) IsZero() bool {
	return id == ZeroModifier
}
