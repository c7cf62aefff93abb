// Package state implements the Authenticated State Engine: an in-memory
// ring of persistent AVL snapshots (state/avl) backed by a bbolt store
// for durability of the currently committed box set. It applies blocks,
// rolls back to any version inside its retained window, validates single
// transactions speculatively, and produces the AD proofs a candidate block
// needs before it is ever mined.
package state

import (
	"sync"

	"github.com/Bromel777/EncryCore/chain"
	"github.com/Bromel777/EncryCore/crypto"
	"github.com/Bromel777/EncryCore/state/avl"
)

// Engine is the node's single Authenticated State Engine instance.
type Engine struct {
	mu sync.Mutex

	window   int
	maturity chain.Height
	verifier crypto.Provider

	order      []chain.VersionTag
	trees      map[chain.VersionTag]*avl.Tree
	heights    map[chain.VersionTag]chain.Height
	timestamps map[chain.VersionTag]uint64

	store *Store
}

// New constructs an Engine retaining up to window versions beyond the
// current best, enforcing coinbaseMaturity blocks of lock on subsidy
// outputs, and optionally backed by store for durability (nil runs
// entirely in memory, e.g. for tests).
func New(window int, coinbaseMaturity chain.Height, verifier crypto.Provider, store *Store) (*Engine, error) {
	e := &Engine{
		window:     window,
		maturity:   coinbaseMaturity,
		verifier:   verifier,
		trees:      make(map[chain.VersionTag]*avl.Tree),
		heights:    make(map[chain.VersionTag]chain.Height),
		timestamps: make(map[chain.VersionTag]uint64),
		store:      store,
	}

	root := chain.ZeroModifier
	tree := avl.New()
	height := chain.PreGenesisHeight

	if store != nil {
		boxes, err := store.LoadBoxes()
		if err != nil {
			return nil, err
		}
		for id, encoded := range boxes {
			box, err := chain.ParseBox(encoded)
			if err != nil {
				return nil, err
			}
			tree, _ = tree.Insert([32]byte(id), box.Encode())
		}
		version, persistedHeight, err := store.LoadMeta()
		if err != nil {
			return nil, err
		}
		if persistedHeight != chain.PreGenesisHeight {
			root = version
			height = persistedHeight
		}
	}

	e.order = []chain.VersionTag{root}
	e.trees[root] = tree
	e.heights[root] = height
	return e, nil
}

// BestVersion is the tip of the currently applied chain of state
// transitions.
func (e *Engine) BestVersion() chain.VersionTag {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.order[len(e.order)-1]
}

// Height is the height of BestVersion.
func (e *Engine) Height() chain.Height {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.heights[e.order[len(e.order)-1]]
}

// RollbackVersions lists every version currently retained for rollback,
// oldest first.
func (e *Engine) RollbackVersions() []chain.VersionTag {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]chain.VersionTag, len(e.order))
	copy(out, e.order)
	return out
}

// GetBox looks up a box by id in the current best version.
func (e *Engine) GetBox(id chain.BoxId) (chain.Box, bool, error) {
	e.mu.Lock()
	tree := e.trees[e.order[len(e.order)-1]]
	e.mu.Unlock()
	return lookupBox(tree, id)
}

func lookupBox(tree *avl.Tree, id chain.BoxId) (chain.Box, bool, error) {
	raw, found, _ := tree.Lookup([32]byte(id))
	if !found {
		return nil, false, nil
	}
	box, err := chain.ParseBox(raw)
	if err != nil {
		return nil, false, err
	}
	return box, true, nil
}

// Apply validates and applies block on top of the current best version,
// enforcing that the resulting AD digest matches the header's claimed
// StateRoot. On success it returns the new version tag (the block's id)
// and the AD proof a light verifier would need to recompute the same
// digest.
func (e *Engine) Apply(block *chain.Block) (chain.VersionTag, chain.ADProof, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.trees[e.order[len(e.order)-1]]
	newTree, proof, put, removed, err := e.applyPayload(cur, block.Header.Height, block.Payload)
	if err != nil {
		return chain.VersionTag{}, nil, err
	}

	digest := newTree.Digest()
	if digest != block.Header.StateRoot {
		return chain.VersionTag{}, nil, chain.Newf(chain.StateInvalid,
			"state root mismatch: computed %x/%d, header claims %x/%d",
			digest.RootHash, digest.TreeHeight, block.Header.StateRoot.RootHash, block.Header.StateRoot.TreeHeight)
	}

	version := block.ID()

	if e.store != nil {
		if err := e.store.ApplyDiff(put, removed, version, block.Header.Height); err != nil {
			return chain.VersionTag{}, nil, err
		}
	}

	e.order = append(e.order, version)
	e.trees[version] = newTree
	e.heights[version] = block.Header.Height
	e.timestamps[version] = block.Header.Timestamp

	if len(e.order) > e.window+1 {
		oldest := e.order[0]
		e.order = e.order[1:]
		delete(e.trees, oldest)
		delete(e.heights, oldest)
		delete(e.timestamps, oldest)
	}

	return version, chain.ADProof(proof), nil
}

// RollbackTo discards every version newer than target, restoring it as
// the new best version. It fails if target has already fallen outside the
// retained window.
func (e *Engine) RollbackTo(target chain.VersionTag) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := -1
	for i, v := range e.order {
		if v == target {
			idx = i
			break
		}
	}
	if idx < 0 {
		return chain.Newf(chain.StateInvalid, "rollback target outside retained window")
	}

	dropped := e.order[idx+1:]
	e.order = e.order[:idx+1]
	for _, v := range dropped {
		delete(e.trees, v)
		delete(e.heights, v)
		delete(e.timestamps, v)
	}

	if e.store != nil {
		tree := e.trees[target]
		boxes := make(map[chain.BoxId][]byte)
		tree.Walk(func(key [32]byte, value []byte) {
			boxes[chain.BoxId(key)] = value
		})
		if err := e.store.Resync(boxes, target, e.heights[target]); err != nil {
			return err
		}
	}
	return nil
}

// Validate speculatively applies tx against the current best version and
// discards the result, reporting whether tx could be applied on its own.
// A coinbase transaction is rejected outright; subsidy rules are only
// checked when a whole payload is applied.
func (e *Engine) Validate(tx *chain.Transaction, height chain.Height) error {
	e.mu.Lock()
	tree := e.trees[e.order[len(e.order)-1]]
	e.mu.Unlock()

	if tx.IsCoinbase() {
		return chain.Newf(chain.SemanticInvalid, "coinbase transactions cannot be validated standalone")
	}
	_, _, _, err := e.applyOneTx(tree, height, tx)
	return err
}

// ProofsForTransactions speculatively applies txs in order against the
// current best version without committing, returning the combined AD
// proof and the resulting digest — exactly what a mining candidate needs
// to populate its header's stateRoot and adProofsRoot before the block has
// been mined (and may never be).
func (e *Engine) ProofsForTransactions(txs []*chain.Transaction, height chain.Height) (chain.ADProof, chain.ADDigest, error) {
	e.mu.Lock()
	tree := e.trees[e.order[len(e.order)-1]]
	e.mu.Unlock()

	payload := &chain.BlockPayload{Transactions: txs}
	newTree, proof, _, _, err := e.applyPayload(tree, height, payload)
	if err != nil {
		return nil, chain.ADDigest{}, err
	}
	return chain.ADProof(proof), newTree.Digest(), nil
}

func (e *Engine) applyPayload(tree *avl.Tree, height chain.Height, payload *chain.BlockPayload) (*avl.Tree, []byte, []chain.Box, []chain.BoxId, error) {
	cur := tree
	var proof []byte
	var put []chain.Box
	var removed []chain.BoxId
	var totalFees uint64
	var coinbase *chain.Transaction

	for _, tx := range payload.Transactions {
		if tx.IsCoinbase() {
			if coinbase != nil {
				return nil, nil, nil, nil, chain.Newf(chain.SemanticInvalid, "block carries more than one coinbase transaction")
			}
			coinbase = tx
			continue
		}
		newTree, txProof, created, err := e.applyOneTx(cur, height, tx)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		cur = newTree
		proof = append(proof, txProof...)
		put = append(put, created...)
		removed = append(removed, unlockerBoxIds(tx)...)
		totalFees += tx.Fee
	}

	if coinbase != nil {
		newTree, txProof, created, err := e.applyCoinbase(cur, height, coinbase, totalFees)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		cur = newTree
		proof = append(proof, txProof...)
		put = append(put, created...)
	} else if len(payload.Transactions) > 0 {
		return nil, nil, nil, nil, chain.Newf(chain.SemanticInvalid, "block payload is missing its coinbase transaction")
	}

	return cur, proof, put, removed, nil
}

func unlockerBoxIds(tx *chain.Transaction) []chain.BoxId {
	ids := make([]chain.BoxId, len(tx.Unlockers))
	for i, u := range tx.Unlockers {
		ids[i] = u.BoxId
	}
	return ids
}

// applyOneTx consumes tx's Unlockers and creates its Directives' boxes,
// returning the new tree, the concatenated AD proof bytes, and the newly
// created boxes (for durable persistence).
func (e *Engine) applyOneTx(tree *avl.Tree, height chain.Height, tx *chain.Transaction) (*avl.Tree, []byte, []chain.Box, error) {
	cur := tree
	var proof []byte
	var inputSum uint64

	ctx := chain.UnlockContext{Height: height, SignedMessage: tx.SignedBytes(), Verifier: e.verifier}

	for _, u := range tx.Unlockers {
		raw, found, p := cur.Lookup([32]byte(u.BoxId))
		proof = append(proof, p.Encode()...)
		if !found {
			return nil, nil, nil, chain.Newf(chain.StateInvalid, "missing box %x", u.BoxId)
		}
		box, err := chain.ParseBox(raw)
		if err != nil {
			return nil, nil, nil, err
		}
		if cb, ok := box.(chain.CoinbaseBox); ok {
			if height-cb.CreationHeight < e.maturity {
				return nil, nil, nil, chain.Newf(chain.StateInvalid, "coinbase box %x not yet mature", u.BoxId)
			}
		}
		if !box.Proposition().Unlock(u.Proof, ctx) {
			return nil, nil, nil, chain.Newf(chain.SemanticInvalid, "unlock proof rejected for box %x", u.BoxId)
		}
		inputSum += box.Value()
		newTree, _, p2 := cur.Remove([32]byte(u.BoxId))
		proof = append(proof, p2.Encode()...)
		cur = newTree
	}

	var outputSum uint64
	created := make([]chain.Box, 0, len(tx.Directives))
	txId := tx.ID()
	for i, d := range tx.Directives {
		outputSum += d.Amount
		boxId := chain.NewBoxId(txId, uint32(i))
		box := chain.AssetBox{Id: boxId, Val: d.Amount, Prop: d.Proposition}
		newTree, p := cur.Insert([32]byte(boxId), box.Encode())
		proof = append(proof, p.Encode()...)
		cur = newTree
		created = append(created, box)
	}

	if inputSum != outputSum+tx.Fee {
		return nil, nil, nil, chain.Newf(chain.SemanticInvalid,
			"unbalanced transaction: inputs=%d outputs=%d fee=%d", inputSum, outputSum, tx.Fee)
	}

	return cur, proof, created, nil
}

func (e *Engine) applyCoinbase(tree *avl.Tree, height chain.Height, tx *chain.Transaction, fees uint64) (*avl.Tree, []byte, []chain.Box, error) {
	var minted uint64
	for _, d := range tx.Directives {
		minted += d.Amount
	}
	subsidy := Subsidy(height)
	if minted > subsidy+fees {
		return nil, nil, nil, chain.Newf(chain.SemanticInvalid,
			"coinbase mints %d, exceeds subsidy %d plus fees %d", minted, subsidy, fees)
	}

	cur := tree
	var proof []byte
	created := make([]chain.Box, 0, len(tx.Directives))
	txId := tx.ID()
	for i, d := range tx.Directives {
		boxId := chain.NewBoxId(txId, uint32(i))
		box := chain.CoinbaseBox{Id: boxId, Val: d.Amount, Prop: d.Proposition, CreationHeight: height}
		newTree, p := cur.Insert([32]byte(boxId), box.Encode())
		proof = append(proof, p.Encode()...)
		cur = newTree
		created = append(created, box)
	}
	return cur, proof, created, nil
}

// Subsidy is the block reward schedule: a flat devnet subsidy that halves
// every 2,100,000 blocks, the same halving cadence the teacher's original
// supply schedule used before its post-quantum-signature-specific unit
// constants were dropped along with the rest of that vocabulary.
func Subsidy(height chain.Height) uint64 {
	const initial = 50_0000_0000
	const halvingInterval = 2_100_000
	halvings := int64(height) / halvingInterval
	if halvings >= 64 {
		return 0
	}
	return initial >> uint(halvings)
}
