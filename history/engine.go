// Package history implements the History Engine: the append-only store of
// block headers and payloads, the best-chain pointer, and the fork-choice
// logic that turns a newly arrived header into a ProgressInfo instruction
// for the rest of the node. The graph is held in in-memory maps; nothing
// is persisted. Its fork-point walk is adapted from the teacher's
// node/store package (reorg.go's
// find-fork-point-then-walk-both-chains algorithm), generalized from a
// single eagerly mutated UTXO set to a header/payload graph that only ever
// reports what should change, leaving the mutation itself to the
// Authenticated State Engine.
package history

import (
	"math/big"
	"sync"
	"time"

	"github.com/Bromel777/EncryCore/chain"
	"github.com/Bromel777/EncryCore/crypto"
)

// ValidityStatus is what the node currently believes about a modifier's
// semantic validity, as distinct from its mere presence in the header
// graph.
type ValidityStatus int

const (
	// Unknown means the modifier is known but has not yet been checked
	// against the Authenticated State Engine.
	Unknown ValidityStatus = iota
	Valid
	Invalid
	// Absent is returned for any id the engine has never heard of,
	// including one only ever seen inside a peer's SyncInfo.
	Absent
)

// Engine is the node's single History Engine instance.
type Engine struct {
	mu sync.Mutex

	verifier       crypto.Provider
	maxFutureDrift int64 // seconds a header's timestamp may lead local wall-clock time

	headers  map[chain.ModifierId]*chain.BlockHeader
	payloads map[chain.ModifierId]*chain.BlockPayload
	heights  map[chain.ModifierId]chain.Height
	work     map[chain.ModifierId]*big.Int
	validity map[chain.ModifierId]ValidityStatus

	bestId chain.ModifierId
}

// New returns an empty History Engine, its best pointer set to the
// pre-genesis sentinel. verifier checks a header's miner signature;
// maxFutureDrift bounds how far into the future (relative to local
// wall-clock time) an accepted header's timestamp may sit.
func New(verifier crypto.Provider, maxFutureDrift int64) *Engine {
	return &Engine{
		verifier:       verifier,
		maxFutureDrift: maxFutureDrift,
		headers:        make(map[chain.ModifierId]*chain.BlockHeader),
		payloads:       make(map[chain.ModifierId]*chain.BlockPayload),
		heights:        make(map[chain.ModifierId]chain.Height),
		work:           make(map[chain.ModifierId]*big.Int),
		validity:       make(map[chain.ModifierId]ValidityStatus),
		bestId:         chain.ZeroModifier,
	}
}

// BestId is the id of the current best chain's tip header.
func (e *Engine) BestId() chain.ModifierId {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bestId
}

// Height is the height of the best chain's tip, or PreGenesisHeight if
// the engine holds no headers yet.
func (e *Engine) Height() chain.Height {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.bestId.IsZero() {
		return chain.PreGenesisHeight
	}
	return e.heights[e.bestId]
}

// HeaderById returns the header stored under id. It never returns a hit
// for an id that only names a payload: a typed lookup against the wrong
// bucket is treated the same as the id being entirely absent.
func (e *Engine) HeaderById(id chain.ModifierId) (*chain.BlockHeader, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.headers[id]
	return h, ok
}

// PayloadById returns the payload stored under id, with the same
// typed-lookup silent-miss behavior as HeaderById.
func (e *Engine) PayloadById(id chain.ModifierId) (*chain.BlockPayload, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.payloads[id]
	return p, ok
}

// Applicable reports whether header could extend the graph right now:
// either it is the genesis header, or its parent is already known.
func (e *Engine) Applicable(header *chain.BlockHeader) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if header.ParentId.IsZero() {
		return true
	}
	_, ok := e.headers[header.ParentId]
	return ok
}

// IsSemanticallyValid reports what the engine currently knows about id's
// validity. An id it has never seen — including one that only ever
// appeared inside a peer's SyncInfo — reports Absent rather than Unknown.
func (e *Engine) IsSemanticallyValid(id chain.ModifierId) ValidityStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.headers[id]; !ok {
		return Absent
	}
	return e.validity[id]
}

// MarkValid and MarkInvalid record the Node View Orchestrator's semantic
// verdict on a modifier, once the Authenticated State Engine has checked
// it.
func (e *Engine) MarkValid(id chain.ModifierId) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.validity[id] = Valid
}

func (e *Engine) MarkInvalid(id chain.ModifierId) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.validity[id] = Invalid
}

// Append records a new header and its payload in the graph and reports
// how the node's applied-state pointer should move in response: empty if
// this header does not overtake the current best chain, or a ProgressInfo
// describing the rollback-then-apply sequence if it does.
func (e *Engine) Append(header *chain.BlockHeader, payload *chain.BlockPayload) (chain.ProgressInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := header.ID()
	if _, exists := e.headers[id]; exists {
		return chain.ProgressInfo{}, chain.Newf(chain.NotApplicable, "modifier already known: %x", id)
	}

	var parent *chain.BlockHeader
	if !header.ParentId.IsZero() {
		h, ok := e.headers[header.ParentId]
		if !ok {
			return chain.ProgressInfo{}, chain.Newf(chain.NotApplicable, "parent not known: %x", header.ParentId)
		}
		parent = h
	}

	if len(header.Signature) != 64 {
		return chain.ProgressInfo{}, chain.Newf(chain.Malformed, "header %x: signature must be 64 bytes, got %d", id, len(header.Signature))
	}
	var sig [64]byte
	copy(sig[:], header.Signature)
	if e.verifier == nil || !e.verifier.Verify(header.MinerPubKey, header.PowMessage(), sig) {
		return chain.ProgressInfo{}, chain.Newf(chain.SemanticInvalid, "header %x: signature does not verify under miner_pub_key", id)
	}

	if parent != nil && header.Timestamp <= parent.Timestamp {
		return chain.ProgressInfo{}, chain.Newf(chain.SemanticInvalid,
			"header %x: timestamp %d does not exceed parent timestamp %d", id, header.Timestamp, parent.Timestamp)
	}
	now := time.Now().Unix()
	if int64(header.Timestamp) > now+e.maxFutureDrift {
		return chain.ProgressInfo{}, chain.Newf(chain.SemanticInvalid,
			"header %x: timestamp %d is more than %ds ahead of local time", id, header.Timestamp, e.maxFutureDrift)
	}

	expectedTarget := chain.MaxTarget
	if parent != nil {
		expectedTarget = parent.Target
		height := parent.Height + 1
		if height > 0 && int64(height)%chain.RetargetWindow == 0 {
			windowStart, ok := e.ancestorAtHeight(header.ParentId, height-chain.RetargetWindow)
			if ok {
				retargeted, err := chain.Retarget(parent.Target, windowStart.Timestamp, parent.Timestamp)
				if err != nil {
					return chain.ProgressInfo{}, err
				}
				expectedTarget = retargeted
			}
		}
	}
	if header.Target != expectedTarget {
		return chain.ProgressInfo{}, chain.Newf(chain.SemanticInvalid,
			"header %x: target does not match recomputed difficulty", id)
	}

	if err := chain.PowCheck(header.PowHash(), header.Target); err != nil {
		return chain.ProgressInfo{}, err
	}

	var height chain.Height
	work := new(big.Int)
	if parent != nil {
		height = e.heights[header.ParentId] + 1
		work = work.Set(e.work[header.ParentId])
	}
	w, err := chain.WorkFromTarget(header.Target)
	if err != nil {
		return chain.ProgressInfo{}, err
	}
	work = work.Add(work, w)

	if height != header.Height {
		return chain.ProgressInfo{}, chain.Newf(chain.SemanticInvalid,
			"header height %d does not match parent-derived height %d", header.Height, height)
	}

	e.headers[id] = header
	if payload != nil {
		e.payloads[id] = payload
	}
	e.heights[id] = height
	e.work[id] = work
	e.validity[id] = Unknown

	if e.bestId.IsZero() {
		e.bestId = id
		return chain.ProgressInfo{ToApply: []*chain.Block{{Header: header, Payload: payload}}}, nil
	}

	bestWork := e.work[e.bestId]
	if work.Cmp(bestWork) <= 0 {
		// Ties keep the current best chain to avoid oscillation; a
		// strictly smaller cumulative work is always a side branch.
		return chain.ProgressInfo{}, nil
	}

	return e.reorgTo(id)
}

// reorgTo computes the ProgressInfo needed to move the applied pointer
// from the current bestId to newTip, then commits newTip as the best
// chain. Caller must hold e.mu.
func (e *Engine) reorgTo(newTip chain.ModifierId) (chain.ProgressInfo, error) {
	oldChain := e.pathToGenesis(e.bestId)
	newChain := e.pathToGenesis(newTip)

	oldIndex := make(map[chain.ModifierId]int, len(oldChain))
	for i, id := range oldChain {
		oldIndex[id] = i
	}

	branchPoint := chain.ZeroModifier
	newBranchIdx := len(newChain)
	for i, id := range newChain {
		if _, ok := oldIndex[id]; ok {
			branchPoint = id
			newBranchIdx = i
			break
		}
	}

	var toRemove []*chain.Block
	if branchPoint != e.bestId {
		removeCount := oldIndex[branchPoint]
		for i := 0; i < removeCount; i++ {
			id := oldChain[i]
			toRemove = append(toRemove, &chain.Block{Header: e.headers[id], Payload: e.payloads[id]})
		}
	}

	toApply := make([]*chain.Block, 0, newBranchIdx)
	for i := newBranchIdx - 1; i >= 0; i-- {
		id := newChain[i]
		toApply = append(toApply, &chain.Block{Header: e.headers[id], Payload: e.payloads[id]})
	}

	e.bestId = newTip
	return chain.ProgressInfo{BranchPoint: branchPoint, ToRemoveFromChain: toRemove, ToApply: toApply}, nil
}

// pathToGenesis returns the ids from tip back to (and including) genesis,
// newest first.
func (e *Engine) pathToGenesis(tip chain.ModifierId) []chain.ModifierId {
	var path []chain.ModifierId
	cur := tip
	for {
		if cur.IsZero() {
			break
		}
		path = append(path, cur)
		h := e.headers[cur]
		cur = h.ParentId
	}
	return path
}

// AncestorAtHeight walks back from tip to find the header at the given
// height, the lookup a difficulty retarget needs to read the timestamp at
// the start of its averaging window. It returns false if tip or one of
// its ancestors is unknown, or if height is beyond tip's own height.
func (e *Engine) AncestorAtHeight(tip chain.ModifierId, height chain.Height) (*chain.BlockHeader, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ancestorAtHeight(tip, height)
}

// ancestorAtHeight is AncestorAtHeight's body without locking. Caller must
// hold e.mu.
func (e *Engine) ancestorAtHeight(tip chain.ModifierId, height chain.Height) (*chain.BlockHeader, bool) {
	cur := tip
	for {
		h, ok := e.headers[cur]
		if !ok {
			return nil, false
		}
		if h.Height == height {
			return h, true
		}
		if h.Height < height || h.ParentId.IsZero() {
			return nil, false
		}
		cur = h.ParentId
	}
}

// Compare reports how a peer's SyncInfo relates to the local chain.
// LastHeaderIds is oldest-first, so the shared header both sides know
// about is found by scanning from the tail backward: the first (i.e.
// most recent) entry we recognize is the deepest point of agreement.
func (e *Engine) Compare(sync chain.SyncInfo) chain.Comparison {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(sync.LastHeaderIds)
	if n == 0 {
		return chain.Nonsense
	}

	var common chain.ModifierId
	foundKnown := false
	for i := n - 1; i >= 0; i-- {
		if _, ok := e.headers[sync.LastHeaderIds[i]]; ok {
			common = sync.LastHeaderIds[i]
			foundKnown = true
			break
		}
	}
	if !foundKnown {
		return chain.Nonsense
	}
	if common == e.bestId {
		return chain.Equal
	}
	if sync.LastHeaderIds[n-1] == common {
		// Peer's own reported tip is something we already know about and
		// have since built past: they are behind us.
		return chain.Younger
	}
	return chain.Older
}

// ContinuationIds returns up to size header ids the peer described by
// sync is missing, starting just after the newest header both sides
// share. LastHeaderIds is oldest-first, so the shared point is found by
// scanning from the tail backward. It returns nil if no shared header
// could be found.
func (e *Engine) ContinuationIds(sync chain.SyncInfo, size int) []chain.ModifierId {
	e.mu.Lock()
	defer e.mu.Unlock()

	var common chain.ModifierId
	found := false
	for i := len(sync.LastHeaderIds) - 1; i >= 0; i-- {
		if _, ok := e.headers[sync.LastHeaderIds[i]]; ok {
			common = sync.LastHeaderIds[i]
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	full := e.pathToGenesis(e.bestId)
	idx := -1
	for i, id := range full {
		if id == common {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return nil
	}
	// full is newest-first; the ids after common, oldest-first, are
	// full[idx-1] down to full[0].
	out := make([]chain.ModifierId, 0, size)
	for i := idx - 1; i >= 0 && len(out) < size; i-- {
		out = append(out, full[i])
	}
	return out
}
