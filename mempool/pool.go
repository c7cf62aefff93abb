// Package mempool implements the node's pending-transaction pool: a
// bounded, fee-ordered holding area for transactions that have passed
// stateless and box-conflict checks but have not yet been included in an
// applied block. Its admission policy (fee floor, eviction of the
// cheapest entry to make room for a richer newcomer) and its fee-ordered
// selection for mining candidates mirror the shape of a typical UTXO-node
// transaction relay pool: reject what is redundant or too cheap, evict
// the worst entry rather than the newest when full, and always hand the
// miner the highest-fee, conflict-free prefix that fits a byte budget.
package mempool

import (
	"sort"
	"sync"

	"github.com/Bromel777/EncryCore/chain"
)

// Pool is the node's single mempool instance. All exported methods are
// safe for concurrent use.
type Pool struct {
	mu sync.Mutex

	capacity int
	minFee   uint64

	txs      map[chain.ModifierId]*chain.Transaction
	boxUsers map[chain.BoxId]chain.ModifierId
}

// New returns an empty pool bounded to capacity transactions, rejecting
// anything below minFee.
func New(capacity int, minFee uint64) *Pool {
	return &Pool{
		capacity: capacity,
		minFee:   minFee,
		txs:      make(map[chain.ModifierId]*chain.Transaction),
		boxUsers: make(map[chain.BoxId]chain.ModifierId),
	}
}

// Size is the number of transactions currently held.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.txs)
}

// Contains reports whether id is currently held.
func (p *Pool) Contains(id chain.ModifierId) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.txs[id]
	return ok
}

// Put admits tx into the pool, rejecting it outright if it is a coinbase
// transaction, below the fee floor, already present, or spends a box
// another pooled transaction already claims. If the pool is at capacity
// it evicts its single cheapest transaction to make room for a strictly
// richer newcomer; otherwise a full pool rejects the newcomer.
func (p *Pool) Put(tx *chain.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if tx.IsCoinbase() {
		return chain.Newf(chain.Malformed, "mempool: coinbase transactions are not relayed")
	}
	if tx.Fee < p.minFee {
		return chain.Newf(chain.SemanticInvalid, "mempool: fee %d below floor %d", tx.Fee, p.minFee)
	}
	id := tx.ID()
	if _, exists := p.txs[id]; exists {
		return chain.Newf(chain.NotApplicable, "mempool: transaction already pooled")
	}
	for _, u := range tx.Unlockers {
		if owner, claimed := p.boxUsers[u.BoxId]; claimed && owner != id {
			return chain.Newf(chain.SemanticInvalid, "mempool: box %x already spent by a pooled transaction", u.BoxId)
		}
	}

	if len(p.txs) >= p.capacity {
		cheapestId, cheapestFee, found := p.cheapest()
		if !found || tx.Fee <= cheapestFee {
			return chain.Newf(chain.Transient, "mempool: full, and newcomer does not outbid the cheapest entry")
		}
		p.removeLocked(cheapestId)
	}

	p.txs[id] = tx
	for _, u := range tx.Unlockers {
		p.boxUsers[u.BoxId] = id
	}
	return nil
}

func (p *Pool) cheapest() (chain.ModifierId, uint64, bool) {
	var (
		id    chain.ModifierId
		fee   uint64
		found bool
	)
	for txId, tx := range p.txs {
		if !found || tx.Fee < fee {
			id, fee, found = txId, tx.Fee, true
		}
	}
	return id, fee, found
}

// Remove drops id from the pool if present, releasing the boxes it had
// claimed. It is safe to call for an id the pool does not hold.
func (p *Pool) Remove(id chain.ModifierId) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(id)
}

func (p *Pool) removeLocked(id chain.ModifierId) {
	tx, ok := p.txs[id]
	if !ok {
		return
	}
	delete(p.txs, id)
	for _, u := range tx.Unlockers {
		if p.boxUsers[u.BoxId] == id {
			delete(p.boxUsers, u.BoxId)
		}
	}
}

// RemoveAsync schedules ids for removal without blocking the caller on
// pool contention, for use on the Node View Orchestrator's hot apply path
// where mempool bookkeeping must never stall block application.
func (p *Pool) RemoveAsync(ids []chain.ModifierId) {
	go func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for _, id := range ids {
			p.removeLocked(id)
		}
	}()
}

// Take returns the highest-fee-first prefix of pooled transactions whose
// total encoded size does not exceed maxBytes, the selection a mining
// candidate is built from.
func (p *Pool) Take(maxBytes int) []*chain.Transaction {
	p.mu.Lock()
	ordered := make([]*chain.Transaction, 0, len(p.txs))
	for _, tx := range p.txs {
		ordered = append(ordered, tx)
	}
	p.mu.Unlock()

	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Fee != ordered[j].Fee {
			return ordered[i].Fee > ordered[j].Fee
		}
		if ordered[i].Timestamp != ordered[j].Timestamp {
			return ordered[i].Timestamp < ordered[j].Timestamp
		}
		// Final deterministic tie-break for the vanishingly rare case of
		// equal fee and equal timestamp, so repeated calls over an
		// unchanged pool still return a stable order.
		idI, idJ := ordered[i].ID(), ordered[j].ID()
		return string(idI[:]) < string(idJ[:])
	})

	out := make([]*chain.Transaction, 0, len(ordered))
	used := 0
	for _, tx := range ordered {
		size := len(tx.Encode())
		if used+size > maxBytes {
			break
		}
		out = append(out, tx)
		used += size
	}
	return out
}
