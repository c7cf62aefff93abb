// Package nodeview implements the Node View Orchestrator: the single
// writer that mediates every modifier application across the
// Authenticated State Engine, the History Engine, and the Mempool, while
// letting reads bypass the write queue entirely since each of those
// components is already safe for concurrent read access on its own. Its
// command-queue shape — one goroutine draining a channel of closures,
// every mutation expressed as a function value pushed onto that channel
// — is the same actor-style mediation a sync node's snapshot/rollback
// coordinator uses to keep "what is currently applied" from ever being
// observed mid-update.
package nodeview

import (
	"context"
	"sync"

	"github.com/Bromel777/EncryCore/chain"
	"github.com/Bromel777/EncryCore/history"
	"github.com/Bromel777/EncryCore/mempool"
	"github.com/Bromel777/EncryCore/state"
)

// View exposes the three read-only data sources a client can inspect
// without going through the write queue.
type View struct {
	State   *state.Engine
	History *history.Engine
	Pool    *mempool.Pool
}

// Orchestrator is the node's single Node View Orchestrator instance.
type Orchestrator struct {
	state   *state.Engine
	history *history.Engine
	pool    *mempool.Pool

	cmds chan func()

	subscribersMu sync.Mutex
	subscribers   []chan chain.ModifierId
}

// New constructs an Orchestrator over the given components. queueDepth
// bounds how many pending write commands may be outstanding before
// callers of ApplyModifier/SubmitTransaction start blocking.
func New(st *state.Engine, he *history.Engine, pool *mempool.Pool, queueDepth int) *Orchestrator {
	return &Orchestrator{
		state:   st,
		history: he,
		pool:    pool,
		cmds:    make(chan func(), queueDepth),
	}
}

// Run drains the write command queue until ctx is cancelled. Exactly one
// Run goroutine may execute at a time for a given Orchestrator.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-o.cmds:
			cmd()
		}
	}
}

// GetDataFromCurrentView lets a caller read across all three components
// without contending with the write queue: every component's accessors
// already hold their own lock internally, so there is nothing further to
// serialize on the read path.
func (o *Orchestrator) GetDataFromCurrentView(f func(View) any) any {
	return f(View{State: o.state, History: o.history, Pool: o.pool})
}

// Subscribe returns a channel that receives the id of every modifier this
// Orchestrator successfully applies, from the moment of the call onward.
// The channel is bounded at buffer entries and drops its oldest pending
// id rather than block the writer when a slow subscriber falls behind.
func (o *Orchestrator) Subscribe(buffer int) <-chan chain.ModifierId {
	ch := make(chan chain.ModifierId, buffer)
	o.subscribersMu.Lock()
	o.subscribers = append(o.subscribers, ch)
	o.subscribersMu.Unlock()
	return ch
}

func (o *Orchestrator) broadcast(id chain.ModifierId) {
	o.subscribersMu.Lock()
	defer o.subscribersMu.Unlock()
	for _, ch := range o.subscribers {
		select {
		case ch <- id:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- id:
			default:
			}
		}
	}
}

// ApplyModifier enqueues header/payload for single-writer application and
// blocks until the write queue has processed it (or ctx is cancelled
// first). A rejected header (unknown parent, bad proof of work, failed
// semantic validation) returns a non-nil error and leaves the applied
// state untouched beyond whatever prefix of a multi-block reorg had
// already committed before the failure.
func (o *Orchestrator) ApplyModifier(ctx context.Context, hdr *chain.BlockHeader, payload *chain.BlockPayload) error {
	result := make(chan error, 1)
	cmd := func() { result <- o.applyModifier(hdr, payload) }
	select {
	case o.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) applyModifier(hdr *chain.BlockHeader, payload *chain.BlockPayload) error {
	progress, err := o.history.Append(hdr, payload)
	if err != nil {
		return err
	}
	if len(progress.ToApply) == 0 && len(progress.ToRemoveFromChain) == 0 {
		// Recorded as a side branch; it may become relevant on a future
		// reorg but requires no state change today.
		return nil
	}

	if len(progress.ToRemoveFromChain) > 0 {
		if err := o.state.RollbackTo(progress.BranchPoint); err != nil {
			o.history.MarkInvalid(hdr.ID())
			return err
		}
	}

	for _, blk := range progress.ToApply {
		if _, _, err := o.state.Apply(blk); err != nil {
			o.history.MarkInvalid(blk.Header.ID())
			return err
		}
		o.history.MarkValid(blk.Header.ID())
		o.pool.RemoveAsync(includedTxIds(blk.Payload))
		o.broadcast(blk.Header.ID())
	}
	return nil
}

func includedTxIds(payload *chain.BlockPayload) []chain.ModifierId {
	if payload == nil {
		return nil
	}
	ids := make([]chain.ModifierId, 0, len(payload.Transactions))
	for _, tx := range payload.Transactions {
		if tx.IsCoinbase() {
			continue
		}
		ids = append(ids, tx.ID())
	}
	return ids
}

// SubmitTransaction enqueues tx for mempool admission on the write queue,
// so a transaction can never be admitted mid-modifier-application.
func (o *Orchestrator) SubmitTransaction(ctx context.Context, tx *chain.Transaction) error {
	result := make(chan error, 1)
	cmd := func() {
		height := o.state.Height()
		if height < chain.GenesisHeight {
			height = chain.GenesisHeight
		}
		if err := o.state.Validate(tx, height); err != nil {
			result <- err
			return
		}
		result <- o.pool.Put(tx)
	}
	select {
	case o.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
