// Package mining implements the Consensus & Mining Coordinator: assembling
// a candidate block from the current best chain and mempool, then racing a
// worker pool over the nonce space until one of them satisfies the
// candidate's proof-of-work target or the caller cancels the search. The
// worker-pool shape — N goroutines racing a shared cancellation signal,
// first finisher wins — follows the same pattern a miner component uses to
// keep nonce search off of the node's single-writer command loop.
package mining

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Bromel777/EncryCore/chain"
	"github.com/Bromel777/EncryCore/crypto"
	"github.com/Bromel777/EncryCore/history"
	"github.com/Bromel777/EncryCore/mempool"
	"github.com/Bromel777/EncryCore/state"
)

// Candidate is an unsigned, unmined block: every field but Header.Nonce
// and Header.Signature is final, and Payload.HeaderId is left zero until
// a worker's winning nonce fixes the header's identity.
type Candidate struct {
	Header  *chain.BlockHeader
	Payload *chain.BlockPayload
}

// Coordinator is the node's single Consensus & Mining Coordinator
// instance.
type Coordinator struct {
	state    *state.Engine
	history  *history.Engine
	pool     *mempool.Pool
	verifier crypto.Provider

	minerSeed [32]byte
	minerPub  [32]byte

	workers      int
	maxBlockSize int

	log *zap.SugaredLogger
}

// New constructs a Coordinator that mines on behalf of the key derived
// from minerSeed, running workers concurrent nonce-search goroutines per
// candidate. log may be nil, in which case worker activity goes
// unlogged.
func New(st *state.Engine, he *history.Engine, pool *mempool.Pool, verifier crypto.Provider, minerSeed, minerPub [32]byte, workers, maxBlockSize int, log *zap.SugaredLogger) *Coordinator {
	return &Coordinator{
		state:        st,
		history:      he,
		pool:         pool,
		verifier:     verifier,
		minerSeed:    minerSeed,
		minerPub:     minerPub,
		workers:      workers,
		maxBlockSize: maxBlockSize,
		log:          log,
	}
}

// AssembleCandidate builds an unmined block on top of the current best
// chain: it selects the richest conflict-free prefix of the mempool that
// fits the configured block size, mints a coinbase transaction paying
// itself the subsidy plus collected fees, and computes the resulting
// state root and AD proof via the Authenticated State Engine's
// speculative-apply path.
func (c *Coordinator) AssembleCandidate() (*Candidate, error) {
	parentId := c.history.BestId()

	height := chain.GenesisHeight
	target := chain.MaxTarget
	var parentTimestamp uint64

	if !parentId.IsZero() {
		parent, ok := c.history.HeaderById(parentId)
		if !ok {
			return nil, chain.Newf(chain.Fatal, "mining: best header %x missing from history graph", parentId)
		}
		height = parent.Height + 1
		target = parent.Target
		parentTimestamp = parent.Timestamp

		if height > 0 && int64(height)%chain.RetargetWindow == 0 {
			windowStart, ok := c.history.AncestorAtHeight(parentId, height-chain.RetargetWindow)
			if ok {
				newTarget, err := chain.Retarget(parent.Target, windowStart.Timestamp, parent.Timestamp)
				if err != nil {
					return nil, err
				}
				target = newTarget
			}
		}
	}

	txs := c.pool.Take(c.maxBlockSize)
	var fees uint64
	for _, tx := range txs {
		fees += tx.Fee
	}

	coinbase := &chain.Transaction{
		Timestamp: uint64(time.Now().Unix()),
		Directives: []chain.Directive{
			{Proposition: chain.PublicKey25519{PubKey: c.minerPub}, Amount: state.Subsidy(height) + fees},
		},
	}
	allTxs := make([]*chain.Transaction, 0, len(txs)+1)
	allTxs = append(allTxs, txs...)
	allTxs = append(allTxs, coinbase)

	proof, digest, err := c.state.ProofsForTransactions(allTxs, height)
	if err != nil {
		return nil, errors.Wrapf(err, "mining: compute AD proof for height %d", height)
	}

	payload := &chain.BlockPayload{Transactions: allTxs}
	txRoot, err := payload.TransactionsRoot()
	if err != nil {
		return nil, errors.Wrap(err, "mining: compute transactions root")
	}

	timestamp := uint64(time.Now().Unix())
	if timestamp <= parentTimestamp {
		timestamp = parentTimestamp + 1
	}

	header := &chain.BlockHeader{
		ParentId:         parentId,
		StateRoot:        digest,
		ADProofsRoot:     proof.Root(),
		TransactionsRoot: txRoot,
		Timestamp:        timestamp,
		Height:           height,
		Target:           target,
		MinerPubKey:      c.minerPub,
	}

	return &Candidate{Header: header, Payload: payload}, nil
}

// workerResult is what a nonce-search goroutine reports back: either a
// winning nonce or that it gave up because the context was cancelled.
type workerResult struct {
	nonce uint64
	found bool
}

// Mine races workers goroutines over disjoint nonce strides until one
// finds a nonce satisfying the candidate's target, or ctx is cancelled.
// The winning header is signed and the candidate's payload is stamped
// with its final HeaderId before the finished block is returned.
func (c *Coordinator) Mine(ctx context.Context, cand *Candidate) (*chain.Block, error) {
	workers := c.workers
	if workers < 1 {
		workers = 1
	}

	searchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan workerResult, workers)
	var wg sync.WaitGroup

	base := *cand.Header
	for w := 0; w < workers; w++ {
		wg.Add(1)
		workerId := uuid.New()
		go func(start uint64) {
			defer wg.Done()
			c.searchNonce(searchCtx, workerId, base, start, uint64(workers), results)
		}(uint64(w))
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var won workerResult
	for res := range results {
		if res.found {
			won = res
			cancel()
			break
		}
	}
	if !won.found {
		if err := ctx.Err(); err != nil {
			return nil, chain.Newf(chain.Transient, "mining: search cancelled: %v", err)
		}
		return nil, chain.Newf(chain.Transient, "mining: exhausted nonce space without finding a solution")
	}

	header := base
	header.Nonce = won.nonce
	sig, err := c.verifier.Sign(c.minerSeed, header.PowMessage())
	if err != nil {
		return nil, chain.Newf(chain.Fatal, "mining: sign header: %v", err)
	}
	header.Signature = sig[:]

	payload := cand.Payload
	payload.HeaderId = header.ID()

	return &chain.Block{Header: &header, Payload: payload}, nil
}

// searchNonce scans nonces start, start+stride, start+2*stride, ... until
// one satisfies header's target or ctx is done. workerId exists purely to
// give each concurrent search a stable identity for logging.
func (c *Coordinator) searchNonce(ctx context.Context, workerId uuid.UUID, header chain.BlockHeader, start, stride uint64, results chan<- workerResult) {
	nonce := start
	for {
		select {
		case <-ctx.Done():
			results <- workerResult{found: false}
			return
		default:
		}

		header.Nonce = nonce
		if chain.PowCheck(header.PowHash(), header.Target) == nil {
			if c.log != nil {
				c.log.Debugw("nonce search won", "worker", workerId, "nonce", nonce, "height", header.Height)
			}
			results <- workerResult{nonce: nonce, found: true}
			return
		}

		next := nonce + stride
		if next < nonce {
			results <- workerResult{found: false}
			return
		}
		nonce = next
	}
}
