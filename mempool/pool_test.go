package mempool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Bromel777/EncryCore/chain"
)

func spendTx(fee uint64, boxId chain.BoxId) *chain.Transaction {
	return &chain.Transaction{
		Fee:       fee,
		Unlockers: []chain.Unlocker{{BoxId: boxId, Proof: []byte{0x01}}},
		Directives: []chain.Directive{
			{Proposition: chain.HeightProposition{LockHeight: 0}, Amount: 1},
		},
	}
}

func TestPutRejectsCoinbase(t *testing.T) {
	p := New(10, 0)
	cb := &chain.Transaction{Directives: []chain.Directive{{Proposition: chain.HeightProposition{}, Amount: 1}}}
	if err := p.Put(cb); chain.KindOf(err) != chain.Malformed {
		t.Fatalf("expected Malformed for coinbase, got %v", err)
	}
}

func TestPutRejectsBelowFeeFloor(t *testing.T) {
	p := New(10, 100)
	tx := spendTx(50, chain.BoxId{1})
	if err := p.Put(tx); chain.KindOf(err) != chain.SemanticInvalid {
		t.Fatalf("expected SemanticInvalid for underpriced tx, got %v", err)
	}
}

func TestPutRejectsConflictingSpend(t *testing.T) {
	p := New(10, 0)
	box := chain.BoxId{1}
	first := spendTx(10, box)
	if err := p.Put(first); err != nil {
		t.Fatalf("put first: %v", err)
	}
	second := &chain.Transaction{
		Fee:        20,
		Unlockers:  []chain.Unlocker{{BoxId: box, Proof: []byte{0x02}}},
		Directives: []chain.Directive{{Proposition: chain.HeightProposition{}, Amount: 2}},
	}
	if err := p.Put(second); chain.KindOf(err) != chain.SemanticInvalid {
		t.Fatalf("expected SemanticInvalid for conflicting spend, got %v", err)
	}
	if p.Size() != 1 {
		t.Fatalf("expected pool size 1, got %d", p.Size())
	}
}

func TestPutEvictsCheapestWhenFull(t *testing.T) {
	p := New(2, 0)
	low := spendTx(1, chain.BoxId{1})
	high := spendTx(2, chain.BoxId{2})
	require.NoError(t, p.Put(low))
	require.NoError(t, p.Put(high))

	richer := spendTx(100, chain.BoxId{3})
	require.NoError(t, p.Put(richer))
	require.Equal(t, 2, p.Size(), "expected pool to stay bounded at capacity")
	require.False(t, p.Contains(low.ID()), "expected cheapest transaction to have been evicted")
	require.True(t, p.Contains(richer.ID()))
	require.True(t, p.Contains(high.ID()))

	poor := spendTx(1, chain.BoxId{4})
	err := p.Put(poor)
	require.Equal(t, chain.Transient, chain.KindOf(err), "expected Transient rejection for a full pool with no outbid")
}

func TestTakeOrdersByFeeDescending(t *testing.T) {
	p := New(10, 0)
	a := spendTx(5, chain.BoxId{1})
	b := spendTx(50, chain.BoxId{2})
	c := spendTx(25, chain.BoxId{3})
	for _, tx := range []*chain.Transaction{a, b, c} {
		if err := p.Put(tx); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	taken := p.Take(1 << 20)
	if len(taken) != 3 {
		t.Fatalf("expected all 3 transactions, got %d", len(taken))
	}
	if taken[0].Fee != 50 || taken[1].Fee != 25 || taken[2].Fee != 5 {
		t.Fatalf("expected fee-descending order, got fees %d %d %d", taken[0].Fee, taken[1].Fee, taken[2].Fee)
	}
}

func TestTakeBreaksEqualFeeTiesByTimestampAscending(t *testing.T) {
	p := New(10, 0)
	newer := &chain.Transaction{
		Fee:        10,
		Timestamp:  200,
		Unlockers:  []chain.Unlocker{{BoxId: chain.BoxId{1}, Proof: []byte{0x01}}},
		Directives: []chain.Directive{{Proposition: chain.HeightProposition{}, Amount: 1}},
	}
	older := &chain.Transaction{
		Fee:        10,
		Timestamp:  100,
		Unlockers:  []chain.Unlocker{{BoxId: chain.BoxId{2}, Proof: []byte{0x01}}},
		Directives: []chain.Directive{{Proposition: chain.HeightProposition{}, Amount: 1}},
	}
	require.NoError(t, p.Put(newer))
	require.NoError(t, p.Put(older))

	taken := p.Take(1 << 20)
	require.Len(t, taken, 2)
	require.Equal(t, older.ID(), taken[0].ID(), "expected the earlier-timestamped transaction first among equal fees")
	require.Equal(t, newer.ID(), taken[1].ID())
}

func TestTakeRespectsByteBudget(t *testing.T) {
	p := New(10, 0)
	a := spendTx(50, chain.BoxId{1})
	b := spendTx(40, chain.BoxId{2})
	for _, tx := range []*chain.Transaction{a, b} {
		if err := p.Put(tx); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	budget := len(a.Encode())
	taken := p.Take(budget)
	if len(taken) != 1 || taken[0].Fee != 50 {
		t.Fatalf("expected only the single highest-fee transaction to fit, got %d entries", len(taken))
	}
}

func TestRemoveAndRemoveAsync(t *testing.T) {
	p := New(10, 0)
	tx := spendTx(10, chain.BoxId{1})
	if err := p.Put(tx); err != nil {
		t.Fatalf("put: %v", err)
	}
	p.Remove(tx.ID())
	if p.Contains(tx.ID()) {
		t.Fatalf("expected transaction to be removed")
	}

	tx2 := spendTx(10, chain.BoxId{2})
	if err := p.Put(tx2); err != nil {
		t.Fatalf("put: %v", err)
	}
	done := make(chan struct{})
	go func() {
		p.RemoveAsync([]chain.ModifierId{tx2.ID()})
		close(done)
	}()
	<-done
}
