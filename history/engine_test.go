package history

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/Bromel777/EncryCore/chain"
	"github.com/Bromel777/EncryCore/crypto"
)

var testVerifier = crypto.StdProvider{}

func minerKey(t *testing.T) (seed [32]byte, pub [32]byte) {
	t.Helper()
	pubKey, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	copy(pub[:], pubKey)
	copy(seed[:], priv.Seed())
	return seed, pub
}

// header builds and signs a header under seed/pub. Height/timestamp follow
// the caller's chosen values; target defaults to chain.MaxTarget so
// PowCheck always passes regardless of hash value.
func header(t *testing.T, seed, pub [32]byte, parent chain.ModifierId, height chain.Height, timestamp uint64, nonce uint64) *chain.BlockHeader {
	t.Helper()
	h := &chain.BlockHeader{
		ParentId:    parent,
		StateRoot:   chain.ADDigest{},
		Timestamp:   timestamp,
		Height:      height,
		Target:      chain.MaxTarget,
		Nonce:       nonce,
		MinerPubKey: pub,
	}
	sig, err := testVerifier.Sign(seed, h.PowMessage())
	if err != nil {
		t.Fatalf("sign header: %v", err)
	}
	h.Signature = sig[:]
	return h
}

func TestAppendGenesisBecomesBest(t *testing.T) {
	e := New(testVerifier, 7_200)
	seed, pub := minerKey(t)
	h0 := header(t, seed, pub, chain.ZeroModifier, 0, 1, 0)
	progress, err := e.Append(h0, &chain.BlockPayload{HeaderId: h0.ID()})
	if err != nil {
		t.Fatalf("append genesis: %v", err)
	}
	if len(progress.ToApply) != 1 || progress.ToApply[0].Header.ID() != h0.ID() {
		t.Fatalf("expected genesis to be the sole block to apply")
	}
	if e.BestId() != h0.ID() {
		t.Fatalf("expected genesis to become best")
	}
	if e.Height() != 0 {
		t.Fatalf("expected height 0, got %d", e.Height())
	}
}

func TestAppendSimpleExtension(t *testing.T) {
	e := New(testVerifier, 7_200)
	seed, pub := minerKey(t)
	h0 := header(t, seed, pub, chain.ZeroModifier, 0, 1, 0)
	if _, err := e.Append(h0, &chain.BlockPayload{HeaderId: h0.ID()}); err != nil {
		t.Fatalf("append genesis: %v", err)
	}
	h1 := header(t, seed, pub, h0.ID(), 1, 2, 0)
	progress, err := e.Append(h1, &chain.BlockPayload{HeaderId: h1.ID()})
	if err != nil {
		t.Fatalf("append h1: %v", err)
	}
	if len(progress.ToRemoveFromChain) != 0 {
		t.Fatalf("simple extension must not remove anything")
	}
	if len(progress.ToApply) != 1 || progress.ToApply[0].Header.ID() != h1.ID() {
		t.Fatalf("expected h1 alone to apply")
	}
	if e.BestId() != h1.ID() {
		t.Fatalf("expected h1 to become best")
	}
}

func TestAppendRejectsUnknownParent(t *testing.T) {
	e := New(testVerifier, 7_200)
	seed, pub := minerKey(t)
	orphan := header(t, seed, pub, chain.ModifierId{1, 2, 3}, 1, 2, 0)
	if _, err := e.Append(orphan, nil); chain.KindOf(err) != chain.NotApplicable {
		t.Fatalf("expected NotApplicable for orphan header, got %v", err)
	}
}

func TestAppendRejectsBadSignature(t *testing.T) {
	e := New(testVerifier, 7_200)
	seed, pub := minerKey(t)
	h0 := header(t, seed, pub, chain.ZeroModifier, 0, 1, 0)
	h0.Signature[0] ^= 0xff
	if _, err := e.Append(h0, nil); chain.KindOf(err) != chain.SemanticInvalid {
		t.Fatalf("expected SemanticInvalid for a forged signature, got %v", err)
	}
}

func TestAppendRejectsNonMonotonicTimestamp(t *testing.T) {
	e := New(testVerifier, 7_200)
	seed, pub := minerKey(t)
	h0 := header(t, seed, pub, chain.ZeroModifier, 0, 100, 0)
	if _, err := e.Append(h0, &chain.BlockPayload{HeaderId: h0.ID()}); err != nil {
		t.Fatalf("append genesis: %v", err)
	}
	h1 := header(t, seed, pub, h0.ID(), 1, 100, 0) // not strictly greater than parent
	if _, err := e.Append(h1, nil); chain.KindOf(err) != chain.SemanticInvalid {
		t.Fatalf("expected SemanticInvalid for a non-increasing timestamp, got %v", err)
	}
}

func TestAppendRejectsFutureTimestampBeyondSkew(t *testing.T) {
	e := New(testVerifier, 60)
	seed, pub := minerKey(t)
	future := uint64(time.Now().Unix()) + 10_000
	h0 := header(t, seed, pub, chain.ZeroModifier, 0, future, 0)
	if _, err := e.Append(h0, nil); chain.KindOf(err) != chain.SemanticInvalid {
		t.Fatalf("expected SemanticInvalid for a timestamp far beyond the allowed skew, got %v", err)
	}
}

func TestAppendRejectsTargetNotMatchingRecomputedDifficulty(t *testing.T) {
	e := New(testVerifier, 7_200)
	seed, pub := minerKey(t)
	h0 := header(t, seed, pub, chain.ZeroModifier, 0, 1, 0)
	if _, err := e.Append(h0, &chain.BlockPayload{HeaderId: h0.ID()}); err != nil {
		t.Fatalf("append genesis: %v", err)
	}
	h1 := header(t, seed, pub, h0.ID(), 1, 2, 0)
	h1.Target[0] = 0x7f // claims a tighter target than the parent-derived expectation
	h1.Signature, _ = func() ([]byte, error) {
		sig, err := testVerifier.Sign(seed, h1.PowMessage())
		return sig[:], err
	}()
	if _, err := e.Append(h1, nil); chain.KindOf(err) != chain.SemanticInvalid {
		t.Fatalf("expected SemanticInvalid for an off-schedule target, got %v", err)
	}
}

func TestReorgSwitchesBestChainAndReportsProgress(t *testing.T) {
	e := New(testVerifier, 7_200)
	seed, pub := minerKey(t)
	h0 := header(t, seed, pub, chain.ZeroModifier, 0, 1, 0)
	if _, err := e.Append(h0, &chain.BlockPayload{HeaderId: h0.ID()}); err != nil {
		t.Fatalf("append genesis: %v", err)
	}

	// A single-block extension of genesis, versus a two-block competing
	// branch of equal per-header target: the longer branch carries
	// strictly more cumulative work and must win the reorg regardless of
	// any hash-dependent tie-breaking.
	hA := header(t, seed, pub, h0.ID(), 1, 2, 1)
	if _, err := e.Append(hA, &chain.BlockPayload{HeaderId: hA.ID()}); err != nil {
		t.Fatalf("append hA: %v", err)
	}

	hB1 := header(t, seed, pub, h0.ID(), 1, 2, 2)
	if _, err := e.Append(hB1, &chain.BlockPayload{HeaderId: hB1.ID()}); err != nil {
		t.Fatalf("append hB1: %v", err)
	}
	if e.BestId() != hA.ID() {
		t.Fatalf("equal-work side branch must not yet dislodge hA")
	}

	hB2 := header(t, seed, pub, hB1.ID(), 2, 3, 0)
	progress, err := e.Append(hB2, &chain.BlockPayload{HeaderId: hB2.ID()})
	if err != nil {
		t.Fatalf("append hB2: %v", err)
	}
	if e.BestId() != hB2.ID() {
		t.Fatalf("expected reorg onto hB2")
	}
	if progress.BranchPoint != h0.ID() {
		t.Fatalf("expected branch point at genesis")
	}
	if len(progress.ToRemoveFromChain) != 1 || progress.ToRemoveFromChain[0].Header.ID() != hA.ID() {
		t.Fatalf("expected hA to be removed")
	}
	if len(progress.ToApply) != 2 || progress.ToApply[0].Header.ID() != hB1.ID() || progress.ToApply[1].Header.ID() != hB2.ID() {
		t.Fatalf("expected [hB1, hB2] to be applied in order")
	}
}

func TestEqualWorkDoesNotOscillate(t *testing.T) {
	e := New(testVerifier, 7_200)
	seed, pub := minerKey(t)
	h0 := header(t, seed, pub, chain.ZeroModifier, 0, 1, 0)
	if _, err := e.Append(h0, &chain.BlockPayload{HeaderId: h0.ID()}); err != nil {
		t.Fatalf("append genesis: %v", err)
	}
	hA := header(t, seed, pub, h0.ID(), 1, 2, 1)
	if _, err := e.Append(hA, &chain.BlockPayload{HeaderId: hA.ID()}); err != nil {
		t.Fatalf("append hA: %v", err)
	}
	hB := header(t, seed, pub, h0.ID(), 1, 2, 2) // same target as hA => same work
	progress, err := e.Append(hB, &chain.BlockPayload{HeaderId: hB.ID()})
	if err != nil {
		t.Fatalf("append hB: %v", err)
	}
	if e.BestId() != hA.ID() {
		t.Fatalf("expected equal-work competitor to not dislodge the incumbent best chain")
	}
	if len(progress.ToApply) != 0 || len(progress.ToRemoveFromChain) != 0 {
		t.Fatalf("expected no progress for a non-overtaking side branch")
	}
}

func TestCompareAndContinuationIds(t *testing.T) {
	e := New(testVerifier, 7_200)
	seed, pub := minerKey(t)
	h0 := header(t, seed, pub, chain.ZeroModifier, 0, 1, 0)
	h1 := header(t, seed, pub, h0.ID(), 1, 2, 0)
	h2 := header(t, seed, pub, h1.ID(), 2, 3, 0)
	h3 := header(t, seed, pub, h2.ID(), 3, 4, 0)
	for _, h := range []*chain.BlockHeader{h0, h1, h2, h3} {
		if _, err := e.Append(h, &chain.BlockPayload{HeaderId: h.ID()}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if c := e.Compare(chain.SyncInfo{LastHeaderIds: []chain.ModifierId{h3.ID()}}); c != chain.Equal {
		t.Fatalf("expected Equal, got %v", c)
	}
	if c := e.Compare(chain.SyncInfo{LastHeaderIds: []chain.ModifierId{h0.ID()}}); c != chain.Younger {
		t.Fatalf("expected Younger for a peer reporting an ancestor tip, got %v", c)
	}
	if c := e.Compare(chain.SyncInfo{LastHeaderIds: []chain.ModifierId{{9, 9, 9}}}); c != chain.Nonsense {
		t.Fatalf("expected Nonsense for a wholly unknown locator, got %v", c)
	}

	// Oldest-first, multi-entry locator: the peer's actual tip is h1
	// (the last entry), with h0 as an earlier checkpoint. We already
	// know h1 and have built two blocks past it, so the peer is Younger
	// — this must resolve off the locator's tail entry, not its head.
	if c := e.Compare(chain.SyncInfo{LastHeaderIds: []chain.ModifierId{h0.ID(), h1.ID()}}); c != chain.Younger {
		t.Fatalf("expected Younger for a multi-entry locator whose tail we've built past, got %v", c)
	}

	ids := e.ContinuationIds(chain.SyncInfo{LastHeaderIds: []chain.ModifierId{h0.ID()}}, 10)
	if len(ids) != 3 || ids[0] != h1.ID() || ids[1] != h2.ID() || ids[2] != h3.ID() {
		t.Fatalf("expected continuation [h1, h2, h3], got %v", ids)
	}

	// The literal oldest-first locator [g, a1] must yield [a2, a3] when
	// capped at size 2 — the shared point is a1 (the locator's tail), not
	// g (its head).
	ids2 := e.ContinuationIds(chain.SyncInfo{LastHeaderIds: []chain.ModifierId{h0.ID(), h1.ID()}}, 2)
	if len(ids2) != 2 || ids2[0] != h2.ID() || ids2[1] != h3.ID() {
		t.Fatalf("expected continuation [h2, h3] for locator [h0, h1] capped at 2, got %v", ids2)
	}
}

func TestIsSemanticallyValidDefaultsAbsentForUnknownId(t *testing.T) {
	e := New(testVerifier, 7_200)
	seed, pub := minerKey(t)
	h0 := header(t, seed, pub, chain.ZeroModifier, 0, 1, 0)
	if _, err := e.Append(h0, &chain.BlockPayload{HeaderId: h0.ID()}); err != nil {
		t.Fatalf("append genesis: %v", err)
	}
	if got := e.IsSemanticallyValid(chain.ModifierId{1}); got != Absent {
		t.Fatalf("expected Absent for unknown id, got %v", got)
	}
	if got := e.IsSemanticallyValid(h0.ID()); got != Unknown {
		t.Fatalf("expected Unknown before any Mark call, got %v", got)
	}
	e.MarkValid(h0.ID())
	if got := e.IsSemanticallyValid(h0.ID()); got != Valid {
		t.Fatalf("expected Valid after MarkValid, got %v", got)
	}
}

func TestTypedLookupDoesNotCrossBuckets(t *testing.T) {
	e := New(testVerifier, 7_200)
	seed, pub := minerKey(t)
	h0 := header(t, seed, pub, chain.ZeroModifier, 0, 1, 0)
	payload := &chain.BlockPayload{HeaderId: h0.ID()}
	if _, err := e.Append(h0, payload); err != nil {
		t.Fatalf("append genesis: %v", err)
	}
	if _, ok := e.PayloadById(h0.ID()); !ok {
		t.Fatalf("expected payload lookup by header id to succeed")
	}
	if _, ok := e.HeaderById(payload.ID()); ok {
		t.Fatalf("expected header lookup by payload id to silently miss")
	}
}
