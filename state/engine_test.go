package state

import (
	"crypto/ed25519"
	"testing"

	"github.com/Bromel777/EncryCore/chain"
	"github.com/Bromel777/EncryCore/crypto"
)

func newKey(t *testing.T) (ed25519.PrivateKey, [32]byte) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var pubArr [32]byte
	copy(pubArr[:], pub)
	return priv, pubArr
}

func sign(t *testing.T, priv ed25519.PrivateKey, msg []byte) []byte {
	t.Helper()
	return ed25519.Sign(priv, msg)
}

func coinbaseTx(t *testing.T, amount uint64, to chain.Proposition) *chain.Transaction {
	t.Helper()
	return &chain.Transaction{
		Directives: []chain.Directive{{Proposition: to, Amount: amount}},
	}
}

func blockWithPayload(t *testing.T, engine *Engine, parent chain.ModifierId, height chain.Height, txs []*chain.Transaction) *chain.Block {
	t.Helper()
	proof, digest, err := engine.ProofsForTransactions(txs, height)
	if err != nil {
		t.Fatalf("proofs for transactions: %v", err)
	}
	payload := &chain.BlockPayload{Transactions: txs}
	txRoot, err := payload.TransactionsRoot()
	if err != nil {
		t.Fatalf("transactions root: %v", err)
	}
	h := &chain.BlockHeader{
		ParentId:         parent,
		StateRoot:        digest,
		ADProofsRoot:     proof.Root(),
		TransactionsRoot: txRoot,
		Timestamp:        uint64(height) + 1,
		Height:           height,
		Target:           chain.MaxTarget,
	}
	payload.HeaderId = h.ID()
	return &chain.Block{Header: h, Payload: payload}
}

func TestApplyGenesisCoinbaseThenSpend(t *testing.T) {
	verifier := crypto.StdProvider{}
	engine, err := New(10, 5, verifier, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	minerPriv, minerPub := newKey(t)
	recvPriv, recvPub := newKey(t)
	_ = recvPriv

	cb := coinbaseTx(t, Subsidy(0), chain.PublicKey25519{PubKey: minerPub})
	block0 := blockWithPayload(t, engine, chain.ZeroModifier, 0, []*chain.Transaction{cb})

	if _, _, err := engine.Apply(block0); err != nil {
		t.Fatalf("apply genesis block: %v", err)
	}
	if engine.Height() != 0 {
		t.Fatalf("expected height 0, got %d", engine.Height())
	}

	coinbaseBoxId := chain.NewBoxId(cb.ID(), 0)
	box, found, err := engine.GetBox(coinbaseBoxId)
	if err != nil || !found {
		t.Fatalf("expected coinbase box to exist: found=%v err=%v", found, err)
	}
	if box.Value() != Subsidy(0) {
		t.Fatalf("unexpected coinbase value: %d", box.Value())
	}

	// Coinbase not yet mature: spending at height 1 (maturity=5) must fail.
	spendMsg := (&chain.Transaction{
		Unlockers:  []chain.Unlocker{{BoxId: coinbaseBoxId}},
		Directives: []chain.Directive{{Proposition: chain.PublicKey25519{PubKey: recvPub}, Amount: Subsidy(0)}},
	}).SignedBytes()
	sig := sign(t, minerPriv, spendMsg)
	spendTx := &chain.Transaction{
		Unlockers:  []chain.Unlocker{{BoxId: coinbaseBoxId, Proof: sig}},
		Directives: []chain.Directive{{Proposition: chain.PublicKey25519{PubKey: recvPub}, Amount: Subsidy(0)}},
	}
	if err := engine.Validate(spendTx, 1); chain.KindOf(err) != chain.StateInvalid {
		t.Fatalf("expected StateInvalid (immature coinbase), got %v", err)
	}

	// At height 5 (maturity reached) the same spend validates.
	if err := engine.Validate(spendTx, 5); err != nil {
		t.Fatalf("expected mature coinbase spend to validate: %v", err)
	}
}

func TestValidateRejectsUnbalancedTransaction(t *testing.T) {
	verifier := crypto.StdProvider{}
	engine, err := New(10, 0, verifier, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	minerPriv, minerPub := newKey(t)
	cb := coinbaseTx(t, Subsidy(0), chain.PublicKey25519{PubKey: minerPub})
	block0 := blockWithPayload(t, engine, chain.ZeroModifier, 0, []*chain.Transaction{cb})
	if _, _, err := engine.Apply(block0); err != nil {
		t.Fatalf("apply genesis: %v", err)
	}

	boxId := chain.NewBoxId(cb.ID(), 0)
	bad := &chain.Transaction{
		Unlockers: []chain.Unlocker{{BoxId: boxId}},
		Directives: []chain.Directive{
			{Proposition: chain.PublicKey25519{PubKey: minerPub}, Amount: Subsidy(0) * 2},
		},
	}
	msg := bad.SignedBytes()
	bad.Unlockers[0].Proof = sign(t, minerPriv, msg)

	if err := engine.Validate(bad, 100); chain.KindOf(err) != chain.SemanticInvalid {
		t.Fatalf("expected SemanticInvalid for unbalanced tx, got %v", err)
	}
}

func TestRollbackToRestoresPriorVersion(t *testing.T) {
	verifier := crypto.StdProvider{}
	engine, err := New(10, 0, verifier, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	_, minerPub := newKey(t)
	cb0 := coinbaseTx(t, Subsidy(0), chain.PublicKey25519{PubKey: minerPub})
	block0 := blockWithPayload(t, engine, chain.ZeroModifier, 0, []*chain.Transaction{cb0})
	v0, _, err := engine.Apply(block0)
	if err != nil {
		t.Fatalf("apply block0: %v", err)
	}

	cb1 := coinbaseTx(t, Subsidy(1), chain.PublicKey25519{PubKey: minerPub})
	block1 := blockWithPayload(t, engine, v0, 1, []*chain.Transaction{cb1})
	v1, _, err := engine.Apply(block1)
	if err != nil {
		t.Fatalf("apply block1: %v", err)
	}
	if engine.BestVersion() != v1 {
		t.Fatalf("expected best version to be v1")
	}

	if err := engine.RollbackTo(v0); err != nil {
		t.Fatalf("rollback to v0: %v", err)
	}
	if engine.BestVersion() != v0 {
		t.Fatalf("expected best version to be v0 after rollback")
	}
	if engine.Height() != 0 {
		t.Fatalf("expected height 0 after rollback, got %d", engine.Height())
	}

	if _, found, _ := engine.GetBox(chain.NewBoxId(cb1.ID(), 0)); found {
		t.Fatalf("box created by rolled-back block1 should no longer exist")
	}
}

func TestRollbackOutsideWindowFails(t *testing.T) {
	verifier := crypto.StdProvider{}
	engine, err := New(1, 0, verifier, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	_, minerPub := newKey(t)

	parent := chain.ZeroModifier
	var versions []chain.VersionTag
	for h := chain.Height(0); h < 3; h++ {
		cb := coinbaseTx(t, Subsidy(h), chain.PublicKey25519{PubKey: minerPub})
		block := blockWithPayload(t, engine, parent, h, []*chain.Transaction{cb})
		v, _, err := engine.Apply(block)
		if err != nil {
			t.Fatalf("apply block at height %d: %v", h, err)
		}
		versions = append(versions, v)
		parent = v
	}

	if err := engine.RollbackTo(versions[0]); chain.KindOf(err) != chain.StateInvalid {
		t.Fatalf("expected StateInvalid rolling back outside the retained window, got %v", err)
	}
}
