// Command encryd bootstraps a single node: it loads configuration, opens
// the durable state store, wires the Authenticated State Engine, History
// Engine, Mempool, Consensus & Mining Coordinator, and Node View
// Orchestrator together, then runs until interrupted. Its subcommand
// dispatch (a flag.FlagSet per subcommand, switched on os.Args[1]) follows
// the same flat CLI shape the teacher's node binary used, trimmed down to
// what this node's core actually needs to boot.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/Bromel777/EncryCore/chain"
	"github.com/Bromel777/EncryCore/config"
	"github.com/Bromel777/EncryCore/crypto"
	"github.com/Bromel777/EncryCore/history"
	"github.com/Bromel777/EncryCore/logging"
	"github.com/Bromel777/EncryCore/mempool"
	"github.com/Bromel777/EncryCore/mining"
	"github.com/Bromel777/EncryCore/nodeview"
	"github.com/Bromel777/EncryCore/state"
)

const usage = "usage: encryd <command> [args]\ncommands: version | run --datadir <path> [flags] | keygen --datadir <path>"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	var exitCode int
	switch os.Args[1] {
	case "version":
		fmt.Println("encryd (devnet)")
	case "keygen":
		exitCode = cmdKeygen(os.Args[2:])
	case "run":
		exitCode = cmdRun(os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, "unknown command:", os.Args[1])
		fmt.Fprintln(os.Stderr, usage)
		exitCode = 2
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func cmdKeygen(argv []string) int {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	datadir := fs.String("datadir", config.DefaultDataDir(), "data directory root")
	_ = fs.Parse(argv)

	if err := os.MkdirAll(*datadir, 0o700); err != nil {
		fmt.Fprintln(os.Stderr, "keygen: create datadir:", err)
		return 1
	}
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "keygen:", err)
		return 1
	}
	path := filepath.Join(*datadir, "miner.key")
	if err := os.WriteFile(path, []byte(hex.EncodeToString(priv.Seed())), 0o600); err != nil {
		fmt.Fprintln(os.Stderr, "keygen: write key:", err)
		return 1
	}
	fmt.Printf("wrote %s, miner public key %x\n", path, pub)
	return 0
}

func loadMinerKey(datadir string) (seed, pub [32]byte, err error) {
	raw, err := os.ReadFile(filepath.Join(datadir, "miner.key"))
	if err != nil {
		return seed, pub, chain.Newf(chain.Malformed, "run: no miner key at %s: run `encryd keygen` first", datadir)
	}
	decoded, err := hex.DecodeString(string(raw))
	if err != nil || len(decoded) != 32 {
		return seed, pub, chain.Newf(chain.Malformed, "run: miner.key is not a valid 32-byte hex seed")
	}
	copy(seed[:], decoded)
	priv := ed25519.NewKeyFromSeed(seed[:])
	copy(pub[:], priv.Public().(ed25519.PublicKey))
	return seed, pub, nil
}

func cmdRun(argv []string) int {
	cfg := config.Default()
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.StringVar(&cfg.DataDir, "datadir", cfg.DataDir, "data directory root")
	fs.StringVar(&cfg.BindAddr, "bind-addr", cfg.BindAddr, "local bind address")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug|info|warn|error)")
	fs.IntVar(&cfg.RollbackWindow, "rollback-window", cfg.RollbackWindow, "retained rollback versions")
	fs.IntVar(&cfg.MempoolCapacity, "mempool-capacity", cfg.MempoolCapacity, "mempool transaction capacity")
	fs.Uint64Var(&cfg.MinFee, "min-fee", cfg.MinFee, "minimum mempool admission fee")
	fs.IntVar(&cfg.MiningWorkers, "mining-workers", cfg.MiningWorkers, "concurrent nonce-search workers")
	mine := fs.Bool("mine", false, "run the Consensus & Mining Coordinator's mining loop")
	_ = fs.Parse(argv)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "run:", err)
		return 1
	}

	base, err := logging.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, "run: logger:", err)
		return 1
	}
	defer base.Sync() //nolint:errcheck
	log := logging.Component(base, "encryd")

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		log.Errorw("create datadir", "err", err)
		return 1
	}

	verifier := crypto.StdProvider{}

	store, err := state.OpenStore(filepath.Join(cfg.DataDir, "state.db"))
	if err != nil {
		log.Errorw("open state store", "err", err)
		return 1
	}
	defer store.Close()

	stateEngine, err := state.New(cfg.RollbackWindow, cfg.CoinbaseHeightLock, verifier, store)
	if err != nil {
		log.Errorw("init state engine", "err", err)
		return 1
	}
	historyEngine := history.New(verifier, cfg.NetworkTimeSkew)
	pool := mempool.New(cfg.MempoolCapacity, cfg.MinFee)
	orch := nodeview.New(stateEngine, historyEngine, pool, 256)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go orch.Run(ctx)
	log.Infow("node view orchestrator running", "data_dir", cfg.DataDir, "bind_addr", cfg.BindAddr)

	if *mine {
		seed, pub, err := loadMinerKey(cfg.DataDir)
		if err != nil {
			log.Errorw("load miner key", "err", err)
			return 1
		}
		miningLog := logging.Component(base, "mining")
		coord := mining.New(stateEngine, historyEngine, pool, verifier, seed, pub, cfg.MiningWorkers, cfg.BlockMaxSize, miningLog)
		go runMiningLoop(ctx, log, orch, coord)
	}

	<-ctx.Done()
	log.Infow("shutting down")
	return 0
}

// runMiningLoop repeatedly assembles a candidate on top of the current
// best chain, mines it, and submits it to the Node View Orchestrator's
// write queue, moving on to the next candidate whether or not the
// previous one was accepted (a losing race against a peer's block is not
// an error).
func runMiningLoop(ctx context.Context, log *zap.SugaredLogger, orch *nodeview.Orchestrator, coord *mining.Coordinator) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cand, err := coord.AssembleCandidate()
		if err != nil {
			log.Errorw("assemble candidate", "err", err)
			return
		}
		block, err := coord.Mine(ctx, cand)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Errorw("mine candidate", "err", err)
			continue
		}
		if err := orch.ApplyModifier(ctx, block.Header, block.Payload); err != nil {
			log.Warnw("mined block rejected", "height", block.Header.Height, "err", err)
			continue
		}
		log.Infow("mined block applied", "height", block.Header.Height, "id", block.ID())
	}
}
