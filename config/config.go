// Package config holds the node's bootstrap configuration: network
// identity, storage location, peer list, and the tuning knobs the hard
// core (ASE/HE/MP/CMC) exposes. The shape and validation style follow the
// teacher's flat, hand-validated config struct rather than a declarative
// schema library.
package config

import (
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/Bromel777/EncryCore/chain"
)

// Config is the node's full bootstrap configuration.
type Config struct {
	Network  string
	DataDir  string
	BindAddr string
	LogLevel string
	Peers    []string
	MaxPeers int

	// RollbackWindow bounds how many recent state versions the
	// Authenticated State Engine retains for rollback (spec.md §4.1).
	RollbackWindow int
	// MempoolCapacity bounds the number of transactions the Mempool
	// holds at once (spec.md §4.3).
	MempoolCapacity int
	// MinFee is the minimum per-transaction fee the Mempool admits.
	MinFee uint64
	// BlockMaxSize bounds a candidate block's serialized payload size.
	BlockMaxSize int
	// CoinbaseHeightLock is the number of blocks a coinbase output
	// stays immature before it can be spent.
	CoinbaseHeightLock chain.Height
	// NetworkTimeSkew bounds how far into the future a block's
	// timestamp may sit relative to local wall-clock time.
	NetworkTimeSkew int64
	// MiningWorkers is the number of concurrent nonce-search goroutines
	// the Consensus & Mining Coordinator runs per candidate.
	MiningWorkers int
}

// DefaultDataDir returns the node's default on-disk data directory under
// the user's home directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".encrycore")
}

// Default returns a Config with sane devnet defaults.
func Default() Config {
	return Config{
		Network:            "devnet",
		DataDir:            DefaultDataDir(),
		BindAddr:           "127.0.0.1:9020",
		LogLevel:           "info",
		Peers:              nil,
		MaxPeers:           64,
		RollbackWindow:     10,
		MempoolCapacity:    10_000,
		MinFee:             1,
		BlockMaxSize:       2_000_000,
		CoinbaseHeightLock: 100,
		NetworkTimeSkew:    7_200,
		MiningWorkers:      4,
	}
}

// NormalizePeers trims, dedupes, and drops empty peer addresses.
func NormalizePeers(peers []string) []string {
	seen := make(map[string]struct{}, len(peers))
	out := make([]string, 0, len(peers))
	for _, p := range peers {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

var validLogLevels = map[string]struct{}{
	"debug": {}, "info": {}, "warn": {}, "error": {},
}

// Validate checks every field of Config for internal consistency,
// mirroring the teacher's habit of validating configuration eagerly at
// startup rather than failing deep inside a component.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Network) == "" {
		return chain.Newf(chain.Malformed, "config: network must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return chain.Newf(chain.Malformed, "config: data_dir must not be empty")
	}
	if _, _, err := net.SplitHostPort(c.BindAddr); err != nil {
		return chain.Newf(chain.Malformed, "config: invalid bind_addr %q: %v", c.BindAddr, err)
	}
	for _, p := range c.Peers {
		if _, _, err := net.SplitHostPort(p); err != nil {
			return chain.Newf(chain.Malformed, "config: invalid peer address %q: %v", p, err)
		}
	}
	if _, ok := validLogLevels[c.LogLevel]; !ok {
		return chain.Newf(chain.Malformed, "config: invalid log_level %q", c.LogLevel)
	}
	if c.MaxPeers < 1 || c.MaxPeers > 4096 {
		return chain.Newf(chain.Malformed, "config: max_peers out of range [1,4096]: %d", c.MaxPeers)
	}
	if c.RollbackWindow < 1 {
		return chain.Newf(chain.Malformed, "config: rollback_window must be >= 1")
	}
	if c.MempoolCapacity < 1 {
		return chain.Newf(chain.Malformed, "config: mempool_capacity must be >= 1")
	}
	if c.BlockMaxSize < 1 {
		return chain.Newf(chain.Malformed, "config: block_max_size must be >= 1")
	}
	if c.MiningWorkers < 1 {
		return chain.Newf(chain.Malformed, "config: mining_workers must be >= 1")
	}
	return nil
}
