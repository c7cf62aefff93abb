package chain

import (
	"bytes"
	"math/big"
)

// MaxTarget is the loosest difficulty target the node will ever accept
// (all bits set), the devnet ceiling above which WorkFromTarget refuses to
// compute a work value.
var MaxTarget = [32]byte{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

const (
	// TargetBlockIntervalSeconds is the desired average spacing between blocks.
	TargetBlockIntervalSeconds = 120
	// RetargetWindow is the number of blocks a retarget period spans.
	RetargetWindow = 2016
)

// PowCheck reports whether headerHash, read as a big-endian integer, is
// strictly below target — the node's proof-of-work admission rule.
func PowCheck(headerHash [32]byte, target [32]byte) error {
	if bytes.Compare(headerHash[:], target[:]) >= 0 {
		return Newf(SemanticInvalid, "proof of work does not meet target")
	}
	return nil
}

// WorkFromTarget computes floor(2^256 / target), the cumulative-difficulty
// contribution of a single header.
func WorkFromTarget(target [32]byte) (*big.Int, error) {
	t := new(big.Int).SetBytes(target[:])
	if t.Sign() <= 0 {
		return nil, Newf(Malformed, "pow: target is zero")
	}
	limit := new(big.Int).SetBytes(MaxTarget[:])
	if t.Cmp(limit) > 0 {
		return nil, Newf(SemanticInvalid, "pow: target above max_target")
	}
	two256 := new(big.Int).Lsh(big.NewInt(1), 256)
	return new(big.Int).Div(two256, t), nil
}

// ChainWork sums WorkFromTarget over a header chain's targets: the
// cumulative work of that chain, the same quantity the History Engine
// accumulates header by header to rank competing chains.
func ChainWork(targets [][32]byte) (*big.Int, error) {
	total := new(big.Int)
	for _, t := range targets {
		w, err := WorkFromTarget(t)
		if err != nil {
			return nil, err
		}
		total.Add(total, w)
	}
	return total, nil
}

// Retarget computes the next difficulty target from the previous window's
// actual timespan, clamped to [targetOld/4, targetOld*4] so difficulty can
// never move by more than a factor of four in a single retarget period.
func Retarget(targetOld [32]byte, timestampFirst, timestampLast uint64) ([32]byte, error) {
	tOld := new(big.Int).SetBytes(targetOld[:])
	if tOld.Sign() == 0 {
		var zero [32]byte
		return zero, Newf(Malformed, "retarget: target_old is zero")
	}

	var actual uint64
	if timestampLast <= timestampFirst {
		actual = 1
	} else {
		actual = timestampLast - timestampFirst
	}
	expected := uint64(TargetBlockIntervalSeconds) * uint64(RetargetWindow)

	num := new(big.Int).Mul(tOld, new(big.Int).SetUint64(actual))
	den := new(big.Int).SetUint64(expected)
	tNew := new(big.Int).Div(num, den)

	lower := new(big.Int).Rsh(new(big.Int).Set(tOld), 2)
	if lower.Cmp(big.NewInt(1)) < 0 {
		lower.SetInt64(1)
	}
	upper := new(big.Int).Lsh(new(big.Int).Set(tOld), 2)

	if tNew.Cmp(lower) < 0 {
		tNew = lower
	}
	if tNew.Cmp(upper) > 0 {
		tNew = upper
	}
	return bigIntToTarget(tNew)
}

func bigIntToTarget(x *big.Int) ([32]byte, error) {
	var out [32]byte
	if x.Sign() < 0 {
		return out, Newf(Malformed, "pow: negative target")
	}
	b := x.Bytes()
	if len(b) > 32 {
		return out, Newf(SemanticInvalid, "pow: target overflow")
	}
	copy(out[32-len(b):], b)
	return out, nil
}
