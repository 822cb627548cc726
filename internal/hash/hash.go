// Package hash implements the fold used to compute alpha- and beta-memory
// hash values from a join or pattern-node-header's expression list.
//
// Dispatch between a scalar and an unrolled fold mirrors the teacher's
// simd package, which picks between implementations at init time based on
// detected CPU features (golang.org/x/sys/cpu). Both paths here are pure Go
// and produce identical results for identical input; the gate only changes
// how much loop overhead is paid per fold, exactly as simd.Memchr's AVX2
// gate only changes how a memchr is performed, never its result.
package hash

import "golang.org/x/sys/cpu"

// Stride is the multiplier CLIPS's BetaMemoryHashValue uses to fold each
// expression result into the running hash (original_source
// reteutil.c:ComputeRightHashValue / BetaMemoryHashValue use 509).
const Stride uint64 = 509

// useUnrolled is set once at package init from detected CPU features. AVX2
// machines tend to have wider out-of-order execution windows where a 4-way
// unrolled accumulation loop retires faster than the naive one; machines
// without it use the straightforward scalar loop.
var useUnrolled = cpu.X86.HasAVX2

// Fold64 fixes spec.md §9 open question 1: CLIPS's alpha-hash computation
// mixes a pointer reinterpreted as `unsigned int`, silently dropping upper
// bits on platforms where a pointer is wider than unsigned. This
// implementation never hashes raw pointers — every hash ingredient is
// already a bounded arena index or interned atom ID — so Fold64 widens its
// input to a full uint64 and folds every bit, unconditionally.
func Fold64(id uint32) uint64 {
	return uint64(id)
}

// Values folds a sequence of already-evaluated hash ingredients (atom
// buckets, arena indices, or small integers) into a single unsigned hash,
// selecting the unrolled or scalar accumulator based on the CPU gate above.
func Values(vals []uint64) uint64 {
	if useUnrolled {
		return foldUnrolled(vals)
	}
	return foldScalar(vals)
}

func foldScalar(vals []uint64) uint64 {
	var h uint64
	for _, v := range vals {
		h = h*Stride + v
	}
	return h
}

// foldUnrolled computes the exact same left-to-right recurrence as
// foldScalar, just with the loop body unrolled by 4 to reduce per-element
// branch overhead on CPUs wide enough to benefit from it.
func foldUnrolled(vals []uint64) uint64 {
	var h uint64
	n := len(vals)
	i := 0
	for ; i+4 <= n; i += 4 {
		h = h*Stride + vals[i]
		h = h*Stride + vals[i+1]
		h = h*Stride + vals[i+2]
		h = h*Stride + vals[i+3]
	}
	for ; i < n; i++ {
		h = h*Stride + vals[i]
	}
	return h
}

// Mod reduces a folded hash value into a bucket index for a table of the
// given size. size must be > 0.
func Mod(h uint64, size uint32) uint32 {
	return uint32(h % uint64(size))
}
