package rete

// Config tunes the discrimination network's memory sizing and matching
// policy. Following dfa/lazy.Config's documented-defaults style: every
// field states its default and what changing it trades off.
type Config struct {
	// BetaMemoryResizing enables a join's beta memories to grow when their
	// load factor crosses beta.GrowthFactor and shrink back to
	// beta.InitialSize once emptied (spec.md §3.2 invariant 7).
	//
	// Default: true
	BetaMemoryResizing bool

	// InitialBetaHashSize is the bucket count a new join's beta memories
	// start with.
	//
	// Default: 17 (CLIPS's INITIAL_BETA_HASH_SIZE)
	InitialBetaHashSize uint32

	// AlphaMemoryHashSize is the bucket count a new pattern-node-header's
	// alpha memory is allocated with.
	//
	// Default: 167 (CLIPS's SIZE_ALPHA_HASH)
	AlphaMemoryHashSize uint32

	// DelayObjectPatternMatching opens the object-pattern match-action
	// queue's batch window from the moment the environment is created,
	// equivalent to calling SetDelayObjectPatternMatching(true) immediately
	// (spec.md §6).
	//
	// Default: false
	DelayObjectPatternMatching bool

	// MaxBloadRetries is a retry bound for bimage.RetryWithHalvedBatch's
	// resource-exhaustion loop (spec.md §7). Environment.Bload does not call
	// RetryWithHalvedBatch and does not read this field.
	//
	// Default: 10
	MaxBloadRetries int
}

// DefaultConfig returns CLIPS's defaults: beta resizing on, alpha hash size
// 167, beta initial size 17, no object-match delay, 10 bload retries.
func DefaultConfig() Config {
	return Config{
		BetaMemoryResizing:         true,
		InitialBetaHashSize:        17,
		AlphaMemoryHashSize:        167,
		DelayObjectPatternMatching: false,
		MaxBloadRetries:            10,
	}
}
