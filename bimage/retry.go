package bimage

import "errors"

// ErrAllocationFailed is the sentinel a scratch-buffer allocator returns to
// trigger RetryWithHalvedBatch's retry policy, rather than aborting the
// load outright.
var ErrAllocationFailed = errors.New("bimage: scratch buffer allocation failed")

// RetryWithHalvedBatch implements spec.md §7's resource-exhaustion policy:
// "on allocation failure during bload scratch buffers, the engine halves
// the batch size and retries; the bottom of this loop consults an
// out-of-memory callback." fn is retried with a halved batch size each time
// it returns ErrAllocationFailed; any other error aborts immediately. oom,
// if non-nil, is consulted after each failed attempt and may abort the loop
// early by returning false.
func RetryWithHalvedBatch(initialBatch, maxRetries int, oom func(nextBatch int) bool, fn func(batch int) error) error {
	batch := initialBatch
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn(batch)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrAllocationFailed) {
			return err
		}
		if batch <= 1 {
			return err
		}
		batch /= 2
		if oom != nil && !oom(batch) {
			return err
		}
	}
	return ErrAllocationFailed
}
