package client

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newRedialBackoff builds the exponential backoff policy governing
// spec.md §4.3's reconnect loop: "doubling its backoff up to a configured
// ceiling". MaxElapsedTime is left at zero (retry forever) since giving up
// on a connection is the caller's decision, made via Close, not the backoff
// policy's.
func newRedialBackoff(initial, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
