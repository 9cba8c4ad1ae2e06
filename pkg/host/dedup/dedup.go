// Package dedup tracks build idempotency tokens on the host side.
//
// A retried build-to-asset request carries the token of its first attempt.
// The host consults the store before creating the asset: a known token
// means the first attempt already succeeded, so the host returns the
// recorded asset location instead of failing with a storage conflict.
package dedup

import (
	"context"
	"time"
)

// Store maps idempotency tokens to the asset location their build produced.
type Store interface {
	// Lookup returns the location recorded for token, or found=false.
	Lookup(ctx context.Context, token string) (location string, found bool, err error)

	// Remember records the location a token's build produced. Entries
	// expire after ttl; a zero ttl means no expiry.
	Remember(ctx context.Context, token, location string, ttl time.Duration) error

	// Close releases backend resources.
	Close(ctx context.Context) error
}
