package usecase

import "time"

const (
	// BalanceCacheTTL bounds staleness of the redis balance cache. The cache
	// is invalidated on every write anyway; the TTL is a backstop.
	BalanceCacheTTL = 30 * time.Second

	// IdempotencyKeyTTL is how long factory idempotency keys are retained.
	IdempotencyKeyTTL = 24 * time.Hour

	// IdempotencyPendingMarker is stored under an idempotency key while the
	// original request is still in flight. Stores claim keys with it; the
	// factory treats it as "a duplicate arrived before the first finished".
	IdempotencyPendingMarker = "pending"
)
