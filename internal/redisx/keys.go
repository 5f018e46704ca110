package redisx

import "time"

const (
	// Checkout idempotency: idem:order:create:{buyer}:{Idempotency-Key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// Cached order status: order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
