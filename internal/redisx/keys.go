package redisx

import (
	"fmt"
	"time"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

// idem:order:create:{customer_id}:{idempotency_key} -> order id
func idemKey(customerID, key string) string {
	return fmt.Sprintf("idem:order:create:%s:%s", customerID, key)
}

// order_status:{order_id} -> CachedStatus json
func statusKey(orderID string) string { return "order_status:" + orderID }

// dedup:{service}:{event_id}
func dedupKey(service, eventID string) string { return "dedup:" + service + ":" + eventID }
