// Package counter defines the monthly usage counter store. Counters are
// read-then-write with no compare-and-set, so budget enforcement is a soft
// limit; concurrent writers near a boundary may both land.
package counter

import (
	"context"
	"fmt"
	"time"
)

// DefaultTTL keeps stale period counters around long enough for audits
// before the store may reap them.
const DefaultTTL = 400 * 24 * time.Hour

// Store is a string key/value store with per-entry expiry.
type Store interface {
	// Get returns the stored value and whether the key exists and is live.
	Get(ctx context.Context, key string) (string, bool, error)

	// Put stores value under key with the given time-to-live.
	Put(ctx context.Context, key, value string, ttl time.Duration) error
}

// MonthKey returns the {budgetKey}.{YYYY-MM}.acct:{accountId} counter key
// for the month containing now (UTC).
func MonthKey(budgetKey, accountID string, now time.Time) string {
	return fmt.Sprintf("%s.%s.acct:%s", budgetKey, now.UTC().Format("2006-01"), accountID)
}
