// Package entitlements maps a tier name to its numeric caps and budgets.
// The matrix is pure data; unknown tiers fall back to the free profile.
package entitlements

const (
	TierFree     = "free"
	TierPro      = "pro"
	TierBusiness = "business"
)

// Limits are the per-tier caps the serving paths consume.
type Limits struct {
	// UploadMaxBytes caps a single upload body.
	UploadMaxBytes int64
	// MonthlyUploadCount and MonthlyUploadBytes are soft monthly budgets.
	MonthlyUploadCount int64
	MonthlyUploadBytes int64
	// L10nVersionsMax bounds retained overlay publish history per key.
	L10nVersionsMax int
}

const mib = int64(1024 * 1024)

var matrix = map[string]Limits{
	TierFree: {
		UploadMaxBytes:     5 * mib,
		MonthlyUploadCount: 5,
		MonthlyUploadBytes: 5 * 5 * mib,
		L10nVersionsMax:    1,
	},
	TierPro: {
		UploadMaxBytes:     25 * mib,
		MonthlyUploadCount: 100,
		MonthlyUploadBytes: 100 * 25 * mib,
		L10nVersionsMax:    10,
	},
	TierBusiness: {
		UploadMaxBytes:     100 * mib,
		MonthlyUploadCount: 1000,
		MonthlyUploadBytes: 1000 * 100 * mib,
		L10nVersionsMax:    50,
	},
}

// ForTier returns the limits for a tier name, falling back to free.
func ForTier(tier string) Limits {
	if l, ok := matrix[tier]; ok {
		return l
	}
	return matrix[TierFree]
}
