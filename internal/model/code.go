package model

import (
	"time"
)

// TrustLevel is the categorical tier derived from a code's probability.
type TrustLevel string

const (
	TrustHigh   TrustLevel = "high"
	TrustMedium TrustLevel = "medium"
	TrustLow    TrustLevel = "low"
)

// Tier thresholds on the 0-100 probability scale.
const (
	HighTrustThreshold   = 80
	MediumTrustThreshold = 60
)

// TrustLevelFor maps a probability to its trust tier. Values outside
// [0,100] are clamped first, so the function is total.
func TrustLevelFor(probability int) TrustLevel {
	p := ClampProbability(probability)
	switch {
	case p >= HighTrustThreshold:
		return TrustHigh
	case p >= MediumTrustThreshold:
		return TrustMedium
	default:
		return TrustLow
	}
}

// ClampProbability bounds p to [0,100].
func ClampProbability(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// DiscountCode is a persisted code belonging to one store.
type DiscountCode struct {
	ID           string     `json:"id"`
	StoreID      string     `json:"store_id"`
	Code         string     `json:"code"`
	Description  string     `json:"description"`
	Savings      string     `json:"savings,omitempty"`
	Probability  int        `json:"probability"`
	TrustLevel   TrustLevel `json:"trust_level"`
	Context      []string   `json:"context"`
	AffiliateURL string     `json:"affiliate_url,omitempty"`
	ValidUntil   *time.Time `json:"valid_until,omitempty"`
	LastVerified time.Time  `json:"last_verified"`
	IsActive     bool       `json:"is_active"`
}

// SetProbability stores p (clamped) and keeps TrustLevel consistent with it.
func (c *DiscountCode) SetProbability(p int) {
	c.Probability = ClampProbability(p)
	c.TrustLevel = TrustLevelFor(c.Probability)
}

// Expired reports whether the code has a validity date strictly before now.
func (c *DiscountCode) Expired(now time.Time) bool {
	return c.ValidUntil != nil && c.ValidUntil.Before(now)
}

// Candidate is an unverified code proposed by the extraction step.
type Candidate struct {
	Code        string   `json:"code"`
	Description string   `json:"description"`
	Probability int      `json:"probability"`
	Context     []string `json:"context"`
	Savings     string   `json:"savings"`
}

// CodeUpdate is a probability change the aggregator applied to one code.
type CodeUpdate struct {
	CodeID         string     `json:"code_id"`
	OldProbability int        `json:"old_probability"`
	NewProbability int        `json:"new_probability"`
	TrustLevel     TrustLevel `json:"trust_level"`
	Worked         int        `json:"worked"`
	Failed         int        `json:"failed"`
	Deactivated    bool       `json:"deactivated"`
	VerifiedAt     time.Time  `json:"verified_at"`
}
