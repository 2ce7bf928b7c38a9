package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrustLevelFor_AllProbabilities(t *testing.T) {
	for p := 0; p <= 100; p++ {
		got := TrustLevelFor(p)
		switch {
		case p >= 80:
			assert.Equal(t, TrustHigh, got, "p=%d", p)
		case p >= 60:
			assert.Equal(t, TrustMedium, got, "p=%d", p)
		default:
			assert.Equal(t, TrustLow, got, "p=%d", p)
		}
	}
}

func TestTrustLevelFor_OutOfRange(t *testing.T) {
	assert.Equal(t, TrustLow, TrustLevelFor(-5))
	assert.Equal(t, TrustHigh, TrustLevelFor(140))
}

func TestClampProbability(t *testing.T) {
	assert.Equal(t, 0, ClampProbability(-1))
	assert.Equal(t, 55, ClampProbability(55))
	assert.Equal(t, 100, ClampProbability(101))
}

func TestDiscountCode_SetProbability(t *testing.T) {
	var c DiscountCode
	c.SetProbability(79)
	assert.Equal(t, 79, c.Probability)
	assert.Equal(t, TrustMedium, c.TrustLevel)

	c.SetProbability(150)
	assert.Equal(t, 100, c.Probability)
	assert.Equal(t, TrustHigh, c.TrustLevel)
}

func TestDiscountCode_Expired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)
	tomorrow := now.Add(24 * time.Hour)

	assert.True(t, (&DiscountCode{ValidUntil: &yesterday}).Expired(now))
	assert.False(t, (&DiscountCode{ValidUntil: &tomorrow}).Expired(now))
	assert.False(t, (&DiscountCode{}).Expired(now))
}

func TestTallyReports(t *testing.T) {
	reports := []CodeReport{
		{CodeID: "a", Worked: true},
		{CodeID: "a", Worked: false},
		{CodeID: "a", Worked: true},
		{CodeID: "b", Worked: false},
	}
	tally := TallyReports(reports)
	assert.Equal(t, ReportTally{Worked: 2, Failed: 1}, tally["a"])
	assert.Equal(t, 3, tally["a"].Total())
	assert.Equal(t, ReportTally{Failed: 1}, tally["b"])
}

func TestAlternativeType_Valid(t *testing.T) {
	assert.True(t, AltCashback.Valid())
	assert.True(t, AlternativeType("wait-for-sale").Valid())
	assert.False(t, AlternativeType("coupon").Valid())
}

func TestUserContext_Validate(t *testing.T) {
	assert.NoError(t, UserContext{}.Validate())
	assert.NoError(t, UserContext{CustomerType: "new", ShoppingContext: "app", PriceContext: "sale", IsStudent: true}.Validate())

	err := UserContext{PriceContext: "cheap"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid priceContext "cheap"`)
}
