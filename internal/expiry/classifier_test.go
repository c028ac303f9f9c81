package expiry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	today := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	datePtr := func(daysFromToday int) *time.Time {
		d := today.AddDate(0, 0, daysFromToday)
		return &d
	}

	tests := []struct {
		name     string
		expiry   *time.Time
		expected Risk
	}{
		{"no expiry date", nil, RiskFresh},
		{"far future", datePtr(30), RiskFresh},
		{"just outside warning window", datePtr(8), RiskFresh},
		{"on warning boundary", datePtr(7), RiskWarning},
		{"inside warning window", datePtr(5), RiskWarning},
		{"on critical boundary", datePtr(3), RiskCritical},
		{"inside critical window", datePtr(2), RiskCritical},
		{"expires today", datePtr(0), RiskCritical},
		{"expired yesterday", datePtr(-1), RiskExpired},
		{"long expired", datePtr(-100), RiskExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.expiry, today, 7, 3))
		})
	}
}

func TestClassifyIsDateGranular(t *testing.T) {
	// A batch expiring later today is CRITICAL, not EXPIRED, regardless of
	// the time-of-day components.
	today := time.Date(2025, 6, 15, 23, 59, 0, 0, time.UTC)
	expiry := time.Date(2025, 6, 15, 0, 1, 0, 0, time.UTC)

	assert.Equal(t, RiskCritical, Classify(&expiry, today, 7, 3))
}

func TestDaysUntil(t *testing.T) {
	today := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	_, ok := DaysUntil(nil, today)
	assert.False(t, ok)

	future := today.AddDate(0, 0, 10)
	days, ok := DaysUntil(&future, today)
	assert.True(t, ok)
	assert.Equal(t, 10, days)

	past := today.AddDate(0, 0, -4)
	days, ok = DaysUntil(&past, today)
	assert.True(t, ok)
	assert.Equal(t, -4, days)
}
