// Package expiry classifies batch expiry dates into risk categories.
package expiry

import "time"

type Risk string

const (
	RiskFresh    Risk = "FRESH"
	RiskWarning  Risk = "WARNING"
	RiskCritical Risk = "CRITICAL"
	RiskExpired  Risk = "EXPIRED"
)

// Classify maps an optional expiry date to a risk category. Comparison is
// date-granular; the check order matters: EXPIRED wins over CRITICAL wins
// over WARNING.
func Classify(expiryDate *time.Time, today time.Time, warningDays, criticalDays int) Risk {
	if expiryDate == nil {
		return RiskFresh // non-perishable
	}

	exp := truncateToDay(*expiryDate)
	day := truncateToDay(today)

	switch {
	case exp.Before(day):
		return RiskExpired
	case !exp.After(day.AddDate(0, 0, criticalDays)):
		return RiskCritical
	case !exp.After(day.AddDate(0, 0, warningDays)):
		return RiskWarning
	default:
		return RiskFresh
	}
}

// DaysUntil returns whole days until expiry, negative if past, and false if
// the batch has no expiry date.
func DaysUntil(expiryDate *time.Time, today time.Time) (int, bool) {
	if expiryDate == nil {
		return 0, false
	}
	exp := truncateToDay(*expiryDate)
	day := truncateToDay(today)
	return int(exp.Sub(day).Hours() / 24), true
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
