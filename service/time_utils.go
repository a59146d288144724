package service

import (
	"time"
)

// GetNextResetTime calculates the next daily cap reset after now
func GetNextResetTime(now time.Time, resetHour int) time.Time {
	now = now.UTC()
	resetTime := time.Date(now.Year(), now.Month(), now.Day(), resetHour, 0, 0, 0, time.UTC)

	if !now.Before(resetTime) {
		resetTime = resetTime.AddDate(0, 0, 1)
	}

	return resetTime
}

// GetCurrentPeriodStart calculates when the daily cap period containing now started
func GetCurrentPeriodStart(now time.Time, resetHour int) time.Time {
	now = now.UTC()
	periodStart := time.Date(now.Year(), now.Month(), now.Day(), resetHour, 0, 0, 0, time.UTC)

	if now.Before(periodStart) {
		periodStart = periodStart.AddDate(0, 0, -1)
	}

	return periodStart
}
