package marketclock

import (
	"fmt"
	"time"
)

// Venue timezone for NYSE.
const VenueTimezone = "America/New_York"

// Clock decides whether the trading venue is currently open. Pure function
// of time; the time source is injectable so tests never depend on the
// wall clock.
type Clock struct {
	location     *time.Location
	openHour     int
	openMinute   int
	closeHour    int
	closeMinute  int
	graceMinutes int
	now          func() time.Time
}

// New creates a market clock for the venue timezone with the given session
// times. Grace minutes extend the session past the official close so the
// slower refresh tiers can still capture a final quote.
func New(openHour, openMinute, closeHour, closeMinute, graceMinutes int) (*Clock, error) {
	loc, err := time.LoadLocation(VenueTimezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load venue timezone: %w", err)
	}

	return &Clock{
		location:     loc,
		openHour:     openHour,
		openMinute:   openMinute,
		closeHour:    closeHour,
		closeMinute:  closeMinute,
		graceMinutes: graceMinutes,
		now:          time.Now,
	}, nil
}

// SetNowFunc overrides the time source. Intended for tests.
func (c *Clock) SetNowFunc(now func() time.Time) {
	c.now = now
}

// IsOpenNow reports whether the venue is open at the current time.
func (c *Clock) IsOpenNow() bool {
	return c.IsOpen(c.now())
}

// IsOpen reports whether the venue is open at the given instant. The
// instant is converted to venue local time; open means a trading weekday
// within [open, close + grace).
func (c *Clock) IsOpen(t time.Time) bool {
	local := t.In(c.location)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	minuteOfDay := local.Hour()*60 + local.Minute()
	openMinute := c.openHour*60 + c.openMinute
	closeWithGrace := c.closeHour*60 + c.closeMinute + c.graceMinutes

	return minuteOfDay >= openMinute && minuteOfDay < closeWithGrace
}

// NextOpen returns the next session open at or after the given instant.
func (c *Clock) NextOpen(t time.Time) time.Time {
	local := t.In(c.location)
	next := time.Date(local.Year(), local.Month(), local.Day(), c.openHour, c.openMinute, 0, 0, c.location)

	if !local.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// StatusInfo returns a one-line market status summary for logging.
func (c *Clock) StatusInfo() string {
	now := c.now()
	local := now.In(c.location)
	if c.IsOpen(now) {
		return fmt.Sprintf("venue time %s | market OPEN", local.Format("Mon 15:04"))
	}
	return fmt.Sprintf("venue time %s | market CLOSED (next open %s)",
		local.Format("Mon 15:04"), c.NextOpen(now).Format("Mon 15:04"))
}
