package quota

import (
	"fmt"
	"time"

	"github.com/quotagate/quotagate/internal/model"
)

// DateLayout is the calendar-day format stored alongside usage counters.
const DateLayout = "2006-01-02"

// Normalize applies day rollover: a counter from any other day is zero today.
func Normalize(u model.Usage, today string) model.Usage {
	if u.Date == today {
		return u
	}
	return model.Usage{Date: today, Count: 0}
}

// Calendar turns wall-clock time into the usage day.
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

// NewCalendar creates a Calendar for the named IANA zone ("" means UTC).
func NewCalendar(zone string) (*Calendar, error) {
	if zone == "" {
		zone = "UTC"
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load usage timezone %q: %w", zone, err)
	}
	return &Calendar{loc: loc, now: time.Now}, nil
}

// NewFixedCalendar returns a Calendar whose clock is supplied by the caller.
func NewFixedCalendar(now func() time.Time) *Calendar {
	return &Calendar{loc: time.UTC, now: now}
}

// Today returns the current usage day.
func (c *Calendar) Today() string {
	return c.now().In(c.loc).Format(DateLayout)
}

// Now returns the current time from the calendar's clock.
func (c *Calendar) Now() time.Time {
	return c.now()
}
