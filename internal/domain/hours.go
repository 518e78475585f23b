package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TradingHours decides whether a given instant falls inside the exchange
// trading window. Pure logic: no I/O, deterministic given the instant and
// the configured zone.
//
// The zone is a fixed offset. Exchanges with DST ambiguity are out of
// scope; the default target (NSE, IST) never shifts.
type TradingHours struct {
	loc       *time.Location
	openSecs  int // seconds since local midnight, inclusive
	closeSecs int // seconds since local midnight, inclusive
	weekdays  map[time.Weekday]bool
}

// DefaultWeekdays is the Mon-Fri trading week.
var DefaultWeekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
}

// NewTradingHours parses "HH:MM" open/close boundaries. Both boundaries are
// inclusive: the window [09:15:00, 15:30:00] is open at exactly 09:15:00
// and exactly 15:30:00.
func NewTradingHours(open, close string, weekdays []time.Weekday, loc *time.Location) (*TradingHours, error) {
	openSecs, err := parseClock(open)
	if err != nil {
		return nil, fmt.Errorf("invalid open boundary %q: %w", open, err)
	}
	closeSecs, err := parseClock(close)
	if err != nil {
		return nil, fmt.Errorf("invalid close boundary %q: %w", close, err)
	}
	if closeSecs < openSecs {
		return nil, fmt.Errorf("close %q precedes open %q", close, open)
	}
	if len(weekdays) == 0 {
		weekdays = DefaultWeekdays
	}
	days := make(map[time.Weekday]bool, len(weekdays))
	for _, d := range weekdays {
		days[d] = true
	}
	if loc == nil {
		loc = time.UTC
	}
	return &TradingHours{
		loc:       loc,
		openSecs:  openSecs,
		closeSecs: closeSecs,
		weekdays:  days,
	}, nil
}

// IsOpen reports whether now falls on a trading weekday inside the window.
func (h *TradingHours) IsOpen(now time.Time) bool {
	local := now.In(h.loc)
	if !h.weekdays[local.Weekday()] {
		return false
	}
	secs := local.Hour()*3600 + local.Minute()*60 + local.Second()
	return secs >= h.openSecs && secs <= h.closeSecs
}

// Location returns the trading zone the gate evaluates in.
func (h *TradingHours) Location() *time.Location {
	return h.loc
}

func parseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("want HH:MM")
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("bad hour")
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("bad minute")
	}
	return hh*3600 + mm*60, nil
}

// ParseWeekday maps config strings ("mon", "monday") to time.Weekday.
func ParseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sun", "sunday":
		return time.Sunday, nil
	case "mon", "monday":
		return time.Monday, nil
	case "tue", "tuesday":
		return time.Tuesday, nil
	case "wed", "wednesday":
		return time.Wednesday, nil
	case "thu", "thursday":
		return time.Thursday, nil
	case "fri", "friday":
		return time.Friday, nil
	case "sat", "saturday":
		return time.Saturday, nil
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
