// Package scheduler provides a minimal cron/interval scheduler driving the
// bot's periodic jobs (leaderboard post, status rotation, counter refresh).
package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronExpr is a parsed 5-field cron expression (minute, hour, day-of-month,
// month, day-of-week), each field stored as a set bitmask.
type CronExpr struct {
	minute uint64
	hour   uint32
	dom    uint32
	month  uint16
	dow    uint8
}

// ParseCron parses a standard 5-field cron expression.
// Supports: *, */N, N, N-M, N-M/S and comma-separated lists.
func ParseCron(expr string) (*CronExpr, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron: expected 5 fields, got %d", len(fields))
	}

	c := &CronExpr{}
	specs := []struct {
		name string
		min  int
		max  int
		set  func(uint64)
	}{
		{"minute", 0, 59, func(m uint64) { c.minute = m }},
		{"hour", 0, 23, func(m uint64) { c.hour = uint32(m) }},
		{"day-of-month", 1, 31, func(m uint64) { c.dom = uint32(m) }},
		{"month", 1, 12, func(m uint64) { c.month = uint16(m) }},
		{"day-of-week", 0, 7, func(m uint64) {
			if m&(1<<7) != 0 { // 7 is the standard alias for Sunday
				m = (m | 1) &^ (1 << 7)
			}
			c.dow = uint8(m)
		}},
	}
	for i, spec := range specs {
		mask, err := parseField(fields[i], spec.min, spec.max)
		if err != nil {
			return nil, fmt.Errorf("cron: %s: %w", spec.name, err)
		}
		spec.set(mask)
	}
	return c, nil
}

// Matches reports whether t falls within the expression.
func (c *CronExpr) Matches(t time.Time) bool {
	return c.minute&(1<<t.Minute()) != 0 &&
		c.hour&(1<<t.Hour()) != 0 &&
		c.dom&(1<<t.Day()) != 0 &&
		c.month&(1<<int(t.Month())) != 0 &&
		c.dow&(1<<int(t.Weekday())) != 0
}

// parseField parses one cron field into a bitmask over [min, max].
func parseField(field string, min, max int) (uint64, error) {
	var mask uint64
	for _, part := range strings.Split(field, ",") {
		m, err := parsePart(part, min, max)
		if err != nil {
			return 0, err
		}
		mask |= m
	}
	return mask, nil
}

// parsePart parses a single part: *, */N, N, N-M, N-M/S.
func parsePart(part string, min, max int) (uint64, error) {
	lo, hi, step := min, max, 1

	body := part
	if idx := strings.IndexByte(part, '/'); idx >= 0 {
		body = part[:idx]
		s, err := strconv.Atoi(part[idx+1:])
		if err != nil || s <= 0 {
			return 0, fmt.Errorf("invalid step in %q", part)
		}
		step = s
	}

	switch {
	case body == "*":
		// full range
	case strings.Contains(body, "-"):
		bounds := strings.SplitN(body, "-", 2)
		var err error
		if lo, err = strconv.Atoi(bounds[0]); err != nil {
			return 0, fmt.Errorf("invalid range start %q", bounds[0])
		}
		if hi, err = strconv.Atoi(bounds[1]); err != nil {
			return 0, fmt.Errorf("invalid range end %q", bounds[1])
		}
		if lo < min || hi > max || lo > hi {
			return 0, fmt.Errorf("range %d-%d out of bounds [%d,%d]", lo, hi, min, max)
		}
	default:
		val, err := strconv.Atoi(body)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q", body)
		}
		if val < min || val > max {
			return 0, fmt.Errorf("value %d out of bounds [%d,%d]", val, min, max)
		}
		if step != 1 {
			return 0, fmt.Errorf("step not allowed on single value %q", part)
		}
		lo, hi = val, val
	}

	var mask uint64
	for i := lo; i <= hi; i += step {
		mask |= 1 << i
	}
	return mask, nil
}
