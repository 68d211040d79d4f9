// Package duration parses and formats the human duration grammar used
// by reminders, timers, and polls.
package duration

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"eve_bot/internal/model"
)

// One or more <integer><unit> pairs. Offsets are summed.
var pairRe = regexp.MustCompile(`(?i)(\d+)\s*([a-z]+)`)

const (
	day  = 24 * time.Hour
	week = 7 * day
	// Calendar units are approximated.
	month = 30 * day
	year  = 365 * day
)

type unitInfo struct {
	d        time.Duration
	singular string
}

var units = map[string]unitInfo{
	"s": {time.Second, "Second"}, "sec": {time.Second, "Second"},
	"second": {time.Second, "Second"}, "seconds": {time.Second, "Second"},
	"m": {time.Minute, "Minute"}, "mn": {time.Minute, "Minute"}, "min": {time.Minute, "Minute"},
	"minute": {time.Minute, "Minute"}, "minutes": {time.Minute, "Minute"},
	"h": {time.Hour, "Hour"}, "hr": {time.Hour, "Hour"}, "hrs": {time.Hour, "Hour"},
	"hour": {time.Hour, "Hour"}, "hours": {time.Hour, "Hour"},
	"d": {day, "Day"}, "day": {day, "Day"}, "days": {day, "Day"},
	"w": {week, "Week"}, "week": {week, "Week"}, "weeks": {week, "Week"},
	"mo": {month, "Month"}, "month": {month, "Month"}, "months": {month, "Month"},
	"y": {year, "Year"}, "yr": {year, "Year"}, "year": {year, "Year"}, "years": {year, "Year"},
}

// Parse converts a duration string like "1h30m" or "2 days" into a
// positive time offset. Returns model.ErrInvalidDuration on malformed
// input, unknown units, or a zero total.
func Parse(s string) (time.Duration, error) {
	matches := pairRe.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("%w: %q", model.ErrInvalidDuration, s)
	}

	var total time.Duration
	for _, m := range matches {
		value, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, fmt.Errorf("%w: %q", model.ErrInvalidDuration, s)
		}
		unit, ok := units[strings.ToLower(m[2])]
		if !ok {
			return 0, fmt.Errorf("%w: unknown unit %q", model.ErrInvalidDuration, m[2])
		}
		total += time.Duration(value) * unit.d
	}

	if total <= 0 {
		return 0, fmt.Errorf("%w: %q", model.ErrInvalidDuration, s)
	}
	return total, nil
}

// Describe renders a parsed duration string in words, e.g.
// "1 Hour 30 Minutes". It follows the same grammar as Parse.
func Describe(s string) (string, error) {
	if _, err := Parse(s); err != nil {
		return "", err
	}

	var parts []string
	for _, m := range pairRe.FindAllStringSubmatch(s, -1) {
		value, _ := strconv.Atoi(m[1])
		unit := units[strings.ToLower(m[2])]
		name := unit.singular
		if value != 1 {
			name += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", value, name))
	}
	return strings.Join(parts, " "), nil
}
