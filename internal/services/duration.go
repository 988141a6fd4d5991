package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DurationKind distinguishes the three shapes a duration token can take.
type DurationKind int

const (
	// DurationRelative shifts the current expiry by Days.
	DurationRelative DurationKind = iota
	// DurationAbsolute sets the expiry to Date.
	DurationAbsolute
	// DurationKick removes the member instead of changing the expiry.
	DurationKick
)

// Months and years are fixed-day approximations, not calendar-aware.
var unitDays = map[byte]int{'d': 1, 'w': 7, 'm': 30, 'y': 365}

// maxOffsetDays bounds relative offsets to a century.
const maxOffsetDays = 100 * 365

var dateLayouts = []string{"02-01-2006", "2006-01-02"}

// Duration is a parsed duration token.
type Duration struct {
	Kind DurationKind
	Days int       // DurationRelative
	Date time.Time // DurationAbsolute, UTC midnight
}

// Days returns a relative duration of n days.
func Days(n int) Duration { return Duration{Kind: DurationRelative, Days: n} }

// ParseDuration parses "<n><unit>", "<n> <unit>", "DD-MM-YYYY", "YYYY-MM-DD" or "kick".
// Units are d, w, m, y. n may carry a sign.
func ParseDuration(text string) (Duration, error) {
	s := strings.ToLower(strings.Join(strings.Fields(text), ""))
	if s == "" {
		return Duration{}, fmt.Errorf("%w: empty", ErrInvalidDuration)
	}
	if s == "kick" {
		return Duration{Kind: DurationKick}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Duration{Kind: DurationAbsolute, Date: t}, nil
		}
	}

	mult, ok := unitDays[s[len(s)-1]]
	if !ok || len(s) < 2 {
		return Duration{}, fmt.Errorf("%w: %q", ErrInvalidDuration, text)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return Duration{}, fmt.Errorf("%w: %q", ErrInvalidDuration, text)
	}
	if n > maxOffsetDays/mult || n < -maxOffsetDays/mult {
		return Duration{}, fmt.Errorf("%w: %q is out of range", ErrInvalidDuration, text)
	}
	return Duration{Kind: DurationRelative, Days: n * mult}, nil
}

// Apply returns the expiry that results from applying d to base.
// Kick leaves base unchanged; callers handle removal.
func (d Duration) Apply(base time.Time) time.Time {
	switch d.Kind {
	case DurationRelative:
		return base.AddDate(0, 0, d.Days)
	case DurationAbsolute:
		return d.Date
	default:
		return base
	}
}

func (d Duration) String() string {
	switch d.Kind {
	case DurationRelative:
		return fmt.Sprintf("%dd", d.Days)
	case DurationAbsolute:
		return d.Date.Format("2006-01-02")
	default:
		return "kick"
	}
}
