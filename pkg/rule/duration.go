package rule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// tokenPattern matches one <number><unit> token in the concatenated duration
// grammar the proxies speak (e.g. "1s500ms", "10ms", "2h"). Ported from the
// original SDK's regex-based parser (assertionchecker._parse_duration).
var tokenPattern = regexp.MustCompile(`(\d*\.?\d*)(h|ms|us|µs|m|s)`)

var unitScale = map[string]time.Duration{
	"h":  time.Hour,
	"m":  time.Minute,
	"s":  time.Second,
	"ms": time.Millisecond,
	"us": time.Microsecond,
	"µs": time.Microsecond,
}

// unitOrder lists the canonical largest-to-smallest unit emission order used
// by FormatDuration.
var unitOrder = []string{"h", "m", "s", "ms", "us"}

// ParseDuration parses the proxy wire grammar: one or more concatenated
// <number><unit> tokens with units h, m, s, ms, us (or µs). An unrecognized
// unit, or a string with no tokens at all, is a hard error.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("rule: empty duration string")
	}

	var total time.Duration
	matches := tokenPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("rule: %q is not a valid duration", s)
	}

	consumed := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if start != consumed {
			return 0, fmt.Errorf("rule: unrecognized characters in duration %q at offset %d", s, consumed)
		}
		numStr := s[m[2]:m[3]]
		unit := s[m[4]:m[5]]

		scale, ok := unitScale[unit]
		if !ok {
			return 0, fmt.Errorf("rule: unknown time unit %q in duration %q", unit, s)
		}

		value, err := strconv.ParseFloat(numStr, 64)
		if err != nil {
			return 0, fmt.Errorf("rule: invalid numeric value %q in duration %q: %w", numStr, s, err)
		}

		total += time.Duration(value * float64(scale))
		consumed = end
	}

	if consumed != len(s) {
		return 0, fmt.Errorf("rule: unrecognized trailing characters in duration %q", s)
	}

	return total, nil
}

// FormatDuration re-emits d as the canonical concatenated token form,
// largest unit first, omitting zero-valued units except for an all-zero
// duration which formats as "0s". time.Duration.String is not used here: it
// renders "1.5s" where the proxy grammar and this package's round-trip
// property require "1s500ms".
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}

	neg := d < 0
	if neg {
		d = -d
	}

	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}

	remaining := d
	for _, unit := range unitOrder {
		scale := unitScale[unit]
		if unit == "us" {
			// microseconds is the smallest unit we emit; flush whatever
			// remains (including fractional nanoseconds would be lossy,
			// but the grammar has no finer unit than us).
			if remaining > 0 {
				fmt.Fprintf(&sb, "%d%s", remaining/scale, unit)
			}
			remaining = 0
			continue
		}
		if remaining >= scale {
			whole := remaining / scale
			fmt.Fprintf(&sb, "%d%s", whole, unit)
			remaining -= whole * scale
		}
	}

	out := sb.String()
	if out == "" || out == "-" {
		return "0s"
	}
	return out
}
