package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = time.Duration(30.44 * float64(day))
	year  = time.Duration(365.25 * float64(day))
)

var unitAliases = map[string]time.Duration{
	"nsec": time.Nanosecond, "ns": time.Nanosecond,
	"usec": time.Microsecond, "us": time.Microsecond, "µs": time.Microsecond,
	"msec": time.Millisecond, "ms": time.Millisecond,
	"seconds": time.Second, "second": time.Second, "sec": time.Second, "s": time.Second,
	"minutes": time.Minute, "minute": time.Minute, "min": time.Minute, "m": time.Minute,
	"hours": time.Hour, "hour": time.Hour, "hr": time.Hour, "h": time.Hour,
	"days": day, "day": day, "d": day,
	"weeks": week, "week": week, "w": week,
	"months": month, "month": month, "M": month,
	"years": year, "year": year, "y": year,
}

// ParseDuration parses a human readable duration.
//
// Anything time.ParseDuration accepts is accepted. In addition a bare integer
// is read as seconds ("10"), and composed forms may use long unit names,
// decimal fractions and spaces between components ("1h20min3s", "2 days 4h",
// "1.5 hours").
func ParseDuration(value string) (time.Duration, error) {
	text := strings.TrimSpace(value)
	if text == "" {
		return 0, errors.New("empty duration")
	}
	if d, err := time.ParseDuration(text); err == nil {
		return d, nil
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		if n > math.MaxInt64/int64(time.Second) || n < math.MinInt64/int64(time.Second) {
			return 0, fmt.Errorf("invalid duration %q: out of range", value)
		}
		return time.Duration(n) * time.Second, nil
	}

	var total time.Duration
	rest := text
	for rest != "" {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		if rest == "" {
			break
		}
		digits := strings.IndexFunc(rest, func(r rune) bool { return (r < '0' || r > '9') && r != '.' })
		if digits == 0 {
			return 0, fmt.Errorf("invalid duration %q: expected number at %q", value, rest)
		}
		if digits < 0 {
			return 0, fmt.Errorf("invalid duration %q: missing unit after %q", value, rest)
		}
		number := rest[:digits]
		whole, frac, fractional := strings.Cut(number, ".")
		if strings.Contains(frac, ".") || (whole == "" && frac == "") {
			return 0, fmt.Errorf("invalid duration %q: malformed number %q", value, number)
		}
		var n int64
		if whole != "" {
			var err error
			n, err = strconv.ParseInt(whole, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q: %w", value, err)
			}
		}
		rest = strings.TrimLeftFunc(rest[digits:], unicode.IsSpace)

		end := strings.IndexFunc(rest, func(r rune) bool { return unicode.IsDigit(r) || unicode.IsSpace(r) || r == '.' })
		if end < 0 {
			end = len(rest)
		}
		unitName := rest[:end]
		rest = rest[end:]
		if unitName == "" {
			return 0, fmt.Errorf("invalid duration %q: missing unit after %s", value, number)
		}
		unit, ok := unitAliases[unitName]
		if !ok {
			unit, ok = unitAliases[strings.ToLower(unitName)]
		}
		if !ok {
			return 0, fmt.Errorf("invalid duration %q: unknown unit %q", value, unitName)
		}
		if n > int64(math.MaxInt64/unit) {
			return 0, fmt.Errorf("invalid duration %q: out of range", value)
		}
		part := time.Duration(n) * unit
		if fractional && frac != "" {
			f, err := strconv.ParseFloat("0."+frac, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q: %w", value, err)
			}
			extra := time.Duration(f * float64(unit))
			if part > math.MaxInt64-extra {
				return 0, fmt.Errorf("invalid duration %q: out of range", value)
			}
			part += extra
		}
		if total > math.MaxInt64-part {
			return 0, fmt.Errorf("invalid duration %q: out of range", value)
		}
		total += part
	}
	return total, nil
}

// ParseInterval parses a supervision interval. It accepts the forms of
// ParseDuration and rejects zero and negative values.
func ParseInterval(value string) (time.Duration, error) {
	d, err := ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}
