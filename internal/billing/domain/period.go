package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Period is a date-based ISO-8601 duration such as "P1M" or "P1Y2M10D".
type Period struct {
	Years  int
	Months int
	Weeks  int
	Days   int
}

// ParsePeriod parses a date-based ISO-8601 period. Components must appear in
// Y, M, W, D order and each at most once. Time components are rejected.
func ParsePeriod(s string) (Period, error) {
	var p Period

	text := strings.ToUpper(strings.TrimSpace(s))
	if len(text) < 3 || text[0] != 'P' {
		return p, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}

	order := "YMWD"
	next := 0
	rest := text[1:]
	for rest != "" {
		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == 0 || i == len(rest) {
			return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
		}
		n, err := strconv.Atoi(rest[:i])
		if err != nil {
			return Period{}, fmt.Errorf("%w: %q: %v", ErrInvalidPeriod, s, err)
		}

		unit := strings.IndexByte(order, rest[i])
		if unit < next {
			return Period{}, fmt.Errorf("%w: %q: unexpected %q", ErrInvalidPeriod, s, rest[i])
		}
		switch order[unit] {
		case 'Y':
			p.Years = n
		case 'M':
			p.Months = n
		case 'W':
			p.Weeks = n
		case 'D':
			p.Days = n
		}
		next = unit + 1
		rest = rest[i+1:]
	}
	return p, nil
}

// TotalDays approximates the period length in days, counting a month as 30
// days and a year as twelve such months. The result is not calendar-accurate.
func (p Period) TotalDays() int64 {
	return int64(p.Years)*12*30 + int64(p.Months)*30 + int64(p.Weeks)*7 + int64(p.Days)
}

// PeriodToDays parses s and returns its approximate length in days.
func PeriodToDays(s string) (int64, error) {
	p, err := ParsePeriod(s)
	if err != nil {
		return 0, err
	}
	return p.TotalDays(), nil
}
