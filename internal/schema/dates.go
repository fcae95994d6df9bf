package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Date parsing accepts explicit forms (ISO or slash separated, full or
// partial) and a fixed vocabulary of relative English phrases resolved
// against the context's "now". Every accepted input maps to a period: a
// full date is a one-day period, "2012-09" the whole of September, "2012"
// the whole year. Date attributes take the period's first day; date-range
// attributes expand to the period's natural bounds.

var (
	reFullDate  = regexp.MustCompile(`^(\d{4})[-/](\d{1,2})[-/](\d{1,2})$`)
	reYearMonth = regexp.MustCompile(`^(\d{4})[-/](\d{1,2})$`)
	reYear      = regexp.MustCompile(`^(\d{4})$`)
	reAgo       = regexp.MustCompile(`^(\d+) (day|week|month|year)s? ago$`)
)

// period is a closed interval of calendar days.
type period struct {
	start time.Time
	end   time.Time
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func singleDay(t time.Time) period {
	d := day(t.Year(), t.Month(), t.Day())
	return period{start: d, end: d}
}

func wholeMonth(y int, m time.Month) period {
	start := day(y, m, 1)
	return period{start: start, end: start.AddDate(0, 1, -1)}
}

func wholeYear(y int) period {
	return period{start: day(y, time.January, 1), end: day(y, time.December, 31)}
}

// wholeWeek returns the Monday-through-Sunday week containing t.
func wholeWeek(t time.Time) period {
	offset := (int(t.Weekday()) + 6) % 7 // Monday = 0
	start := day(t.Year(), t.Month(), t.Day()).AddDate(0, 0, -offset)
	return period{start: start, end: start.AddDate(0, 0, 6)}
}

// parsePeriod parses one date expression into its period.
func parsePeriod(raw string, now time.Time) (period, error) {
	s := strings.TrimSpace(raw)

	if m := reFullDate.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if mo < 1 || mo > 12 {
			return period{}, fmt.Errorf("month out of range in %q", raw)
		}
		if d < 1 || d > daysIn(y, time.Month(mo)) {
			return period{}, fmt.Errorf("day out of range in %q", raw)
		}
		return singleDay(day(y, time.Month(mo), d)), nil
	}

	if m := reYearMonth.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		if mo < 1 || mo > 12 {
			return period{}, fmt.Errorf("month out of range in %q", raw)
		}
		return wholeMonth(y, time.Month(mo)), nil
	}

	if m := reYear.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		return wholeYear(y), nil
	}

	return parseRelative(strings.ToLower(s), now)
}

func parseRelative(s string, now time.Time) (period, error) {
	switch s {
	case "today":
		return singleDay(now), nil
	case "yesterday":
		return singleDay(now.AddDate(0, 0, -1)), nil
	case "this week":
		return wholeWeek(now), nil
	case "last week":
		return wholeWeek(now.AddDate(0, 0, -7)), nil
	case "this month":
		return wholeMonth(now.Year(), now.Month()), nil
	case "last month":
		y, m := prevMonth(now.Year(), now.Month())
		return wholeMonth(y, m), nil
	case "this year":
		return wholeYear(now.Year()), nil
	case "last year":
		return wholeYear(now.Year() - 1), nil
	}

	if m := reAgo.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "day":
			return singleDay(now.AddDate(0, 0, -n)), nil
		case "week":
			return wholeWeek(now.AddDate(0, 0, -7*n)), nil
		case "month":
			y, mo := now.Year(), now.Month()
			for i := 0; i < n; i++ {
				y, mo = prevMonth(y, mo)
			}
			return wholeMonth(y, mo), nil
		case "year":
			return wholeYear(now.Year() - n), nil
		}
	}

	return period{}, fmt.Errorf("unrecognized date %q", s)
}

func prevMonth(y int, m time.Month) (int, time.Month) {
	if m == time.January {
		return y - 1, time.December
	}
	return y, m - 1
}

func daysIn(y int, m time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

const dateLayout = "2006-01-02"

func formatDay(t time.Time) string {
	return t.Format(dateLayout)
}
