package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const datePattern = `(\d{4}-\d{1,2}-\d{1,2}|\d{1,2}/\d{1,2}/\d{4})`

var (
	dueMarker = regexp.MustCompile(`(?i)\b(?:due|date)\b\s*:?\s*` + datePattern + `\b`)
	bareDate  = regexp.MustCompile(`\b` + datePattern + `\b`)
)

// extractDueDate finds a due date in s, preferring an explicit due/date marker
// over a bare date token. It returns the date as YYYY-MM-DD and s with the
// matched span removed.
func extractDueDate(s string) (string, string, bool) {
	for _, re := range []*regexp.Regexp{dueMarker, bareDate} {
		for _, loc := range re.FindAllStringSubmatchIndex(s, -1) {
			date, ok := NormalizeDate(s[loc[2]:loc[3]])
			if !ok {
				continue
			}
			return date, s[:loc[0]] + " " + s[loc[1]:], true
		}
	}
	return "", s, false
}

// NormalizeDate converts YYYY-MM-DD or D/M/YYYY into YYYY-MM-DD. Dates that do
// not exist on the calendar are rejected.
func NormalizeDate(tok string) (string, bool) {
	var y, m, d string
	switch {
	case strings.Contains(tok, "-"):
		parts := strings.Split(tok, "-")
		if len(parts) != 3 {
			return "", false
		}
		y, m, d = parts[0], parts[1], parts[2]
	case strings.Contains(tok, "/"):
		parts := strings.Split(tok, "/")
		if len(parts) != 3 {
			return "", false
		}
		d, m, y = parts[0], parts[1], parts[2]
	default:
		return "", false
	}
	year, err1 := strconv.Atoi(y)
	month, err2 := strconv.Atoi(m)
	day, err3 := strconv.Atoi(d)
	if err1 != nil || err2 != nil || err3 != nil {
		return "", false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return "", false
	}
	return t.Format(time.DateOnly), true
}
