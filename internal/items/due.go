package items

import (
	"strings"
	"time"
)

// dueLayouts are the date shapes the model and users tend to produce.
// Relative phrases ("next Friday", "明天") are stored but never parse.
var dueLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/1/2 15:04:05",
	"2006/1/2 15:04",
	"2006/1/2",
	"2006年1月2日 15:04",
	"2006年1月2日",
}

// ParseDue interprets a free-form due date. Dates without a zone are read in loc.
func ParseDue(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range dueLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func dueOf(it Item, loc *time.Location) (time.Time, bool) {
	if it.DueDate == nil {
		return time.Time{}, false
	}
	return ParseDue(*it.DueDate, loc)
}
