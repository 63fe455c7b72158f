// Package timeutil holds the time formatting and bucketing
// helpers shared by the index and query layers.
package timeutil

import (
	"fmt"
	"time"
)

// DisplayLayout is the short local-time layout used in tables.
const DisplayLayout = "2006-01-02 15:04"

// Display renders t in the local zone with DisplayLayout, or ""
// for the zero time.
func Display(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(DisplayLayout)
}

// WeekStart returns midnight of the ISO week's Monday that
// contains t, in t's location.
func WeekStart(t time.Time) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -(weekday - 1))
}

// WeekLabel formats the ISO week containing t, e.g. "2024-W03".
func WeekLabel(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
