package task

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const icsDateLayout = "20060102"

var ErrNoDueDates = errors.New("no tasks with a due date to export")

// BuildCalendarICS renders one all-day VEVENT per task that has a due date.
// Tasks without a due date are skipped; if none remain it returns
// ErrNoDueDates.
func BuildCalendarICS(tasks []Task, now time.Time) (string, error) {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//sm//Task Export//EN",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
	}

	events := 0
	for _, t := range tasks {
		if t.DueDate == nil {
			continue
		}
		due, ok := parseDue(*t.DueDate)
		if !ok {
			continue
		}
		day := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
		end := day.AddDate(0, 0, 1)

		uid := fmt.Sprintf("task-%s@sm", strings.TrimSpace(t.ID))
		if strings.TrimSpace(t.ID) == "" {
			uid = fmt.Sprintf("task-export-%d-%d@sm", now.UnixNano(), events)
		}

		lines = append(lines,
			"BEGIN:VEVENT",
			"UID:"+escapeICSText(uid),
			"DTSTAMP:"+now.UTC().Format("20060102T150405Z"),
			"SUMMARY:"+escapeICSText(strings.TrimSpace(t.Title)),
			"DTSTART;VALUE=DATE:"+day.Format(icsDateLayout),
			"DTEND;VALUE=DATE:"+end.Format(icsDateLayout),
		)
		if desc := strings.TrimSpace(t.Description); desc != "" {
			lines = append(lines, "DESCRIPTION:"+escapeICSText(desc))
		}
		lines = append(lines,
			"CATEGORIES:"+escapeICSText(t.CategoryLabel()),
			"PRIORITY:"+icsPriority(t.Priority),
			"END:VEVENT",
		)
		events++
	}
	if events == 0 {
		return "", ErrNoDueDates
	}

	lines = append(lines, "END:VCALENDAR", "")
	return strings.Join(lines, "\r\n"), nil
}

// icsPriority maps to RFC 5545 PRIORITY (1 highest, 9 lowest).
func icsPriority(p Priority) string {
	switch p {
	case PriorityHigh:
		return "1"
	case PriorityLow:
		return "9"
	}
	return "5"
}

func escapeICSText(s string) string {
	repl := strings.NewReplacer(
		"\\", "\\\\",
		";", "\\;",
		",", "\\,",
		"\r\n", "\\n",
		"\n", "\\n",
		"\r", "\\n",
	)
	return repl.Replace(s)
}
