package task

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ImportIssue explains a problem with one input record. An issue without a
// Field rejected the whole record; one with a Field names a value that was
// dropped from a record that was still accepted.
type ImportIssue struct {
	Index  int    `json:"index"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

type ImportResult struct {
	Accepted     []Task        `json:"accepted"`
	SuccessCount int           `json:"successCount"`
	ErrorCount   int           `json:"errorCount"`
	Issues       []ImportIssue `json:"issues,omitempty"`
}

// DecodeImport reads an import payload. Anything other than a JSON array is
// ErrImportFormat; the elements are left for Normalize to judge one by one.
func DecodeImport(r io.Reader) ([]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImportFormat, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after array", ErrImportFormat)
	}
	records, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected an array of tasks", ErrImportFormat)
	}
	return records, nil
}

// Normalize validates loosely-typed records into tasks. Every accepted task
// gets a fresh id from newID; ids present in the input are ignored.
func Normalize(records []any, now time.Time, newID func() string) ImportResult {
	res := ImportResult{Accepted: []Task{}}
	for i, raw := range records {
		t, reason, dropped := normalizeRecord(raw, now, newID)
		if reason != "" {
			res.ErrorCount++
			res.Issues = append(res.Issues, ImportIssue{Index: i, Reason: reason})
			continue
		}
		for _, d := range dropped {
			d.Index = i
			res.Issues = append(res.Issues, d)
		}
		res.Accepted = append(res.Accepted, t)
		res.SuccessCount++
	}
	return res
}

// normalizeRecord rejects a record only when it has no usable title. Other
// invalid values are dropped and reported back.
func normalizeRecord(raw any, now time.Time, newID func() string) (Task, string, []ImportIssue) {
	rec, ok := raw.(map[string]any)
	if !ok {
		return Task{}, "record is not an object", nil
	}
	title, ok := rec["title"].(string)
	if !ok {
		return Task{}, "title missing or not a string", nil
	}
	if strings.TrimSpace(title) == "" {
		return Task{}, "title is empty", nil
	}
	var dropped []ImportIssue

	t := Task{
		ID:          newID(),
		Title:       title,
		Description: stringField(rec, "description"),
		Category:    stringField(rec, "category"),
		Notes:       stringField(rec, "notes"),
		SharedLink:  stringField(rec, "sharedLink"),
		Priority:    normalizePriority(stringField(rec, "priority")),
		Status:      normalizeStatus(stringField(rec, "status")),
		Timer:       intField(rec, "timer"),
	}

	if due := stringField(rec, "dueDate"); due != "" {
		d, err := normalizeDueDate(due)
		if err != nil {
			dropped = append(dropped, ImportIssue{Field: "dueDate", Reason: fmt.Sprintf("dropped %q: not an ISO date or timestamp", due)})
		}
		t.DueDate = d
	}

	subs, skipped := subtaskField(rec)
	if skipped > 0 {
		dropped = append(dropped, ImportIssue{Field: "subtasks", Reason: fmt.Sprintf("dropped %d subtask(s) without a title", skipped)})
	}
	t.Subtasks, _ = normalizeSubtasks(subs, newID)

	t.CreatedAt = timeField(rec, "createdAt", now)
	t.UpdatedAt = timeField(rec, "updatedAt", now)
	if t.UpdatedAt.Before(t.CreatedAt) {
		t.UpdatedAt = t.CreatedAt
	}
	return t, "", dropped
}

func normalizePriority(s string) Priority {
	p := Priority(cases.Title(language.Und).String(strings.TrimSpace(s)))
	if p.Valid() {
		return p
	}
	return PriorityMedium
}

func normalizeStatus(s string) Status {
	st := Status(cases.Lower(language.Und).String(strings.TrimSpace(s)))
	if st.Valid() {
		return st
	}
	return StatusPending
}

func stringField(rec map[string]any, key string) string {
	s, _ := rec[key].(string)
	return s
}

func intField(rec map[string]any, key string) int {
	var f float64
	switch v := rec[key].(type) {
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return 0
		}
		f = n
	case float64:
		f = v
	case int:
		f = float64(v)
	default:
		return 0
	}
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}

func timeField(rec map[string]any, key string, fallback time.Time) time.Time {
	s, ok := rec[key].(string)
	if !ok {
		return fallback
	}
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return ts
}

// subtaskField accepts both {completed} and {isCompleted} spellings. Entries
// that are not objects or have a blank title are skipped and counted.
func subtaskField(rec map[string]any) ([]Subtask, int) {
	list, ok := rec["subtasks"].([]any)
	if !ok {
		return nil, 0
	}
	out := make([]Subtask, 0, len(list))
	skipped := 0
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			skipped++
			continue
		}
		st := Subtask{
			ID:    stringField(m, "id"),
			Title: stringField(m, "title"),
		}
		if strings.TrimSpace(st.Title) == "" {
			skipped++
			continue
		}
		if b, ok := m["completed"].(bool); ok {
			st.Completed = b
		} else if b, ok := m["isCompleted"].(bool); ok {
			st.Completed = b
		}
		out = append(out, st)
	}
	return out, skipped
}

// Import validates records and appends the accepted tasks with a single
// persistence write. Rejected records are counted, never partially applied.
// When nothing is accepted the collection is not written and no event fires.
func (s *Store) Import(records []any) (ImportResult, error) {
	var res ImportResult
	err := s.mutate(func(tx *txn) error {
		taken := make(map[string]bool, len(tx.tasks))
		for _, t := range tx.tasks {
			taken[t.ID] = true
		}
		gen := func() string {
			for {
				id := s.newID()
				if id != "" && !taken[id] {
					taken[id] = true
					return id
				}
			}
		}

		res = Normalize(records, s.clock.Now(), gen)
		if len(res.Accepted) == 0 {
			return errUnchanged
		}
		ids := make([]string, 0, len(res.Accepted))
		for _, t := range res.Accepted {
			ids = append(ids, t.ID)
		}
		tx.tasks = append(tx.tasks, res.Accepted...)
		tx.event = Event{Kind: EventImported, IDs: ids}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}
	res.Accepted = cloneTasks(res.Accepted)
	return res, nil
}

// ImportFrom decodes r and imports it. A malformed payload adds nothing.
func (s *Store) ImportFrom(r io.Reader) (ImportResult, error) {
	records, err := DecodeImport(r)
	if err != nil {
		return ImportResult{}, err
	}
	return s.Import(records)
}

// Export returns full copies of the tasks with the given ids in collection
// order. Unknown ids are ignored.
func (s *Store) Export(ids []string) []Task {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Task, 0, len(ids))
	for _, t := range s.tasks {
		if want[t.ID] {
			out = append(out, t.clone())
		}
	}
	return out
}

// EncodeExport writes tasks as a pretty-printed JSON array.
func EncodeExport(w io.Writer, tasks []Task) error {
	if tasks == nil {
		tasks = []Task{}
	}
	b, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

func ExportFilename(now time.Time) string {
	return "tasks-export-" + now.Format("2006-01-02") + ".json"
}
