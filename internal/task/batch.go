package task

type BatchOp string

const (
	BatchDelete       BatchOp = "delete"
	BatchMarkComplete BatchOp = "markComplete"
	BatchMarkPending  BatchOp = "markPending"
	BatchExport       BatchOp = "export"
)

func (op BatchOp) Valid() bool {
	switch op {
	case BatchDelete, BatchMarkComplete, BatchMarkPending, BatchExport:
		return true
	}
	return false
}

type BatchResult struct {
	Op       BatchOp `json:"op"`
	Affected int     `json:"affected"`
	Exported []Task  `json:"exported,omitempty"`
}

// ApplyBatch applies op to every task in ids as one collection-wide
// transform with one persistence write. Mutating ops clear the selection;
// export only reads. Ids that do not resolve are skipped.
func (s *Store) ApplyBatch(ids []string, op BatchOp) (BatchResult, error) {
	if !op.Valid() {
		return BatchResult{}, &ValidationError{Field: "op", Reason: "unknown batch operation " + string(op)}
	}
	if len(ids) == 0 {
		return BatchResult{Op: op}, nil
	}
	if op == BatchExport {
		exported := s.Export(ids)
		return BatchResult{Op: op, Affected: len(exported), Exported: exported}, nil
	}

	target := make(map[string]bool, len(ids))
	for _, id := range ids {
		target[id] = true
	}

	res := BatchResult{Op: op}
	err := s.mutate(func(tx *txn) error {
		now := s.clock.Now()
		touched := make([]string, 0, len(target))

		if op == BatchDelete {
			kept := tx.tasks[:0:0]
			for _, t := range tx.tasks {
				if target[t.ID] {
					touched = append(touched, t.ID)
					continue
				}
				kept = append(kept, t)
			}
			tx.tasks = kept
		} else {
			status := StatusCompleted
			if op == BatchMarkPending {
				status = StatusPending
			}
			for i, t := range tx.tasks {
				if !target[t.ID] {
					continue
				}
				t = t.clone()
				t.Status = status
				t.touch(now)
				tx.tasks[i] = t
				touched = append(touched, t.ID)
			}
		}

		res.Affected = len(touched)
		tx.event = Event{Kind: EventBatch, Op: op, IDs: touched}
		tx.clearSelection = true
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}
	return res, nil
}

// ApplyToSelection runs op over the current selection.
func (s *Store) ApplyToSelection(op BatchOp) (BatchResult, error) {
	return s.ApplyBatch(s.Selected(), op)
}
