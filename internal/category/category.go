// Package category manages the user-defined category labels offered when
// editing tasks. Tasks store free text; these labels are suggestions.
package category

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/Mido1300/sm/internal/storage"
)

const Uncategorized = "Uncategorized"

var (
	ErrEmpty     = errors.New("category name is required")
	ErrDuplicate = errors.New("category already exists")
	ErrNotFound  = errors.New("category not found")
)

// Label is the display label for a raw category value.
func Label(raw string) string {
	if s := strings.TrimSpace(raw); s != "" {
		return s
	}
	return Uncategorized
}

// List is the persisted, ordered set of category labels.
type List struct {
	mu    sync.Mutex
	kv    storage.Store
	items []string
}

// NewList loads labels from kv. A missing or unreadable value starts empty;
// the load error, if any, is returned alongside the usable list.
func NewList(kv storage.Store) (*List, error) {
	items, err := storage.Load(kv, storage.KeyCategories, []string{})
	return &List{kv: kv, items: items}, err
}

func (l *List) All() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.items)
}

func (l *List) Add(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmpty
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if slices.Contains(l.items, name) {
		return ErrDuplicate
	}
	return l.commitLocked(append(slices.Clone(l.items), name))
}

func (l *List) Rename(index int, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmpty
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if index < 0 || index >= len(l.items) {
		return ErrNotFound
	}
	if i := slices.Index(l.items, name); i >= 0 && i != index {
		return ErrDuplicate
	}
	next := slices.Clone(l.items)
	next[index] = name
	return l.commitLocked(next)
}

func (l *List) Remove(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := slices.Index(l.items, name)
	if i < 0 {
		return ErrNotFound
	}
	next := slices.Delete(slices.Clone(l.items), i, i+1)
	return l.commitLocked(next)
}

func (l *List) commitLocked(next []string) error {
	if err := storage.Save(l.kv, storage.KeyCategories, next); err != nil {
		return err
	}
	l.items = next
	return nil
}
