// Package storage is the durable key/value layer behind the task store.
//
// Backends only move bytes; Load and Save handle JSON encoding and the
// fallback-on-absent-or-corrupt contract.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Keys used by the application.
const (
	KeyTasks       = "tasks"
	KeyCategories  = "categories"
	timerKeyPrefix = "timer-"
)

// TimerKey is the per-task key holding timer state.
func TimerKey(taskID string) string {
	return timerKeyPrefix + taskID
}

// Store is a byte-oriented key/value backend.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Close() error
}

var ErrStorage = errors.New("storage failure")

// Error describes a failed read or write of a single key.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() []error { return []error{ErrStorage, e.Err} }

func validKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("empty key")
	}
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return errors.New("key contains path characters")
	}
	return nil
}

// Load returns the value stored under key, or fallback when the key is
// absent. When the backend fails or the payload does not decode, fallback is
// still returned together with a *Error so the caller can report it.
func Load[T any](s Store, key string, fallback T) (T, error) {
	b, ok, err := s.Get(key)
	if err != nil {
		return fallback, &Error{Op: "load", Key: key, Err: err}
	}
	if !ok || len(b) == 0 {
		return fallback, nil
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return fallback, &Error{Op: "decode", Key: key, Err: err}
	}
	return out, nil
}

// Save encodes value as JSON and writes it under key.
func Save(s Store, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return &Error{Op: "encode", Key: key, Err: err}
	}
	if err := s.Put(key, b); err != nil {
		return &Error{Op: "save", Key: key, Err: err}
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func Remove(s Store, key string) error {
	if err := s.Delete(key); err != nil {
		return &Error{Op: "remove", Key: key, Err: err}
	}
	return nil
}
