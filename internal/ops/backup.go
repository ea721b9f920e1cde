package ops

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/Mido1300/sm/internal/storage"
)

const entrySuffix = ".json"

// AppKeys lists the keys that make up the application state: the task
// collection, the category labels and one timer key per stored task.
func AppKeys(kv storage.Store) ([]string, error) {
	keys := []string{storage.KeyTasks, storage.KeyCategories}

	var tasks []struct {
		ID string `json:"id"`
	}
	tasks, err := storage.Load(kv, storage.KeyTasks, tasks)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if strings.TrimSpace(t.ID) != "" {
			keys = append(keys, storage.TimerKey(t.ID))
		}
	}
	return keys, nil
}

// BackupStore writes every present key as <key>.json into a gzipped tar at
// archivePath, the same layout the file backend uses on disk. It returns
// the number of entries written.
func BackupStore(kv storage.Store, keys []string, archivePath string, now time.Time) (int, error) {
	archivePath = filepath.Clean(strings.TrimSpace(archivePath))
	if archivePath == "" || archivePath == "." {
		return 0, fmt.Errorf("archivePath is required")
	}
	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return 0, err
	}

	f, err := os.Create(archivePath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	written := 0
	for _, key := range keys {
		b, ok, err := kv.Get(key)
		if err != nil {
			return written, fmt.Errorf("read %s: %w", key, err)
		}
		if !ok {
			continue
		}
		hdr := &tar.Header{
			Name:     key + entrySuffix,
			Mode:     0o644,
			Size:     int64(len(b)),
			ModTime:  now,
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return written, err
		}
		if _, err := tw.Write(b); err != nil {
			return written, err
		}
		written++
	}

	if err := tw.Close(); err != nil {
		return written, err
	}
	if err := gz.Close(); err != nil {
		return written, err
	}
	return written, f.Close()
}

// RestoreStore loads every <key>.json entry of the archive into kv and
// returns the restored keys. Entries that are not regular JSON files are
// skipped; an unsafe entry name aborts the restore.
//
// An archive that holds the task collection replaces the application state:
// application keys known before or after the restore but absent from the
// archive, such as timers the backup did not hold, are removed.
func RestoreStore(archivePath string, kv storage.Store) ([]string, error) {
	archivePath = filepath.Clean(strings.TrimSpace(archivePath))
	if archivePath == "" || archivePath == "." {
		return nil, fmt.Errorf("archivePath is required")
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	before, err := AppKeys(kv)
	if err != nil {
		before = []string{storage.KeyTasks, storage.KeyCategories}
	}

	var restored []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return restored, err
		}

		name, err := sanitizeArchiveRelPath(hdr.Name)
		if err != nil {
			return restored, err
		}
		if hdr.Typeflag != tar.TypeReg || !strings.HasSuffix(name, entrySuffix) {
			continue
		}
		key := strings.TrimSuffix(path.Base(name), entrySuffix)

		b, err := io.ReadAll(tr)
		if err != nil {
			return restored, err
		}
		if !json.Valid(b) {
			return restored, fmt.Errorf("archive entry %s is not valid JSON", name)
		}
		if err := kv.Put(key, b); err != nil {
			return restored, fmt.Errorf("restore %s: %w", key, err)
		}
		restored = append(restored, key)
	}

	if !slices.Contains(restored, storage.KeyTasks) {
		return restored, nil
	}
	after, err := AppKeys(kv)
	if err != nil {
		return restored, err
	}
	for _, key := range append(before, after...) {
		if slices.Contains(restored, key) {
			continue
		}
		if err := storage.Remove(kv, key); err != nil {
			return restored, fmt.Errorf("prune %s: %w", key, err)
		}
	}
	return restored, nil
}

func sanitizeArchiveRelPath(name string) (string, error) {
	name = path.Clean(strings.TrimSpace(filepath.ToSlash(name)))
	if name == "." || name == "" {
		return "", fmt.Errorf("invalid archive entry path")
	}
	if path.IsAbs(name) {
		return "", fmt.Errorf("invalid absolute archive entry path: %s", name)
	}
	if strings.HasPrefix(name, "../") || name == ".." {
		return "", fmt.Errorf("invalid archive entry path traversal: %s", name)
	}
	return name, nil
}

// StoreDigest hashes the given keys and their values in sorted key order.
// Absent keys contribute nothing, so two stores holding the same state
// produce the same digest.
func StoreDigest(kv storage.Store, keys []string) (string, error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	h := sha256.New()
	for _, key := range sorted {
		b, ok, err := kv.Get(key)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		_, _ = io.WriteString(h, key)
		_, _ = io.WriteString(h, "\n")
		_, _ = h.Write(b)
		_, _ = io.WriteString(h, "\n")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DrillResult reports a backup and restore round trip.
type DrillResult struct {
	Archive string `json:"archive"`
	Entries int    `json:"entries"`
	Digest  string `json:"digest"`
}

// Drill backs kv up to archivePath, restores the archive into scratch and
// checks that both hold identical state.
func Drill(kv, scratch storage.Store, archivePath string, now time.Time) (DrillResult, error) {
	keys, err := AppKeys(kv)
	if err != nil {
		return DrillResult{}, err
	}
	n, err := BackupStore(kv, keys, archivePath, now)
	if err != nil {
		return DrillResult{}, err
	}
	if _, err := RestoreStore(archivePath, scratch); err != nil {
		return DrillResult{}, err
	}

	src, err := StoreDigest(kv, keys)
	if err != nil {
		return DrillResult{}, err
	}
	restored, err := StoreDigest(scratch, keys)
	if err != nil {
		return DrillResult{}, err
	}
	if src != restored {
		return DrillResult{}, fmt.Errorf("digest mismatch after restore: src=%s restored=%s", src, restored)
	}
	return DrillResult{Archive: archivePath, Entries: n, Digest: src}, nil
}
