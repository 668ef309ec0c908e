// Package lockfile implements the durable store for mcp.lock.json described
// in spec.md §4.9 and §6: canonical read/write, per-server mutation, and
// structural validation and diffing of Lockfile documents.
package lockfile

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/mcpshield/mcpshield/internal/mcperr"
	"github.com/mcpshield/mcpshield/internal/models"
)

// Store wraps the on-disk mcp.lock.json at Path.
type Store struct {
	Path string
}

// New returns a Store rooted at path (typically "mcp.lock.json" in the
// project root).
func New(path string) *Store {
	return &Store{Path: path}
}

// Exists reports whether the lockfile is present on disk.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path)
	return err == nil
}

// Read returns the lockfile at Path, or an empty, current-version Lockfile
// if the file is absent.
func (s *Store) Read() (models.Lockfile, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.Lockfile{
				Version:     models.LockfileCurrentVersion,
				GeneratedAt: time.Time{},
				Servers:     map[string]models.LockfileEntry{},
			}, nil
		}
		return models.Lockfile{}, mcperr.Unexpected(err, "read lockfile %s", s.Path)
	}

	var lock models.Lockfile
	if err := json.Unmarshal(data, &lock); err != nil {
		return models.Lockfile{}, mcperr.User("lockfile %s is not valid JSON: %v", s.Path, err)
	}
	if lock.Servers == nil {
		lock.Servers = map[string]models.LockfileEntry{}
	}
	return lock, nil
}

// Write canonicalizes lock (see canonicalizeLockfile) and durably writes it
// to Path via the atomic temp-file-then-rename protocol.
func (s *Store) Write(lock models.Lockfile) error {
	canonicalizeLockfile(&lock)

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return mcperr.Unexpected(err, "marshal lockfile")
	}
	data = append(data, '\n')

	return writeAtomic(s.Path, data, 0o644)
}

// canonicalizeLockfile applies spec.md §4.9's write-time normalization:
// default version, refreshed generatedAt, and artifacts sorted by
// (kind, url) within each entry. The servers map itself needs no explicit
// sort — encoding/json already emits map[string]T keys in sorted order.
func canonicalizeLockfile(lock *models.Lockfile) {
	if lock.Version == "" {
		lock.Version = models.LockfileCurrentVersion
	}
	lock.GeneratedAt = time.Now().UTC()

	for namespace, entry := range lock.Servers {
		sort.SliceStable(entry.Artifacts, func(i, j int) bool {
			if entry.Artifacts[i].Kind != entry.Artifacts[j].Kind {
				return entry.Artifacts[i].Kind < entry.Artifacts[j].Kind
			}
			return entry.Artifacts[i].URL < entry.Artifacts[j].URL
		})
		lock.Servers[namespace] = entry
	}
}

// AddServer inserts or replaces entry under its namespace and writes the
// lockfile.
func (s *Store) AddServer(entry models.LockfileEntry) error {
	lock, err := s.Read()
	if err != nil {
		return err
	}
	if lock.Servers == nil {
		lock.Servers = map[string]models.LockfileEntry{}
	}
	lock.Servers[entry.Namespace] = entry
	return s.Write(lock)
}

// RemoveServer deletes namespace from the lockfile and writes it. Removing
// an absent namespace is not an error.
func (s *Store) RemoveServer(namespace string) error {
	lock, err := s.Read()
	if err != nil {
		return err
	}
	delete(lock.Servers, namespace)
	return s.Write(lock)
}

// GetServer returns the entry for namespace, if present.
func (s *Store) GetServer(namespace string) (models.LockfileEntry, bool, error) {
	lock, err := s.Read()
	if err != nil {
		return models.LockfileEntry{}, false, err
	}
	entry, ok := lock.Servers[namespace]
	return entry, ok, nil
}
