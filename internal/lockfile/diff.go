package lockfile

import (
	"fmt"
	"sort"

	"github.com/wI2L/jsondiff"

	"github.com/mcpshield/mcpshield/internal/models"
)

// EntryDiff describes how one changed namespace differs between two
// lockfiles, including the raw JSON patch for operator-facing detail.
//
// Grounded on the teacher's internal/differ/engine.go ToolDiff/DiffResult
// shape, generalized from per-tool schema diffs to per-server lockfile
// entry diffs.
type EntryDiff struct {
	Namespace string
	Patches   jsondiff.Patch
	NewHash   string
}

// Result is the outcome of Diff: added and removed namespaces as sets, and
// changed namespaces with their structural patch.
type Result struct {
	Added   []string
	Removed []string
	Changed []EntryDiff
}

// Diff implements spec.md §4.9's static diff(old, new): an entry is
// "changed" when its version differs or its canonical artifact set --
// (kind, url, digest, size) tuples, joined and sorted -- differs.
func Diff(oldLock, newLock models.Lockfile) (Result, error) {
	var result Result

	for namespace := range oldLock.Servers {
		if _, ok := newLock.Servers[namespace]; !ok {
			result.Removed = append(result.Removed, namespace)
		}
	}
	for namespace := range newLock.Servers {
		if _, ok := oldLock.Servers[namespace]; !ok {
			result.Added = append(result.Added, namespace)
		}
	}
	sort.Strings(result.Added)
	sort.Strings(result.Removed)

	var changedNamespaces []string
	for namespace, newEntry := range newLock.Servers {
		oldEntry, ok := oldLock.Servers[namespace]
		if !ok {
			continue
		}
		if entryChanged(oldEntry, newEntry) {
			changedNamespaces = append(changedNamespaces, namespace)
		}
	}
	sort.Strings(changedNamespaces)

	for _, namespace := range changedNamespaces {
		newEntry := newLock.Servers[namespace]
		patches, err := diffEntryJSON(oldLock.Servers[namespace], newEntry)
		if err != nil {
			return Result{}, err
		}
		hash, err := hashJSON(entryToMap(newEntry))
		if err != nil {
			return Result{}, err
		}
		result.Changed = append(result.Changed, EntryDiff{Namespace: namespace, Patches: patches, NewHash: hash})
	}

	return result, nil
}

func entryChanged(a, b models.LockfileEntry) bool {
	if a.Version != b.Version {
		return true
	}
	return canonicalArtifactSet(a.Artifacts) != canonicalArtifactSet(b.Artifacts)
}

// canonicalArtifactSet joins each artifact's (kind, url, digest, size)
// tuple, sorted, per spec.md §4.9's diff rule.
func canonicalArtifactSet(artifacts []models.LockedArtifact) string {
	tuples := make([]string, len(artifacts))
	for i, a := range artifacts {
		tuples[i] = fmt.Sprintf("%s|%s|%s|%d", a.Kind, a.URL, a.Digest, a.Size)
	}
	sort.Strings(tuples)

	joined := ""
	for i, t := range tuples {
		if i > 0 {
			joined += ";"
		}
		joined += t
	}
	return joined
}

// diffEntryJSON computes a structural JSON patch between two lockfile
// entries with github.com/wI2L/jsondiff, mirroring the teacher's
// internal/differ engine's use of jsondiff.CompareJSON on marshaled
// structs.
func diffEntryJSON(a, b models.LockfileEntry) (jsondiff.Patch, error) {
	aCanonical, err := canonicalizeJSON(entryToMap(a))
	if err != nil {
		return nil, err
	}
	bCanonical, err := canonicalizeJSON(entryToMap(b))
	if err != nil {
		return nil, err
	}
	return jsondiff.CompareJSON(aCanonical, bCanonical)
}

func entryToMap(e models.LockfileEntry) map[string]interface{} {
	artifacts := make([]interface{}, len(e.Artifacts))
	for i, a := range e.Artifacts {
		artifacts[i] = map[string]interface{}{
			"kind":   string(a.Kind),
			"url":    a.URL,
			"digest": a.Digest,
			"size":   a.Size,
		}
	}
	return map[string]interface{}{
		"namespace": e.Namespace,
		"version":   e.Version,
		"verified":  e.Verified,
		"artifacts": artifacts,
	}
}
