// Package models holds the data types shared by every pipeline stage:
// namespaces, packages, artifacts, digests, findings, lockfile entries, and
// policy documents.
package models

import "regexp"

// namespacePattern matches a reverse-DNS namespace: one or more
// lowercase-alphanumeric labels separated by dots, a slash, then a package
// label. Both io.github.<owner>/<name> and custom-domain forms match this
// single pattern; the subtype is derived from the label prefix, not a
// separate grammar.
var namespacePattern = regexp.MustCompile(`^[a-z0-9]+(?:\.[a-z0-9]+)+/[a-z0-9](?:[a-z0-9._-]*[a-z0-9])?$`)

// IsValidNamespace reports whether name has the reverse-DNS/package shape.
func IsValidNamespace(name string) bool {
	return namespacePattern.MatchString(name)
}
