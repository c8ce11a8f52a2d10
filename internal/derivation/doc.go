// Package derivation answers buildability questions about a single
// derivation as lazily as possible. Cheap store queries (dry-run, log
// lookup) are always preferred over actually realising a path, and every
// realisation attempt is charged against a per-evaluation rebuild budget
// and checked against a rebuild blacklist first.
package derivation
