// Package lockfile models explicit lock files: one package reference per
// line, a pip prefix for secondary-installer entries, and a provenance
// comment carrying the governing input's content hash.
package lockfile
