// Package cache makes the validity decision for candidate artifacts: valid,
// stale, missing, or foreign. The cache index is implicit in the artifacts
// themselves (a provenance line inside locks; a hash-bearing directory name
// plus success marker for environments), so deciding never runs a tool.
package cache
