// Package toolchain manages the long-lived helper environment hosting the
// resolver and build tools. Invalidation is whole-environment: stale
// toolchains are deleted and recreated, never repaired.
package toolchain
