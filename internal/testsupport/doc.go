// Package testsupport provides shared helpers for package tests: seeded
// configs rooted in per-test temp caches, stubbed external binaries, and
// file fixtures.
package testsupport
