// Package contenthash computes the BLAKE3 digests that identify cached
// artifacts and verify fetched binaries.
package contenthash
