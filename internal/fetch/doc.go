// Package fetch downloads pinned helper binaries, refusing anything whose
// archive digest or self-reported version disagrees with the pin.
package fetch
