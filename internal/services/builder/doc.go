// Package builder invokes the recipe build helper inside the toolchain
// environment.
package builder
