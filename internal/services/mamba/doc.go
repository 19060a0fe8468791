// Package mamba wraps the micromamba CLI: environment creation from explicit
// locks or spec lists, and command execution inside a prefix.
package mamba
