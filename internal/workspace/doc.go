// Package workspace provides scoped staging directories: acquired per stage,
// released on every exit path, and swept when a killed process leaves one
// behind.
package workspace
