// Package materialize creates live environment directories from explicit
// locks, including the secondary installer pass, and runs commands inside
// them.
package materialize
