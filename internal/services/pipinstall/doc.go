// Package pipinstall runs the secondary installer pass for lock entries the
// primary package manager cannot install.
package pipinstall
