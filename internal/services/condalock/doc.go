// Package condalock invokes the conda-lock resolver inside the toolchain
// environment to turn descriptions into explicit locks.
package condalock
