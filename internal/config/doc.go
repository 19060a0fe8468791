// Package config loads and validates the lockstep configuration file and
// derives the cache-root directory layout every other component builds on.
package config
