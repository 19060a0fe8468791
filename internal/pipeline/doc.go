// Package pipeline drives classified inputs through the regeneration chain
// toward a materialized environment, consulting the artifact cache before
// every expensive step and serializing concurrent rebuilds of one artifact
// with advisory file locks.
package pipeline
