// Package services defines the shared error taxonomy and context annotation
// helpers used by every external-tool client and pipeline stage.
package services
