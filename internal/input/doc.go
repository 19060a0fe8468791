// Package input classifies spec files into the closed set of pipeline input
// kinds.
package input
