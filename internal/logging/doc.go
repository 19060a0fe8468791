// Package logging provides slog construction and shared attribute helpers.
// All components log through component loggers created here so field names
// stay consistent between console and JSON output.
package logging
