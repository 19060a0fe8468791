// Package envspec parses environment description files far enough to name
// the target environment and extract the pip exclusion list. The resolver
// consumes the raw file itself.
package envspec
