// Package model defines the domain types for the devserve CLI.
//
// This package contains pure data structures with no external dependencies:
// the discovery record that other tooling reads from disk, the lifecycle
// states a server instance moves through, and the exit codes and CLIError
// type used to translate failures into OS process exit statuses.
package model
