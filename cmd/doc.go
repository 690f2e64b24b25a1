// Package cmd implements the command-line interface for inboxglance.
//
// This package provides the following commands:
//   - serve: Start the HTTP backend in accounts or session mode
//   - version: Display version information
//
// Configuration is resolved by viper in this order: command-line flags,
// environment variables (a .env file is loaded first), an optional YAML
// file given with --config, then flag defaults.
package cmd
