// Package cmd provides the command-line interface for perfguard.
//
// This package implements all CLI commands using the Cobra framework. Every
// command builds the same pipeline: a parsed page behind a document facade,
// an event loop, a platform (simulated or Chrome) and the performance core.
//
// # Available Commands
//
//   - optimize: Apply loading hints, reduced motion and preloads to an HTML file
//   - trace: Replay protected-zone writes under the mutation guard and report them
//   - replay: Feed recorded performance entries through the metric collector
//   - audit: Collect live metrics from a page in Chrome and optimize a snapshot
//   - watch: Re-run optimize whenever HTML files change
//   - config: Print the effective configuration
//   - version: Show build information
//
// # Command Examples
//
//	// Optimize a page using a measured layout
//	perfguard optimize index.html --layout layout.yml
//
//	// Show what the guard blocks, as an HTML report
//	perfguard trace index.html --format html > report.html
//
//	// Aggregate a recorded entry log
//	perfguard replay entries.yaml --format json
//
//	// Audit a live page with stealth enabled
//	perfguard audit https://example.com --stealth --collect-for 10s
//
// # Configuration
//
// Commands read .perfguard.yml, the file named by --config or
// PERFGUARD_CONFIG_FILE, and PERFGUARD_<SECTION>_<OPTION> environment
// variables. See internal/config for the available sections.
package cmd
