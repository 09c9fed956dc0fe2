// Package internal contains the core implementation packages for perfguard.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - dom: Document facade over x/net/html with swappable implementations
//   - eventloop: Single-threaded task queue with timers and idle callbacks
//   - platform: Capability interfaces, with simulated and Chrome backends
//   - metrics: LCP, CLS, interaction and long task collection
//   - preload: Idle-time injection of preload hints
//   - optimizer: Image hints, reduced motion, visibility gating, font display
//   - exclusion: Marker-attribute registry for protected components
//   - guard: Mutation guard that records and vetoes protected-zone writes
//   - performance: Monitor entry point and in-process sample store
//   - config, logging, errors: Ambient configuration, logs and error taxonomy
//   - watcher: File system monitoring with debouncing
//
// # Threading
//
// Every DOM access happens on the eventloop goroutine. Platform callbacks are
// posted to the loop; only the guard's record buffer and the sample store are
// shared with other goroutines, and both are mutex protected.
package internal
