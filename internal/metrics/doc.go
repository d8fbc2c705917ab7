// Package metrics owns the Prometheus collectors for batch runs, encoder
// steps and external tool invocations.
//
// Collectors live on a Metrics value with its own registry, so tests and
// one-shot CLI runs never share global state. A nil *Metrics is valid and
// records nothing. Serve exposes the registry over HTTP for watch mode.
package metrics
