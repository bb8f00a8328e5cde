// Package tracing installs an OpenTelemetry provider and opens engine spans
// tagged with execution and step identifiers.
package tracing
