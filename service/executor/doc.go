// Package executor runs a single workflow step. It owns timeout enforcement
// and retry with backoff, and dispatches each step variant to the action
// executor port, the approval gate, the condition evaluator or the
// notification sender. Branch dispatch is left to the orchestrator.
package executor
