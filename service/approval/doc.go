// Package approval tracks outstanding approval gates. It owns the pending
// approval table, quorum counting and expiry detection; the orchestrator
// applies outcomes to executions under its per execution lock.
package approval
