// Package processor hosts the workers that advance workflow executions.
// Every worker consumes scheduling jobs from a queue and hands the execution
// to the orchestrator, so executions run concurrently with each other while
// every single execution is still driven by one worker at a time.
package processor
