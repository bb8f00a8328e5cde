// Package remediator provides a remediation workflow engine for incident
// response.
//
// Playbooks are compiled into immutable workflow definitions whose steps
// perform actions, wait on human approval, branch on conditions, fan out
// in parallel or send notifications. The engine drives every execution
// through its steps, persists a checkpoint after each transition and rolls
// back completed steps in reverse order when a failure asks for it.
//
// The engine is composed of pluggable service layers:
//
//   - compiler     – playbook to definition compilation and validation
//   - orchestrator – execution state machine, registry and persistence
//   - executor     – step execution with timeouts and retries
//   - approval     – quorum based approval gates with expiry
//   - rollback     – compensation of completed steps
//   - processor    – worker pool advancing executions
//   - event        – domain event dispatch to audit, notification and metrics
//
// Hosts typically interact with the engine via the Service façade exposed by
// the root package:
//
//	srv, err := remediator.New(ctx, remediator.DefaultConfig())
//	if err != nil { ... }
//	runtime := srv.Runtime()
//	_ = runtime.Start(ctx)
//	defer runtime.Shutdown(ctx)
//
//	anExecution, err := runtime.StartExecution(ctx, &orchestrator.StartRequest{
//	    WorkflowID:     "credential-leak",
//	    OrganizationID: "acme",
//	    Context:        map[string]interface{}{"severity": "critical"},
//	})
//
// The HTTP API returned by Service.API serves the same operations.
package remediator
