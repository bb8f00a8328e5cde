package remediator

import (
	"github.com/viant/remediator/runtime/evaluator"
	"github.com/viant/remediator/service/approval"
	"github.com/viant/remediator/service/compiler"
	"github.com/viant/remediator/service/executor"
	"github.com/viant/remediator/service/orchestrator"
	"github.com/viant/remediator/service/rollback"
)

// Engine errors, matched with errors.Is.
var (
	ErrDefinitionNotFound = compiler.ErrDefinitionNotFound
	ErrInvalidDefinition  = compiler.ErrInvalidDefinition
	ErrStepTimeout        = executor.ErrStepTimeout
	ErrActionExecution    = executor.ErrActionExecution
	ErrApprovalRejected   = approval.ErrRejected
	ErrApprovalExpired    = approval.ErrExpired
	ErrApprovalNotFound   = approval.ErrNotFound
	ErrRollbackPartial    = rollback.ErrPartialFailure
	ErrInvalidExpression  = evaluator.ErrInvalidExpression
	ErrExecutionNotFound  = orchestrator.ErrExecutionNotFound
	ErrTerminalExecution  = orchestrator.ErrTerminalExecution
	ErrGlobalTimeout      = orchestrator.ErrGlobalTimeout
	ErrInterrupted        = orchestrator.ErrInterrupted
)
