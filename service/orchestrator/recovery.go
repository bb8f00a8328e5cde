package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/viant/remediator/internal/clock"
	"github.com/viant/remediator/model/execution"
	"github.com/viant/remediator/service/approval"
	"github.com/viant/remediator/service/dao"
	"go.uber.org/zap"
)

// Recovery summarises a recovery pass.
type Recovery struct {
	// Restored executions wait on a rebuilt approval gate
	Restored int `json:"restored"`
	// Interrupted executions were found mid-step and failed
	Interrupted int `json:"interrupted"`
	// Finalized executions were terminal but not yet recorded
	Finalized int `json:"finalized"`
}

// Recover rebuilds the active registry from checkpoints. Executions waiting
// on approval are re-registered together with their pending gate; executions
// interrupted mid-step are failed, compensating when the definition asks for
// rollback on failure. Expired gates are left for the next sweep.
func (s *Service) Recover(ctx context.Context) (*Recovery, error) {
	checkpoints, err := s.checkpoints.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	ret := &Recovery{}
	for _, anExecution := range checkpoints {
		if anExecution.Definition == nil {
			s.logger.Warn("skipping checkpoint without definition", zap.String("execution_id", anExecution.ID))
			continue
		}
		if s.active.get(anExecution.ID) != nil {
			continue
		}
		switch {
		case anExecution.Status.IsTerminal():
			if _, err := s.records.Load(ctx, anExecution.ID); errors.Is(err, dao.ErrNotFound) {
				if err := s.records.Save(ctx, anExecution); err != nil {
					return ret, fmt.Errorf("failed to save execution record %s: %w", anExecution.ID, err)
				}
			}
			_ = s.checkpoints.Delete(ctx, anExecution.ID)
			ret.Finalized++
		case anExecution.Status == execution.StatusAwaitingApproval:
			e := s.active.put(anExecution)
			pending := approval.PendingFrom(anExecution, anExecution.PendingResult())
			if pending == nil {
				e.mux.Lock()
				s.fail(ctx, e, fmt.Errorf("%w: approval gate state lost", ErrInterrupted), anExecution.Definition.RollbackOnFailure)
				e.mux.Unlock()
				ret.Interrupted++
				continue
			}
			if err := s.gate.Restore(ctx, pending); err != nil {
				return ret, err
			}
			ret.Restored++
		default:
			e := s.active.put(anExecution)
			e.mux.Lock()
			if result := lastRunning(anExecution); result != nil {
				result.Fail(clock.Now(), ErrInterrupted)
			}
			s.fail(ctx, e, ErrInterrupted, anExecution.Definition.RollbackOnFailure)
			e.mux.Unlock()
			ret.Interrupted++
		}
	}
	s.logger.Info("recovery completed",
		zap.Int("restored", ret.Restored),
		zap.Int("interrupted", ret.Interrupted),
		zap.Int("finalized", ret.Finalized))
	return ret, nil
}

func lastRunning(anExecution *execution.Execution) *execution.StepResult {
	if len(anExecution.StepResults) == 0 {
		return nil
	}
	last := anExecution.StepResults[len(anExecution.StepResults)-1]
	if last.Status != execution.StepRunning {
		return nil
	}
	return last
}
