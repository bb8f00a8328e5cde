package criteria

import (
	"github.com/viant/remediator/model/execution"
	"github.com/viant/remediator/service/dao"
)

// Match reports whether anExecution satisfies every supplied filter.
// Unknown parameter names are ignored.
func Match(anExecution *execution.Execution, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter == nil {
			continue
		}
		var actual string
		switch parameter.Name {
		case dao.ParamOrganizationID:
			actual = anExecution.OrganizationID
		case dao.ParamStatus:
			actual = string(anExecution.Status)
		case dao.ParamWorkflowID:
			actual = anExecution.WorkflowID
		default:
			continue
		}
		if !anyOf(actual, parameter.Values()) {
			return false
		}
	}
	return true
}

func anyOf(actual string, candidates []string) bool {
	if len(candidates) == 0 {
		return true
	}
	for _, candidate := range candidates {
		if candidate == actual {
			return true
		}
	}
	return false
}
