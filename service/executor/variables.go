package executor

import "github.com/viant/remediator/model/execution"

// Variables returns the condition evaluation scope: the execution context
// plus a "steps" map exposing status, branch and output of recorded results.
func Variables(anExecution *execution.Execution) map[string]interface{} {
	ret := make(map[string]interface{}, len(anExecution.Context)+1)
	for k, v := range anExecution.Context {
		ret[k] = v
	}
	steps := map[string]interface{}{}
	for _, result := range anExecution.StepResults {
		steps[result.StepID] = stepVariables(result)
		for _, child := range result.Children {
			steps[child.StepID] = stepVariables(child)
		}
	}
	if _, ok := ret["steps"]; !ok {
		ret["steps"] = steps
	}
	return ret
}

func stepVariables(result *execution.StepResult) map[string]interface{} {
	output := result.Output
	if output == nil {
		output = map[string]interface{}{}
	}
	return map[string]interface{}{
		"status": string(result.Status),
		"branch": result.Branch,
		"error":  result.Error,
		"output": output,
	}
}
