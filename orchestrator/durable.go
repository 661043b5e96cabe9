package orchestrator

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/kanephamphu/connex-agi/apitypes"
)

// DurableActivities exposes ExecutePlan as a Temporal activity so a plan
// can run under a Temporal workflow. Register with
// w.RegisterActivity(&DurableActivities{Orchestrator: o}).
type DurableActivities struct {
	*Orchestrator
}

// ExecutePlanActivity runs plan to completion and returns its result.
// Heartbeats every 5 seconds while the plan runs, so a lost worker is
// detected by the heartbeat timeout well before the activity's own
// timeout fires.
func (a *DurableActivities) ExecutePlanActivity(ctx context.Context, plan apitypes.Plan) (ExecutionResult, error) {
	done := make(chan struct{})
	result := make(chan ExecutionResult, 1)
	go func() {
		defer close(done)
		result <- a.Orchestrator.ExecutePlan(ctx, plan)
	}()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return <-result, nil
		case <-ticker.C:
			activity.RecordHeartbeat(ctx, "executing")
		case <-ctx.Done():
			return ExecutionResult{}, ctx.Err()
		}
	}
}

// PlanWorkflowParams is the Temporal workflow input.
type PlanWorkflowParams struct {
	Plan          apitypes.Plan
	ActionTimeout time.Duration
}

// PlanWorkflow runs ExecutePlanActivity exactly once: the retry policy
// allows a single attempt, so a plan whose worker is lost is not re-run;
// the 15-second heartbeat timeout fails the activity instead.
// Orchestrator already owns in-place self-correction and replan inside
// the activity.
func PlanWorkflow(ctx workflow.Context, params PlanWorkflowParams) (ExecutionResult, error) {
	timeout := params.ActionTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	ao := workflow.ActivityOptions{
		StartToCloseTimeout:    timeout,
		HeartbeatTimeout:       15 * time.Second,
		ScheduleToCloseTimeout: timeout + 5*time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var activities *DurableActivities
	var result ExecutionResult
	err := workflow.ExecuteActivity(ctx, activities.ExecutePlanActivity, params.Plan).Get(ctx, &result)
	return result, err
}
