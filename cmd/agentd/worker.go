package main

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"

	"github.com/kanephamphu/connex-agi/orchestrator"
)

// durableTaskQueue is the Temporal task queue a plan is dispatched to
// and the worker below polls. Kept as a constant so a caller driving
// PlanWorkflow through client.ExecuteWorkflow agrees with the worker
// on where to find it.
const durableTaskQueue = "connex-agi-plans"

// runDurableWorker connects to Temporal and polls durableTaskQueue for
// PlanWorkflow executions, giving orchestrator.DurableActivities a real
// entry point: a plan submitted here survives this process's own
// restart, unlike Facade.Execute's in-process run. It is opt-in via
// AGENTD_TEMPORAL_HOST_PORT — most deployments run the orchestrator
// in-process only and never start this worker.
func runDurableWorker(ctx context.Context, orch *orchestrator.Orchestrator, hostPort string) error {
	tracingInterceptor, err := opentelemetry.NewTracingInterceptor(opentelemetry.TracerOptions{})
	if err != nil {
		return fmt.Errorf("temporal tracing interceptor: %w", err)
	}

	c, err := client.Dial(client.Options{
		HostPort:     hostPort,
		Interceptors: []interceptor.ClientInterceptor{tracingInterceptor},
	})
	if err != nil {
		return fmt.Errorf("dial temporal: %w", err)
	}
	defer c.Close()

	w := worker.New(c, durableTaskQueue, worker.Options{})
	w.RegisterWorkflow(orchestrator.PlanWorkflow)
	w.RegisterActivity(&orchestrator.DurableActivities{Orchestrator: orch})

	stop := make(chan interface{})
	go func() {
		select {
		case <-ctx.Done():
		case <-worker.InterruptCh():
		}
		close(stop)
	}()

	return w.Run(stop)
}
