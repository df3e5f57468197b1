package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/protocol"
)

const timeoutConfigKey = "timeout"

// Watch sweeps for timed out node executions until ctx is done.
func (o *Orchestrator) Watch(ctx context.Context) {
	if o.stateTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(o.watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := o.Sweep(ctx)
			if err != nil {
				o.logger.ErrorContext(ctx, "State timeout sweep failed", "error", err)
			}
		}
	}
}

// Sweep fails every WORKING or WAITING node execution that exceeded its timeout. The
// failure goes through the same path as a component failure. An execution that cannot be
// expired does not stop the sweep; every such error is joined into the result.
func (o *Orchestrator) Sweep(ctx context.Context) error {
	executions, err := o.executions.ListExecutions(ctx, models.ExecutionStatusPending, models.ExecutionStatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to list running executions: %w", err)
	}

	var errs []error

	for _, candidate := range executions {
		if !o.hasExpired(candidate) {
			continue
		}

		err = o.expire(ctx, candidate.ID)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (o *Orchestrator) expire(ctx context.Context, executionID string) error {
	unlock := o.locks.Lock(executionID)
	defer unlock()

	execution, err := o.executions.GetWorkflowExecution(ctx, executionID)
	if err != nil {
		return fmt.Errorf("failed to reload execution %s: %w", executionID, err)
	}

	changed := false

	for _, nodeExecution := range execution.NodeExecutions {
		timeout, expired := o.expired(nodeExecution)
		if !expired || execution.Status.Terminal() {
			continue
		}

		o.fail(ctx, execution, nodeExecution, protocol.Errorf(protocol.ErrStateTimeout,
			"node execution %s stayed %s longer than %s", nodeExecution.ID, nodeExecution.State, timeout))

		changed = true
	}

	if !changed {
		return nil
	}

	return o.register(ctx, execution)
}

func (o *Orchestrator) hasExpired(execution *models.WorkflowExecution) bool {
	for _, nodeExecution := range execution.NodeExecutions {
		if _, expired := o.expired(nodeExecution); expired {
			return true
		}
	}

	return false
}

func (o *Orchestrator) expired(nodeExecution *models.WorkflowNodeExecution) (time.Duration, bool) {
	if nodeExecution.State != models.NodeStateWorking && nodeExecution.State != models.NodeStateWaiting {
		return 0, false
	}

	timeout := o.timeoutFor(nodeExecution)
	if timeout <= 0 {
		return 0, false
	}

	return timeout, o.now().Sub(nodeExecution.UpdatedAt) > timeout
}

func (o *Orchestrator) timeoutFor(nodeExecution *models.WorkflowNodeExecution) time.Duration {
	if nodeExecution.Node == nil {
		return o.stateTimeout
	}

	raw, ok := nodeExecution.Node.Config[timeoutConfigKey].(string)
	if !ok {
		return o.stateTimeout
	}

	timeout, err := time.ParseDuration(raw)
	if err != nil {
		o.logger.Warn("Ignoring invalid node timeout",
			"node_id", nodeExecution.WorkflowNodeID,
			"timeout", raw,
			"error", err,
		)

		return o.stateTimeout
	}

	return timeout
}
