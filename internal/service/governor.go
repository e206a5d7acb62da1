package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	tgotel "github.com/clearfield/triage/internal/adapter/otel"
	"github.com/clearfield/triage/internal/domain/toolcall"
	"github.com/clearfield/triage/internal/port/action"
	"github.com/clearfield/triage/internal/port/database"
	"github.com/clearfield/triage/internal/port/messagequeue"
)

// GovernOutcome is what the governor hands back to the orchestrator
// after processing a turn's proposed calls.
type GovernOutcome struct {
	// Executed holds completed read-only and displayed calls, in the
	// order they were proposed, with results filled in.
	Executed []toolcall.ProposedCall
	// Pending holds calls persisted as awaiting confirmation. Their
	// execution is deferred to ResolveConfirmation.
	Pending []toolcall.ProposedCall
	// Failed holds calls whose read-only or display execution errored.
	Failed []toolcall.ProposedCall
}

// Governor drives the tool-call governance protocol. Read-only calls
// execute immediately and sequentially; display-only calls fetch through
// the same path and are marked displayed; confirm-required calls are
// persisted as awaiting confirmation and never execute without an
// explicit external approval signal.
type Governor struct {
	store       database.Store
	exec        action.Executor
	queue       messagequeue.Queue
	metrics     *tgotel.Metrics
	deadline    time.Duration
	execTimeout time.Duration
	now         func() time.Time
}

// NewGovernor creates a governor. metrics may be nil. execTimeout bounds
// each call to the action executor.
func NewGovernor(store database.Store, exec action.Executor, queue messagequeue.Queue, metrics *tgotel.Metrics, deadline, execTimeout time.Duration) *Governor {
	return &Governor{
		store:       store,
		exec:        exec,
		queue:       queue,
		metrics:     metrics,
		deadline:    deadline,
		execTimeout: execTimeout,
		now:         time.Now,
	}
}

// execute runs one action executor call under the configured timeout.
func (g *Governor) execute(ctx context.Context, call *toolcall.ProposedCall) (string, error) {
	if g.execTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.execTimeout)
		defer cancel()
	}
	return g.exec.Execute(ctx, call.Tool, call.Args)
}

// Govern processes the turn's proposed calls in order. A confirm-required
// call suspends only itself; calls after it are still processed.
func (g *Governor) Govern(ctx context.Context, calls []toolcall.ProposedCall) GovernOutcome {
	var out GovernOutcome

	for i := range calls {
		call := calls[i]
		if g.metrics != nil {
			g.metrics.ToolCalls.Add(ctx, 1)
		}

		if err := g.store.CreateToolCall(ctx, &call); err != nil {
			slog.Error("tool call persistence failed",
				"call_id", call.ID, "tool", call.Tool, "error", err)
			if call.Mode == toolcall.ModeConfirm {
				// An unpersisted confirm-required call cannot be resumed
				// by a later confirmation, so it must not be offered.
				call.State = toolcall.StateRejected
				out.Failed = append(out.Failed, call)
				continue
			}
		}

		switch call.Mode {
		case toolcall.ModeReadOnly:
			g.runFetch(ctx, &call, toolcall.StateExecuting, toolcall.StateCompleted)
		case toolcall.ModeDisplay:
			g.runFetch(ctx, &call, toolcall.StateFetching, toolcall.StateDisplayed)
		case toolcall.ModeConfirm:
			g.suspend(ctx, &call)
		}

		switch call.State {
		case toolcall.StateCompleted, toolcall.StateDisplayed:
			out.Executed = append(out.Executed, call)
		case toolcall.StateAwaiting:
			out.Pending = append(out.Pending, call)
		default:
			out.Failed = append(out.Failed, call)
		}
	}
	return out
}

// runFetch drives the proposed → running → terminal transition shared by
// read-only and display-only calls.
func (g *Governor) runFetch(ctx context.Context, call *toolcall.ProposedCall, running, done toolcall.State) {
	g.transition(ctx, call, running, "")

	result, err := g.execute(ctx, call)
	if err != nil {
		slog.Warn("tool execution failed",
			"call_id", call.ID, "tool", call.Tool, "error", err)
		g.transition(ctx, call, toolcall.StateCancelled, "")
		return
	}
	g.transition(ctx, call, done, result)
}

// suspend persists the call as awaiting confirmation and announces it.
func (g *Governor) suspend(ctx context.Context, call *toolcall.ProposedCall) {
	g.transition(ctx, call, toolcall.StateAwaiting, "")

	ev := messagequeue.AwaitingConfirmationEvent{
		CallID:    call.ID,
		TurnID:    call.TurnID,
		SessionID: call.SessionID,
		Tool:      string(call.Tool),
		Args:      call.Args,
	}
	g.publish(ctx, messagequeue.SubjectAwaitingConfirmation, ev)

	slog.Info("tool call awaiting confirmation",
		"call_id", call.ID, "tool", call.Tool, "turn_id", call.TurnID)
}

// ResolveConfirmation applies an external approve/reject decision to a
// suspended call. On approve the action executes and a confirmed event
// carries the result; on reject a cancellation event is emitted.
// Resolving an already-resolved call is a no-op that returns its current
// state.
func (g *Governor) ResolveConfirmation(ctx context.Context, callID string, approve bool) (*toolcall.ProposedCall, error) {
	call, err := g.store.GetToolCall(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("load tool call %s: %w", callID, err)
	}

	if call.State != toolcall.StateAwaiting {
		slog.Info("confirmation for non-awaiting call ignored",
			"call_id", callID, "state", call.State)
		return call, nil
	}

	if g.metrics != nil {
		g.metrics.ConfirmResolved.Add(ctx, 1)
	}

	if !approve {
		g.transition(ctx, call, toolcall.StateRejected, "")
		g.transition(ctx, call, toolcall.StateCancelled, "")
		g.publish(ctx, messagequeue.SubjectCallCancelled, messagequeue.CallResolvedEvent{
			CallID: call.ID, TurnID: call.TurnID, Tool: string(call.Tool),
			Message: "rejected by reviewer",
		})
		slog.Info("tool call rejected", "call_id", call.ID, "tool", call.Tool)
		return call, nil
	}

	g.transition(ctx, call, toolcall.StateConfirmed, "")
	g.transition(ctx, call, toolcall.StateExecuting, "")

	result, err := g.execute(ctx, call)
	if err != nil {
		slog.Error("confirmed tool execution failed",
			"call_id", call.ID, "tool", call.Tool, "error", err)
		g.transition(ctx, call, toolcall.StateCancelled, "")
		g.publish(ctx, messagequeue.SubjectCallCancelled, messagequeue.CallResolvedEvent{
			CallID: call.ID, TurnID: call.TurnID, Tool: string(call.Tool),
			Approved: true, Message: "execution failed after approval",
		})
		return call, nil
	}

	g.transition(ctx, call, toolcall.StateCompleted, result)
	g.publish(ctx, messagequeue.SubjectCallConfirmed, messagequeue.CallResolvedEvent{
		CallID: call.ID, TurnID: call.TurnID, Tool: string(call.Tool),
		Approved: true, Result: result,
	})
	slog.Info("tool call confirmed and executed", "call_id", call.ID, "tool", call.Tool)
	return call, nil
}

// ExpirePending rejects calls stuck awaiting confirmation longer than
// the configured deadline. Run periodically by the orchestrator's sweep.
func (g *Governor) ExpirePending(ctx context.Context) (int, error) {
	expired, err := g.store.ExpireAwaiting(ctx, g.now().Add(-g.deadline))
	if err != nil {
		return 0, fmt.Errorf("expire pending calls: %w", err)
	}

	for i := range expired {
		call := &expired[i]
		g.transition(ctx, call, toolcall.StateCancelled, "")
		g.publish(ctx, messagequeue.SubjectCallCancelled, messagequeue.CallResolvedEvent{
			CallID: call.ID, TurnID: call.TurnID, Tool: string(call.Tool),
			Message: "confirmation window expired",
		})
		slog.Info("tool call expired", "call_id", call.ID, "tool", call.Tool)
	}
	return len(expired), nil
}

// transition updates the in-memory call and persists the new state.
// Persistence failures are logged, not fatal: the in-memory state keeps
// the turn moving and the row catches up on the next transition.
func (g *Governor) transition(ctx context.Context, call *toolcall.ProposedCall, state toolcall.State, result string) {
	call.State = state
	if result != "" {
		call.Result = result
	}
	call.UpdatedAt = g.now()
	if err := g.store.UpdateToolCallState(ctx, call.ID, state, call.Result); err != nil {
		slog.Warn("tool call state update failed",
			"call_id", call.ID, "state", state, "error", err)
	}
}

func (g *Governor) publish(ctx context.Context, subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("event marshal failed", "subject", subject, "error", err)
		return
	}
	if err := g.queue.Publish(ctx, subject, data); err != nil {
		slog.Warn("event publish failed", "subject", subject, "error", err)
	}
}
