package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	tgotel "github.com/clearfield/triage/internal/adapter/otel"
	"github.com/clearfield/triage/internal/config"
	"github.com/clearfield/triage/internal/domain"
	"github.com/clearfield/triage/internal/domain/classify"
	"github.com/clearfield/triage/internal/domain/toolcall"
	"github.com/clearfield/triage/internal/domain/turn"
	"github.com/clearfield/triage/internal/port/database"
	"github.com/clearfield/triage/internal/port/messagequeue"
)

// escalationReply is the fixed text returned when the pipeline escalates
// without a graded reply. Recognized by the assembler as a system
// response, so it is never wrapped in greeting templates.
const escalationReply = "I understand this is a serious matter. I'm connecting you with a support agent who can help you right away."

// generationFailureReply is returned when generation fails outright.
const generationFailureReply = "I'm having trouble processing your request right now. Let me connect you with a member of our team."

// TurnRequest is the inbound surface of the orchestrator.
type TurnRequest struct {
	Message    string       `json:"message"`
	SessionID  string       `json:"session_id"`
	Channel    turn.Channel `json:"channel"`
	Sender     string       `json:"sender,omitempty"`      // contact key supplied by the channel
	SenderName string       `json:"sender_name,omitempty"` // display name supplied by the channel
}

// Orchestrator owns the per-turn pipeline: pre-filter, classification,
// context assembly, concurrent generation and outstanding detection,
// tool-call governance, reply assembly, the two-tier evaluation gate,
// and finalization side effects.
type Orchestrator struct {
	prefilter  *PreFilter
	classifier *Classifier
	builder    *ContextBuilder
	generator  *Generator
	detector   *Detector
	governor   *Governor
	gate       *Gate
	assembler  *Assembler
	store      database.Store
	queue      messagequeue.Queue
	metrics    *tgotel.Metrics
	pipe       config.Pipeline
	now        func() time.Time
}

// NewOrchestrator wires the pipeline. metrics may be nil.
func NewOrchestrator(
	prefilter *PreFilter,
	classifier *Classifier,
	builder *ContextBuilder,
	generator *Generator,
	detector *Detector,
	governor *Governor,
	gate *Gate,
	assembler *Assembler,
	store database.Store,
	queue messagequeue.Queue,
	metrics *tgotel.Metrics,
	pipe config.Pipeline,
) *Orchestrator {
	return &Orchestrator{
		prefilter:  prefilter,
		classifier: classifier,
		builder:    builder,
		generator:  generator,
		detector:   detector,
		governor:   governor,
		gate:       gate,
		assembler:  assembler,
		store:      store,
		queue:      queue,
		metrics:    metrics,
		pipe:       pipe,
		now:        time.Now,
	}
}

// ProcessTurn runs one inbound message through the full pipeline and
// returns the terminal result. Cancelling ctx before the evaluation gate
// begins discards the turn; once a reply exists the gate always reaches
// a disposition under a detached context.
func (o *Orchestrator) ProcessTurn(ctx context.Context, req TurnRequest) (*turn.Result, error) {
	start := o.now()

	t := turn.ConversationTurn{
		ID:        uuid.NewString(),
		SessionID: req.SessionID,
		Text:      req.Message,
		Channel:   req.Channel,
		Sender:    req.Sender,
		CreatedAt: start,
	}
	if t.SessionID == "" {
		t.SessionID = "sess_" + uuid.NewString()
	}
	if t.Channel == "" {
		t.Channel = turn.ChannelWidget
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid turn: %w", err)
	}

	if o.metrics != nil {
		o.metrics.TurnsProcessed.Add(ctx, 1)
	}
	slog.Info("turn started", "turn_id", t.ID, "session_id", t.SessionID, "channel", t.Channel)

	// Stage 1: safety pre-filter. A match terminates the pipeline before
	// any inference or lookup runs.
	if match := o.prefilter.Check(t.Text); match != nil {
		slog.Warn("red line matched, escalating", "turn_id", t.ID, "trigger", match.Trigger)
		return o.finalizeShortCircuit(ctx, &t, match.Trigger, start), nil
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("turn discarded: %w", domain.ErrTurnCancelled)
	}

	// Stage 2: classification. Failures inside the classifier collapse
	// to the reserved unknown category, never an error.
	cls := o.classifier.Classify(ctx, t.Text, t.Channel)

	// Stage 3: context. The channel-supplied contact key wins over the
	// identifier extracted from the message text.
	identifier := req.Sender
	if identifier == "" {
		identifier = cls.Identifier
	}
	bnd := o.builder.Assemble(ctx, identifier, t.SessionID)

	// Stage 4: generation and outstanding detection, concurrently. The
	// detector cannot fail (it degrades); a generator failure escalates,
	// since with no reply there is nothing to grade.
	var (
		body  string
		calls []toolcall.ProposedCall
		sig   Signal
	)
	var g errgroup.Group
	var genErr error
	g.Go(func() error {
		body, calls, genErr = o.generator.Generate(ctx, &t, cls.Primary, bnd)
		return nil
	})
	g.Go(func() error {
		sig = o.detector.Detect(ctx, t.Text, cls.Primary)
		return nil
	})
	_ = g.Wait()

	if genErr != nil {
		slog.Error("generation failed, escalating", "turn_id", t.ID, "error", genErr)
		return o.finalizeGenerationFailure(ctx, &t, cls, sig, start), nil
	}

	// Stage 5: governance. Read-only and display calls execute now;
	// confirm-required calls suspend as persisted awaiting state.
	outcome := o.governor.Govern(ctx, calls)

	// Stage 6: assembly.
	name := req.SenderName
	if bnd.Identity != nil {
		name = bnd.Identity.Name
	}
	reply := o.assembler.Assemble(body, name, cls.Primary, t.SessionID, outcome)

	// Cancellation boundary: a caller may abandon the turn up to here.
	// Once the gate starts, it runs to a disposition on a detached
	// context so a drafted reply is never silently lost.
	if err := ctx.Err(); err != nil {
		slog.Info("turn cancelled before evaluation", "turn_id", t.ID)
		return nil, fmt.Errorf("turn discarded: %w", domain.ErrTurnCancelled)
	}
	gateCtx := context.WithoutCancel(ctx)

	// Stage 7: evaluation.
	eval := o.gate.Evaluate(gateCtx, &t, reply, cls.Primary, bnd.Identified(), sig, outcome.Executed)

	res := &turn.Result{
		Turn:           t,
		Category:       cls.Primary,
		Reply:          reply,
		Eval:           eval,
		Classification: cls,
		ProcessingMS:   o.now().Sub(start).Milliseconds(),
	}
	for _, p := range outcome.Pending {
		res.PendingCallIDs = append(res.PendingCallIDs, p.ID)
	}

	// Stage 8: finalization side effects, best-effort.
	o.persist(gateCtx, res, sig)
	o.announce(gateCtx, res)
	o.record(gateCtx, res, start)

	slog.Info("turn finalized",
		"turn_id", t.ID,
		"category", cls.Primary,
		"disposition", eval.Disposition,
		"tier", eval.Tier,
		"pending_calls", len(res.PendingCallIDs),
		"processing_ms", res.ProcessingMS)
	return res, nil
}

// ResolveConfirmation is the external approve/reject entrypoint for a
// suspended confirm-required call.
func (o *Orchestrator) ResolveConfirmation(ctx context.Context, callID string, approve bool) (*toolcall.ProposedCall, error) {
	return o.governor.ResolveConfirmation(ctx, callID, approve)
}

// RunExpirySweep periodically rejects confirmation requests past their
// deadline. Blocks until ctx is cancelled.
func (o *Orchestrator) RunExpirySweep(ctx context.Context) {
	ticker := time.NewTicker(o.pipe.ExpireSweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := o.governor.ExpirePending(ctx)
			if err != nil {
				slog.Warn("expiry sweep failed", "error", err)
			} else if n > 0 {
				slog.Info("expired stale confirmation requests", "count", n)
			}
		}
	}
}

// finalizeShortCircuit produces the synthetic escalation result for a
// pre-filter match. No classifier, generator, or judge call is made.
func (o *Orchestrator) finalizeShortCircuit(ctx context.Context, t *turn.ConversationTurn, trigger string, start time.Time) *turn.Result {
	res := &turn.Result{
		Turn:     *t,
		Category: classify.CategoryUnknown,
		Reply:    escalationReply,
		Eval: turn.EvalResult{
			TurnID:      t.ID,
			Disposition: turn.DispositionEscalate,
			Confidence:  turn.ConfidenceHigh,
			Tier:        turn.TierFastFail,
			Reasons:     []string{"red line: " + trigger},
		},
		Classification: classify.Fallback(),
		ProcessingMS:   o.now().Sub(start).Milliseconds(),
	}
	o.persist(ctx, res, Signal{IsOutstanding: true, Trigger: trigger, Confidence: turn.ConfidenceHigh})
	o.announce(ctx, res)
	o.record(ctx, res, start)
	return res
}

// finalizeGenerationFailure escalates a turn whose generation failed.
func (o *Orchestrator) finalizeGenerationFailure(ctx context.Context, t *turn.ConversationTurn, cls classify.Result, sig Signal, start time.Time) *turn.Result {
	res := &turn.Result{
		Turn:     *t,
		Category: cls.Primary,
		Reply:    generationFailureReply,
		Eval: turn.EvalResult{
			TurnID:      t.ID,
			Disposition: turn.DispositionEscalate,
			Confidence:  turn.ConfidenceLow,
			Tier:        turn.TierJudge,
			Reasons:     []string{"generation failed"},
		},
		Classification: cls,
		ProcessingMS:   o.now().Sub(start).Milliseconds(),
	}
	o.persist(ctx, res, sig)
	o.announce(ctx, res)
	o.record(ctx, res, start)
	return res
}

// persist writes the finalized turn. A storage failure marks the result
// not-persisted rather than discarding the disposition already computed.
func (o *Orchestrator) persist(ctx context.Context, res *turn.Result, sig Signal) {
	rec := &database.TurnRecord{
		Turn:           res.Turn,
		Classification: res.Classification,
		Reply:          res.Reply,
		Eval:           res.Eval,
		Outstanding:    sig.IsOutstanding,
		Trigger:        sig.Trigger,
		ProcessingMS:   res.ProcessingMS,
	}
	if err := o.store.AppendTurn(ctx, rec); err != nil {
		slog.Error("turn persistence failed", "turn_id", res.Turn.ID, "error", err)
		res.Eval.NotPersisted = true
	}
}

func (o *Orchestrator) announce(ctx context.Context, res *turn.Result) {
	ev := messagequeue.TurnFinalizedEvent{
		TurnID:      res.Turn.ID,
		SessionID:   res.Turn.SessionID,
		Category:    string(res.Category),
		Disposition: string(res.Eval.Disposition),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("finalized event marshal failed", "turn_id", res.Turn.ID, "error", err)
		return
	}
	if err := o.queue.Publish(ctx, messagequeue.SubjectTurnFinalized, data); err != nil {
		slog.Warn("finalized event publish failed", "turn_id", res.Turn.ID, "error", err)
	}
}

func (o *Orchestrator) record(ctx context.Context, res *turn.Result, start time.Time) {
	if o.metrics == nil {
		return
	}
	switch res.Eval.Disposition {
	case turn.DispositionSend:
		o.metrics.TurnsSent.Add(ctx, 1)
	case turn.DispositionDraft:
		o.metrics.TurnsDrafted.Add(ctx, 1)
	case turn.DispositionEscalate:
		o.metrics.TurnsEscalated.Add(ctx, 1)
	}
	o.metrics.TurnDuration.Record(ctx, o.now().Sub(start).Seconds())
}
