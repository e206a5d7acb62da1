package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/clearfield/triage/internal/config"
	"github.com/clearfield/triage/internal/domain"
	"github.com/clearfield/triage/internal/domain/bundle"
	"github.com/clearfield/triage/internal/domain/toolcall"
	"github.com/clearfield/triage/internal/port/database"
	"github.com/clearfield/triage/internal/port/inference"
	"github.com/clearfield/triage/internal/port/knowledge"
	"github.com/clearfield/triage/internal/port/messagequeue"
)

// Distinct model names so the fake inference service can route by role.
func testInference() config.Inference {
	return config.Inference{
		ClassifierModel: "clf",
		GeneratorModel:  "gen",
		JudgeModel:      "judge",
		DetectorModel:   "det",
		ClassifyTimeout: time.Second,
		GenerateTimeout: time.Second,
		JudgeTimeout:    time.Second,
		DetectTimeout:   time.Second,
	}
}

func testPipeline() config.Pipeline {
	return config.Pipeline{
		MaxHistoryTurns:  3,
		MaxContextChars:  2000,
		MaxAccountFacts:  5,
		ConfirmDeadline:  time.Hour,
		ExpireSweepEvery: time.Minute,
		ActionTimeout:    5 * time.Second,
		ScoreThreshold:   0.7,
		SafetyThreshold:  0.9,
		LookupTimeout:    time.Second,
	}
}

func testKnowledgeCfg() config.Knowledge {
	return config.Knowledge{TopK: 3, Timeout: time.Second}
}

// fakeLLM routes scripted responses by model name and counts calls per model.
type fakeLLM struct {
	mu        sync.Mutex
	responses map[string][]string // model -> FIFO of raw JSON outputs; last entry repeats
	errs      map[string]error
	calls     map[string]int
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{
		responses: map[string][]string{},
		errs:      map[string]error{},
		calls:     map[string]int{},
	}
}

func (f *fakeLLM) respond(model string, outputs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[model] = append(f.responses[model], outputs...)
}

func (f *fakeLLM) fail(model string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[model] = err
}

func (f *fakeLLM) callCount(model string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[model]
}

func (f *fakeLLM) Infer(_ context.Context, spec inference.PromptSpec) (*inference.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[spec.Model]++

	if err := f.errs[spec.Model]; err != nil {
		return nil, err
	}
	queue := f.responses[spec.Model]
	if len(queue) == 0 {
		return nil, errors.New("no scripted response for model " + spec.Model)
	}
	out := queue[0]
	if len(queue) > 1 {
		f.responses[spec.Model] = queue[1:]
	}
	return &inference.Result{Output: json.RawMessage(out), Model: spec.Model}, nil
}

// fakeKnowledge serves documents per partition.
type fakeKnowledge struct {
	mu       sync.Mutex
	docs     map[string][]knowledge.Document
	err      error
	searches []string // partitions queried, in order
}

func (f *fakeKnowledge) Search(_ context.Context, partition, _ string, _ int) ([]knowledge.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, partition)
	if f.err != nil {
		return nil, f.err
	}
	return f.docs[partition], nil
}

// fakeDirectory returns a fixed identity and facts.
type fakeDirectory struct {
	identity *bundle.Identity
	idErr    error
	facts    []bundle.AccountFact
	factsErr error
}

func (f *fakeDirectory) FindByIdentifier(_ context.Context, _ string) (*bundle.Identity, error) {
	if f.idErr != nil {
		return nil, f.idErr
	}
	if f.identity == nil {
		return nil, domain.ErrNotFound
	}
	out := *f.identity
	return &out, nil
}

func (f *fakeDirectory) AccountFacts(_ context.Context, _ string, limit int) ([]bundle.AccountFact, error) {
	if f.factsErr != nil {
		return nil, f.factsErr
	}
	if limit > 0 && len(f.facts) > limit {
		return f.facts[:limit], nil
	}
	return f.facts, nil
}

// fakeStore is an in-memory database.Store.
type fakeStore struct {
	mu         sync.Mutex
	appended   []*database.TurnRecord
	appendErr  error
	history    []bundle.HistoryEntry
	historyErr error
	riskFlag   string
	riskErr    error
	calls      map[string]*toolcall.ProposedCall
	createErr  error
	updateErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{calls: map[string]*toolcall.ProposedCall{}}
}

func (f *fakeStore) AppendTurn(_ context.Context, rec *database.TurnRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, rec)
	return nil
}

func (f *fakeStore) RecentTurns(_ context.Context, _ string, limit int) ([]bundle.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	out := make([]bundle.HistoryEntry, len(f.history))
	copy(out, f.history)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) RiskFlag(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.riskFlag, f.riskErr
}

func (f *fakeStore) CreateToolCall(_ context.Context, call *toolcall.ProposedCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *call
	f.calls[call.ID] = &cp
	return nil
}

func (f *fakeStore) GetToolCall(_ context.Context, id string) (*toolcall.ProposedCall, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call, ok := f.calls[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *call
	return &cp, nil
}

func (f *fakeStore) UpdateToolCallState(_ context.Context, id string, state toolcall.State, result string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	call, ok := f.calls[id]
	if !ok {
		return domain.ErrNotFound
	}
	call.State = state
	if result != "" {
		call.Result = result
	}
	return nil
}

func (f *fakeStore) ExpireAwaiting(_ context.Context, olderThan time.Time) ([]toolcall.ProposedCall, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var expired []toolcall.ProposedCall
	for _, call := range f.calls {
		if call.State == toolcall.StateAwaiting && call.CreatedAt.Before(olderThan) {
			call.State = toolcall.StateRejected
			expired = append(expired, *call)
		}
	}
	return expired, nil
}

func (f *fakeStore) callState(id string) toolcall.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if call, ok := f.calls[id]; ok {
		return call.State
	}
	return ""
}

// fakeQueue records published messages.
type fakeQueue struct {
	mu        sync.Mutex
	published []publishedMsg
}

type publishedMsg struct {
	Subject string
	Data    []byte
}

func (f *fakeQueue) Publish(_ context.Context, subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMsg{Subject: subject, Data: data})
	return nil
}

func (f *fakeQueue) Subscribe(_ context.Context, _ string, _ messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (f *fakeQueue) Close() error { return nil }

func (f *fakeQueue) onSubject(subject string) []publishedMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publishedMsg
	for _, m := range f.published {
		if m.Subject == subject {
			out = append(out, m)
		}
	}
	return out
}

// fakeExec records executed tool calls and serves scripted results.
type fakeExec struct {
	mu        sync.Mutex
	executed  []toolcall.Tool
	deadlines []bool // whether each call's ctx carried a deadline
	results   map[toolcall.Tool]string
	errs      map[toolcall.Tool]error
}

func newFakeExec() *fakeExec {
	return &fakeExec{
		results: map[toolcall.Tool]string{},
		errs:    map[toolcall.Tool]error{},
	}
}

func (f *fakeExec) Execute(ctx context.Context, tool toolcall.Tool, _ map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, tool)
	_, hasDeadline := ctx.Deadline()
	f.deadlines = append(f.deadlines, hasDeadline)
	if err := f.errs[tool]; err != nil {
		return "", err
	}
	if res, ok := f.results[tool]; ok {
		return res, nil
	}
	return `{"ok":true}`, nil
}

func (f *fakeExec) count(tool toolcall.Tool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.executed {
		if t == tool {
			n++
		}
	}
	return n
}
