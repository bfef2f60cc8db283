package triage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/pulse/internal/signal"
)

// mockStore implements Store for testing.
type mockStore struct {
	mu      sync.Mutex
	signals map[string]*signal.Signal
	next    int
	putErr  error
	getErr  error
	listErr error
}

func newMockStore(seed ...signal.Signal) *mockStore {
	m := &mockStore{signals: make(map[string]*signal.Signal)}
	for i := range seed {
		cp := seed[i]
		m.next++
		cp.Number = m.next
		m.signals[cp.ID] = &cp
	}
	return m
}

func (m *mockStore) Get(_ context.Context, id string) (*signal.Signal, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	s, ok := m.signals[id]
	if !ok {
		return nil, false, nil
	}
	cp := *s
	return &cp, true, nil
}

func (m *mockStore) List(_ context.Context) ([]signal.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]signal.Signal, 0, len(m.signals))
	for _, s := range m.signals {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *mockStore) Create(_ context.Context, s *signal.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	if _, ok := m.signals[s.ID]; ok {
		return ErrDuplicate
	}
	m.next++
	s.Number = m.next
	cp := *s
	m.signals[s.ID] = &cp
	return nil
}

func (m *mockStore) Put(_ context.Context, s *signal.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	if _, ok := m.signals[s.ID]; !ok {
		return ErrNotFound
	}
	cp := *s
	m.signals[s.ID] = &cp
	return nil
}

type mockSuggester struct {
	sug   *Suggestion
	err   error
	calls int
}

func (m *mockSuggester) Suggest(_ context.Context, _ *signal.Signal) (*Suggestion, error) {
	m.calls++
	return m.sug, m.err
}

type mockNotifier struct {
	ch  chan ClassifiedSignal
	err error
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{ch: make(chan ClassifiedSignal, 4)}
}

func (m *mockNotifier) Notify(_ context.Context, cs *ClassifiedSignal) error {
	m.ch <- *cs
	return m.err
}

func newTestService(store Store, opts ServiceOptions) *Service {
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	return NewService(store, testClassifier(), log.Nop(), opts)
}

func TestSubmit_AssignsIDAndNumber(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(store, ServiceOptions{})

	first, err := svc.Submit(context.Background(), &signal.Signal{Title: "Paper towels", Type: "purchase", Amount: f64(12)})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	second, err := svc.Submit(context.Background(), &signal.Signal{Title: "Leaking tap", Type: "Maintenance"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if first.ID == "" || first.ID == second.ID {
		t.Errorf("IDs = %q, %q, want distinct non-empty", first.ID, second.ID)
	}
	if first.Number != 1 || second.Number != 2 {
		t.Errorf("numbers = %d, %d, want 1, 2", first.Number, second.Number)
	}
	if second.Type != signal.TypeMaintenance {
		t.Errorf("Type = %q, want normalised maintenance", second.Type)
	}
	if first.Status != signal.StatusPending || first.Urgency != signal.UrgencyNormal {
		t.Errorf("defaults = %q/%q, want pending/normal", first.Status, first.Urgency)
	}
	if !first.CreatedAt.Equal(testNow) {
		t.Errorf("CreatedAt = %v, want %v", first.CreatedAt, testNow)
	}

	stored, ok, _ := store.Get(context.Background(), first.ID)
	if !ok || stored.Title != "Paper towels" {
		t.Errorf("stored = %+v, ok=%v", stored, ok)
	}
}

func TestSubmit_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   *signal.Signal
	}{
		{"nil", nil},
		{"no title or description", &signal.Signal{Type: "purchase"}},
		{"unknown type", &signal.Signal{Title: "x", Type: "spaceship"}},
		{"unknown status", &signal.Signal{Title: "x", Status: "teleported"}},
		{"unknown urgency", &signal.Signal{Title: "x", Urgency: "whenever"}},
		{"negative amount", &signal.Signal{Title: "x", Amount: f64(-1)}},
		{"confidence above 100", &signal.Signal{Title: "x", Confidence: f64(101)}},
		{"negative sla", &signal.Signal{Title: "x", SLAHours: func() *int { h := -2; return &h }()}},
		{"sla beyond a year", &signal.Signal{Title: "x", SLAHours: func() *int { h := MaxSLAHours + 1; return &h }()}},
		{"sla beyond int4", &signal.Signal{Title: "x", SLAHours: func() *int { h := 1 << 31; return &h }()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := newMockStore()
			svc := newTestService(store, ServiceOptions{})
			_, err := svc.Submit(context.Background(), tt.in)
			if !errors.Is(err, ErrInvalidSignal) {
				t.Fatalf("err = %v, want ErrInvalidSignal", err)
			}
			if len(store.signals) != 0 {
				t.Error("invalid signal was stored")
			}
		})
	}
}

func TestSubmit_AcceptsLooseSpellings(t *testing.T) {
	t.Parallel()

	svc := newTestService(newMockStore(), ServiceOptions{})
	cs, err := svc.Submit(context.Background(), &signal.Signal{
		Description: "handover notes",
		Type:        "SHIFT_HANDOVER",
		Status:      "Needs_Clarity",
		Urgency:     " Urgent ",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if cs.Type != signal.TypeShiftHandover || cs.Status != signal.StatusNeedsClarity || cs.Urgency != signal.UrgencyUrgent {
		t.Errorf("normalised = %q/%q/%q", cs.Type, cs.Status, cs.Urgency)
	}
}

func TestSubmit_SuggesterFillsOnlyMissingFields(t *testing.T) {
	t.Parallel()

	sug := &mockSuggester{sug: &Suggestion{
		Type:       signal.TypeMaintenance,
		Urgency:    signal.UrgencyCritical,
		Confidence: f64(42),
		FlagReason: "possible duplicate",
	}}
	svc := newTestService(newMockStore(), ServiceOptions{Suggester: sug})

	cs, err := svc.Submit(context.Background(), &signal.Signal{
		Title:   "New laptop",
		Type:    signal.TypePurchase,
		Urgency: signal.UrgencyNormal,
		Amount:  f64(80),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if sug.calls != 1 {
		t.Errorf("suggester calls = %d, want 1", sug.calls)
	}
	if cs.Type != signal.TypePurchase || cs.Urgency != signal.UrgencyNormal {
		t.Errorf("caller fields overwritten: %q/%q", cs.Type, cs.Urgency)
	}
	if cs.Confidence == nil || *cs.Confidence != 42 || cs.FlagReason != "possible duplicate" {
		t.Errorf("missing fields not filled: confidence=%v flag=%q", cs.Confidence, cs.FlagReason)
	}
	// the engine re-derives decisions from the suggested inputs
	if cs.RiskLevel != RiskHigh || cs.DecisionType != DecisionException {
		t.Errorf("classification = %q/%q, want high/exception", cs.RiskLevel, cs.DecisionType)
	}
}

func TestSubmit_SuggesterSkippedWhenComplete(t *testing.T) {
	t.Parallel()

	sug := &mockSuggester{sug: &Suggestion{Type: signal.TypeIncident}}
	svc := newTestService(newMockStore(), ServiceOptions{Suggester: sug})

	_, err := svc.Submit(context.Background(), &signal.Signal{
		Title: "x", Type: signal.TypePurchase, Urgency: signal.UrgencyNormal,
		Confidence: f64(90), FlagReason: "already flagged",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sug.calls != 0 {
		t.Errorf("suggester calls = %d, want 0", sug.calls)
	}
}

func TestSubmit_SuggesterErrorIsNotFatal(t *testing.T) {
	t.Parallel()

	var suggestErr error
	sug := &mockSuggester{err: errors.New("rate limited")}
	svc := newTestService(newMockStore(), ServiceOptions{
		Suggester: sug,
		Hooks:     ServiceHooks{OnSuggest: func(_ float64, err error) { suggestErr = err }},
	})

	cs, err := svc.Submit(context.Background(), &signal.Signal{Title: "x"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if cs.Type != signal.TypeGeneral {
		t.Errorf("Type = %q, want general", cs.Type)
	}
	if suggestErr == nil {
		t.Error("OnSuggest hook did not see the error")
	}
}

func TestSubmit_SuggesterInvalidValuesIgnored(t *testing.T) {
	t.Parallel()

	sug := &mockSuggester{sug: &Suggestion{Type: "rocket", Urgency: "asap", Confidence: f64(250)}}
	svc := newTestService(newMockStore(), ServiceOptions{Suggester: sug})

	cs, err := svc.Submit(context.Background(), &signal.Signal{Title: "x"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if cs.Type != signal.TypeGeneral || cs.Urgency != signal.UrgencyNormal || cs.Confidence != nil {
		t.Errorf("invalid suggestion applied: %q/%q/%v", cs.Type, cs.Urgency, cs.Confidence)
	}
}

func TestSubmit_NotifiesJudgmentSignals(t *testing.T) {
	t.Parallel()

	n := newMockNotifier()
	svc := newTestService(newMockStore(), ServiceOptions{Notifier: n})

	cs, err := svc.Submit(context.Background(), &signal.Signal{
		Title: "Forklift", Type: signal.TypePurchase, Amount: f64(4200),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case got := <-n.ch:
		if got.ID != cs.ID || got.DecisionType != DecisionApproval {
			t.Errorf("notified %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestSubmit_DoesNotNotifyInformational(t *testing.T) {
	t.Parallel()

	n := newMockNotifier()
	svc := newTestService(newMockStore(), ServiceOptions{Notifier: n})

	if _, err := svc.Submit(context.Background(), &signal.Signal{Title: "Handover", Type: signal.TypeShiftHandover}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case got := <-n.ch:
		t.Errorf("unexpected notification for %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubmit_StoreError(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	store.putErr = errors.New("db down")

	var results []string
	svc := newTestService(store, ServiceOptions{
		Hooks: ServiceHooks{OnSubmit: func(r string) { results = append(results, r) }},
	})

	if _, err := svc.Submit(context.Background(), &signal.Signal{Title: "x"}); err == nil {
		t.Fatal("expected error from store")
	}
	if len(results) != 1 || results[0] != "error" {
		t.Errorf("submit hook results = %v, want [error]", results)
	}
}

func TestGet(t *testing.T) {
	t.Parallel()

	store := newMockStore(signal.Signal{
		ID: "s-1", Type: signal.TypePurchase, Status: signal.StatusApproved, Amount: f64(300),
		CreatedAt: testNow.Add(-time.Hour),
	})
	svc := newTestService(store, ServiceOptions{})

	d, err := svc.Get(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.Lifecycle.CurrentStage != "approved" || d.Lifecycle.CurrentOwner != "Procurement Officer" {
		t.Errorf("lifecycle = %+v", d.Lifecycle)
	}
	if d.Workflow.Stage != 2 {
		t.Errorf("workflow stage = %d, want 2", d.Workflow.Stage)
	}

	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	store.getErr = errors.New("db down")
	if _, err := svc.Get(context.Background(), "s-1"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want wrapped store error", err)
	}
}

func TestLayersAndBuckets(t *testing.T) {
	t.Parallel()

	store := newMockStore(
		signal.Signal{ID: "j1", Type: signal.TypePurchase, Status: signal.StatusPending, Amount: f64(500)},
		signal.Signal{ID: "j2", Type: signal.TypeEvent, Status: signal.StatusPending, Amount: f64(700)},
		signal.Signal{ID: "x1", Type: signal.TypeIncident, Status: signal.StatusPending},
		signal.Signal{ID: "i1", Type: signal.TypeShiftHandover, Status: signal.StatusPending},
		signal.Signal{ID: "done", Type: signal.TypePurchase, Status: signal.StatusClosed, Amount: f64(900)},
	)

	var grouped [3]int
	svc := newTestService(store, ServiceOptions{
		Hooks: ServiceHooks{OnGrouped: func(j, e, i int) { grouped = [3]int{j, e, i} }},
	})

	layers, err := svc.Layers(context.Background(), 0)
	if err != nil {
		t.Fatalf("Layers: %v", err)
	}
	if len(layers.Judgment) != 2 || len(layers.Exceptions) != 1 || len(layers.Informational) != 1 {
		t.Errorf("layer sizes = %d/%d/%d", len(layers.Judgment), len(layers.Exceptions), len(layers.Informational))
	}
	if grouped != [3]int{2, 1, 1} {
		t.Errorf("OnGrouped saw %v", grouped)
	}

	limited, err := svc.Layers(context.Background(), 1)
	if err != nil {
		t.Fatalf("Layers: %v", err)
	}
	if len(limited.Judgment) != 1 || limited.Judgment[0].ID != "j2" {
		t.Errorf("limited judgment = %v, want [j2]", ids(limited.Judgment))
	}

	b, err := svc.Buckets(context.Background())
	if err != nil {
		t.Fatalf("Buckets: %v", err)
	}
	if len(b.Approvals) != 2 || len(b.Exceptions) != 1 || len(b.Alerts) != 0 {
		t.Errorf("bucket sizes = %d/%d/%d", len(b.Approvals), len(b.Exceptions), len(b.Alerts))
	}

	store.listErr = errors.New("db down")
	if _, err := svc.Layers(context.Background(), 0); err == nil {
		t.Error("expected list error")
	}
	if _, err := svc.Buckets(context.Background()); err == nil {
		t.Error("expected list error")
	}
}

func TestClassify_Stateless(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(store, ServiceOptions{})

	res := svc.Classify([]signal.Signal{
		{ID: "a", Type: signal.TypePurchase, Status: signal.StatusPending, Amount: f64(500)},
		{ID: "b", Type: signal.TypeIncident},
	})
	if len(res.Layers.Judgment) != 1 || len(res.Buckets.Exceptions) != 1 {
		t.Errorf("classification = %+v", res)
	}
	if len(store.signals) != 0 {
		t.Error("Classify touched the store")
	}
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	store := newMockStore(signal.Signal{ID: "s-1", Type: signal.TypePurchase, Status: signal.StatusPending, Amount: f64(500)})

	var from, to signal.Status
	svc := newTestService(store, ServiceOptions{
		Hooks: ServiceHooks{OnTransition: func(f, s signal.Status) { from, to = f, s }},
	})

	status := signal.Status("in_motion")
	stage := "ordered"
	owner := " Sam "
	sla := 6
	d, err := svc.Update(context.Background(), "s-1", &Patch{
		Status: &status, LifecycleStage: &stage, CurrentOwner: &owner, SLAHours: &sla,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if d.Status != signal.StatusInMotion || d.Lifecycle.CurrentStage != "ordered" || d.Lifecycle.CurrentOwner != "Sam" {
		t.Errorf("detail = %+v / %+v", d.ClassifiedSignal.Signal, d.Lifecycle)
	}
	if d.Lifecycle.SLAHours == nil || *d.Lifecycle.SLAHours != 6 {
		t.Errorf("SLAHours = %v, want 6", d.Lifecycle.SLAHours)
	}
	if from != signal.StatusPending || to != signal.StatusInMotion {
		t.Errorf("transition hook = %q -> %q", from, to)
	}

	zero := 0
	empty := ""
	d, err = svc.Update(context.Background(), "s-1", &Patch{SLAHours: &zero, LifecycleStage: &empty})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if d.Lifecycle.SLAHours == nil || *d.Lifecycle.SLAHours != 48 {
		t.Errorf("cleared SLA = %v, want default 48", d.Lifecycle.SLAHours)
	}
	if d.Lifecycle.CurrentStage != "ordered" {
		t.Errorf("stage after clearing override = %q, want status-derived ordered", d.Lifecycle.CurrentStage)
	}
}

func TestUpdate_Errors(t *testing.T) {
	t.Parallel()

	store := newMockStore(signal.Signal{ID: "s-1", Type: signal.TypeIncident, Status: signal.StatusPending})
	svc := newTestService(store, ServiceOptions{})

	bad := signal.Status("exploded")
	if _, err := svc.Update(context.Background(), "s-1", &Patch{Status: &bad}); !errors.Is(err, ErrInvalidSignal) {
		t.Errorf("bad status err = %v, want ErrInvalidSignal", err)
	}

	stage := "invoiced"
	if _, err := svc.Update(context.Background(), "s-1", &Patch{LifecycleStage: &stage}); !errors.Is(err, ErrInvalidSignal) {
		t.Errorf("foreign stage err = %v, want ErrInvalidSignal", err)
	}

	neg := -1
	if _, err := svc.Update(context.Background(), "s-1", &Patch{SLAHours: &neg}); !errors.Is(err, ErrInvalidSignal) {
		t.Errorf("negative sla err = %v, want ErrInvalidSignal", err)
	}

	huge := 1 << 31
	if _, err := svc.Update(context.Background(), "s-1", &Patch{SLAHours: &huge}); !errors.Is(err, ErrInvalidSignal) {
		t.Errorf("oversized sla err = %v, want ErrInvalidSignal", err)
	}

	year := MaxSLAHours
	if _, err := svc.Update(context.Background(), "s-1", &Patch{SLAHours: &year}); err != nil {
		t.Errorf("sla of exactly one year rejected: %v", err)
	}

	if _, err := svc.Update(context.Background(), "nope", &Patch{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing err = %v, want ErrNotFound", err)
	}

	got, _, _ := store.Get(context.Background(), "s-1")
	if got.Status != signal.StatusPending {
		t.Errorf("rejected patch changed status to %q", got.Status)
	}
}

func TestSubmit_CreatesSpan(t *testing.T) {
	// Not parallel: swaps the global OTel tracer provider.

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	svc := newTestService(newMockStore(), ServiceOptions{})
	cs, err := svc.Submit(context.Background(), &signal.Signal{Title: "x", Type: signal.TypePurchase, Amount: f64(500)})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Name != "signal.submit" {
		t.Fatalf("spans = %v, want one signal.submit", spans)
	}
	attrs := make(map[string]any)
	for _, a := range spans[0].Attributes {
		attrs[string(a.Key)] = a.Value.AsInterface()
	}
	if attrs["pulse.signal.id"] != cs.ID {
		t.Errorf("pulse.signal.id = %v, want %s", attrs["pulse.signal.id"], cs.ID)
	}
	if attrs["pulse.signal.decision_type"] != string(DecisionApproval) {
		t.Errorf("pulse.signal.decision_type = %v", attrs["pulse.signal.decision_type"])
	}
}
