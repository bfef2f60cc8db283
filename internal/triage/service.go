package triage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/pulse/internal/signal"
)

const tracerName = "github.com/linnemanlabs/pulse/internal/triage"

const defaultNotifyTimeout = 10 * time.Second

// MaxSLAHours caps per-signal SLA overrides at one year.
const MaxSLAHours = 24 * 365

// ServiceOptions configures optional collaborators. Zero values disable them.
type ServiceOptions struct {
	Suggester     Suggester
	Notifier      Notifier
	Hooks         ServiceHooks
	NotifyTimeout time.Duration
	Now           func() time.Time
}

// Service is the business boundary for signal operations: it owns
// validation, persistence through the Store and notification dispatch.
// Classification itself is delegated to the Classifier on every read.
type Service struct {
	store         Store
	classifier    *Classifier
	suggester     Suggester
	notifier      Notifier
	hooks         ServiceHooks
	notifyTimeout time.Duration
	now           func() time.Time
	logger        log.Logger
}

// NewService creates a new signal service.
func NewService(store Store, classifier *Classifier, logger log.Logger, opts ServiceOptions) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = defaultNotifyTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:         store,
		classifier:    classifier,
		suggester:     opts.Suggester,
		notifier:      opts.Notifier,
		hooks:         opts.Hooks,
		notifyTimeout: opts.NotifyTimeout,
		now:           opts.Now,
		logger:        logger,
	}
}

// Classifier returns the classifier used by the service.
func (s *Service) Classifier() *Classifier {
	return s.classifier
}

// Submit validates and stores a new signal, then returns its classified view.
// Missing type, urgency, confidence and flag reason are filled from the
// suggester when one is configured; a failing suggester never blocks the
// submission.
func (s *Service) Submit(ctx context.Context, in *signal.Signal) (*ClassifiedSignal, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "signal.submit")
	defer span.End()

	if err := validateSubmission(in); err != nil {
		s.hooks.submit("invalid")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	sig := *in
	sig.ID = ulid.Make().String()
	sig.Number = 0
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = s.now().UTC()
	}
	span.SetAttributes(attribute.String("pulse.signal.id", sig.ID))

	s.applySuggestion(ctx, &sig)
	normalize(&sig)

	if err := s.store.Create(ctx, &sig); err != nil {
		s.hooks.submit("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("create signal: %w", err)
	}

	cs := s.classifier.ClassifySignal(&sig)
	span.SetAttributes(
		attribute.Int("pulse.signal.number", sig.Number),
		attribute.String("pulse.signal.decision_type", string(cs.DecisionType)),
		attribute.String("pulse.signal.urgency_tier", string(cs.UrgencyTier)),
	)
	s.hooks.submit("created")
	s.hooks.classified(&cs)

	s.logger.Info(ctx, "signal submitted",
		"signal_id", sig.ID,
		"signal_number", sig.Number,
		"signal_type", sig.Type,
		"decision_type", cs.DecisionType,
		"urgency_tier", cs.UrgencyTier,
	)

	if s.notifier != nil && needsAttention(&cs) {
		go s.notify(context.WithoutCancel(ctx), cs)
	}

	return &cs, nil
}

// Get returns the full detail view of one signal.
func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	sig, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get signal %s: %w", id, err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	d := s.classifier.Detail(sig)
	return &d, nil
}

// Layers groups the current snapshot into decision layers. A positive limit
// caps each layer for display.
func (s *Service) Layers(ctx context.Context, limit int) (DecisionLayers, error) {
	signals, err := s.store.List(ctx)
	if err != nil {
		return DecisionLayers{}, fmt.Errorf("list signals: %w", err)
	}
	layers := s.classifier.GroupByDecisionLayer(signals)
	s.hooks.grouped(&layers)
	if limit > 0 {
		layers = layers.Limit(limit)
	}
	return layers, nil
}

// Buckets returns the approvals/exceptions/alerts view of the current snapshot.
func (s *Service) Buckets(ctx context.Context) (Buckets, error) {
	signals, err := s.store.List(ctx)
	if err != nil {
		return Buckets{}, fmt.Errorf("list signals: %w", err)
	}
	return s.classifier.ClassifyAndGroup(signals), nil
}

// Classification is the result of classifying a caller-supplied batch.
type Classification struct {
	Layers  DecisionLayers `json:"layers"`
	Buckets Buckets        `json:"buckets"`
}

// Classify runs both grouping views over signals without touching the store.
func (s *Service) Classify(signals []signal.Signal) Classification {
	return Classification{
		Layers:  s.classifier.GroupByDecisionLayer(signals),
		Buckets: s.classifier.ClassifyAndGroup(signals),
	}
}

// Patch describes a partial update. Nil fields are left unchanged; an empty
// string or zero SLA clears the corresponding override.
type Patch struct {
	Status         *signal.Status `json:"status,omitempty"`
	LifecycleStage *string        `json:"lifecycle_stage,omitempty"`
	CurrentOwner   *string        `json:"current_owner,omitempty"`
	SLAHours       *int           `json:"sla_hours,omitempty"`
	FlagReason     *string        `json:"flag_reason,omitempty"`
}

// Update applies p to the signal with the given ID and returns its new detail view.
func (s *Service) Update(ctx context.Context, id string, p *Patch) (*Detail, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "signal.update", trace.WithAttributes(
		attribute.String("pulse.signal.id", id),
	))
	defer span.End()

	sig, ok, err := s.store.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("get signal %s: %w", id, err)
	}
	if !ok {
		return nil, ErrNotFound
	}

	prev := sig.Status
	if err := s.applyPatch(sig, p); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.store.Put(ctx, sig); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("put signal %s: %w", id, err)
	}

	if prev != sig.Status {
		s.hooks.transition(prev, sig.Status)
		s.logger.Info(ctx, "signal status changed",
			"signal_id", id,
			"from", prev,
			"to", sig.Status,
		)
	}

	d := s.classifier.Detail(sig)
	return &d, nil
}

func (s *Service) applyPatch(sig *signal.Signal, p *Patch) error {
	if p == nil {
		return nil
	}
	var errs []error

	if p.Status != nil {
		st := signal.Status(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(string(*p.Status))), "_", "-"))
		if !st.Valid() {
			errs = append(errs, fmt.Errorf("unknown status %q", *p.Status))
		} else {
			sig.Status = st
		}
	}

	if p.LifecycleStage != nil {
		stage := strings.TrimSpace(*p.LifecycleStage)
		cfg := s.classifier.Stages().Config(sig.Type)
		if stage != "" && !slices.Contains(cfg.Stages, stage) {
			errs = append(errs, fmt.Errorf("stage %q is not defined for type %s", stage, sig.Type))
		} else {
			sig.LifecycleStage = stage
		}
	}

	if p.CurrentOwner != nil {
		sig.CurrentOwner = strings.TrimSpace(*p.CurrentOwner)
	}

	if p.SLAHours != nil {
		switch h := *p.SLAHours; {
		case h < 0 || h > MaxSLAHours:
			errs = append(errs, fmt.Errorf("sla_hours must be within [0, %d], got %d", MaxSLAHours, h))
		case h == 0:
			sig.SLAHours = nil
		default:
			sig.SLAHours = &h
		}
	}

	if p.FlagReason != nil {
		sig.FlagReason = strings.TrimSpace(*p.FlagReason)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignal, err)
	}
	return nil
}

func (s *Service) applySuggestion(ctx context.Context, sig *signal.Signal) {
	if s.suggester == nil || !missingSuggestible(sig) {
		return
	}

	start := time.Now()
	sug, err := s.suggester.Suggest(ctx, sig)
	s.hooks.suggest(time.Since(start).Seconds(), err)
	if err != nil {
		s.logger.Warn(ctx, "suggester failed, continuing without suggestion",
			"signal_id", sig.ID,
			"error", err,
		)
		return
	}
	if sug == nil {
		return
	}

	if strings.TrimSpace(string(sig.Type)) == "" && sug.Type.Valid() {
		sig.Type = sug.Type
	}
	if strings.TrimSpace(string(sig.Urgency)) == "" && sug.Urgency.Valid() {
		sig.Urgency = sug.Urgency
	}
	if sig.Confidence == nil && sug.Confidence != nil && validConfidence(*sug.Confidence) {
		c := *sug.Confidence
		sig.Confidence = &c
	}
	if !sig.Flagged() && strings.TrimSpace(sug.FlagReason) != "" {
		sig.FlagReason = strings.TrimSpace(sug.FlagReason)
	}
}

func (s *Service) notify(ctx context.Context, cs ClassifiedSignal) {
	ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()

	err := s.notifier.Notify(ctx, &cs)
	s.hooks.notify(err)
	if err != nil {
		s.logger.Error(ctx, err, "failed to notify", "signal_id", cs.ID)
	}
}

// needsAttention reports whether a newly submitted signal should be pushed
// to notifiers: anything awaiting a human decision or at critical tier.
func needsAttention(cs *ClassifiedSignal) bool {
	return cs.DecisionType.Layer() == LayerJudgment || cs.UrgencyTier == TierCritical
}

func missingSuggestible(s *signal.Signal) bool {
	return strings.TrimSpace(string(s.Type)) == "" ||
		strings.TrimSpace(string(s.Urgency)) == "" ||
		s.Confidence == nil ||
		!s.Flagged()
}

func validateSubmission(in *signal.Signal) error {
	if in == nil {
		return fmt.Errorf("%w: empty body", ErrInvalidSignal)
	}
	var errs []error

	if strings.TrimSpace(in.Title) == "" && strings.TrimSpace(in.Description) == "" {
		errs = append(errs, errors.New("title or description is required"))
	}
	if t := strings.TrimSpace(string(in.Type)); t != "" && signal.ParseType(t) == signal.TypeGeneral && !strings.EqualFold(t, string(signal.TypeGeneral)) {
		errs = append(errs, fmt.Errorf("unknown signal_type %q", in.Type))
	}
	if st := strings.TrimSpace(string(in.Status)); st != "" && signal.ParseStatus(st) == signal.StatusPending && !strings.EqualFold(st, string(signal.StatusPending)) {
		errs = append(errs, fmt.Errorf("unknown status %q", in.Status))
	}
	if u := strings.TrimSpace(string(in.Urgency)); u != "" && !signal.Urgency(strings.ToLower(u)).Valid() {
		errs = append(errs, fmt.Errorf("unknown urgency %q", in.Urgency))
	}
	if in.Amount != nil {
		if a := *in.Amount; math.IsNaN(a) || math.IsInf(a, 0) || a < 0 {
			errs = append(errs, fmt.Errorf("amount must be a non-negative number, got %v", a))
		}
	}
	if in.Confidence != nil && !validConfidence(*in.Confidence) {
		errs = append(errs, fmt.Errorf("confidence must be within [0, 100], got %v", *in.Confidence))
	}
	if in.SLAHours != nil && (*in.SLAHours < 0 || *in.SLAHours > MaxSLAHours) {
		errs = append(errs, fmt.Errorf("sla_hours must be within [0, %d], got %d", MaxSLAHours, *in.SLAHours))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignal, err)
	}
	return nil
}

// normalize canonicalises enum spellings before a signal is stored.
func normalize(s *signal.Signal) {
	s.Type = signal.ParseType(string(s.Type))
	s.Status = signal.ParseStatus(string(s.Status))
	s.Urgency = signal.ParseUrgency(string(s.Urgency))
	s.FlagReason = strings.TrimSpace(s.FlagReason)
	if s.SLAHours != nil && *s.SLAHours == 0 {
		s.SLAHours = nil
	}
}

func validConfidence(c float64) bool {
	return !math.IsNaN(c) && c >= 0 && c <= 100
}
