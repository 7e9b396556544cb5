package core

import (
	"context"
	"strings"
	"time"

	"colazione/internal/infra/persistence/memory"
	"colazione/pkg/domain"
)

const dateLayout = "2006-01-02"

// Service exposes every entity operation on top of a PersistentStore. Each
// write runs as one store transaction over the record sets it touches.
type Service struct {
	store   PersistentStore
	now     func() time.Time
	loc     *time.Location
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the clock used to resolve "today".
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the time zone calendar days are computed in.
func WithLocation(loc *time.Location) ServiceOption {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the metrics recorder.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	svc := &Service{
		store:   store,
		now:     time.Now,
		loc:     time.Local,
		logger:  noopLogger{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Today returns the current calendar day in the service time zone.
func (s *Service) Today() string {
	return s.now().In(s.loc).Format(dateLayout)
}

// resolveDate trims raw, defaults it to today and checks the layout.
func (s *Service) resolveDate(raw string) (string, error) {
	date := strings.TrimSpace(raw)
	if date == "" {
		return s.Today(), nil
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return "", domain.Validationf("invalid date %q, expected YYYY-MM-DD", date)
	}
	return date, nil
}

// run wraps an operation with tracing, metrics and logging and converts any
// failure into a typed domain error.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := domain.Classify(op, fn(ctx))
	span.End(err)
	kind := domain.KindOf(err)
	s.metrics.Observe(ctx, op, kind, time.Since(started))
	if err == nil {
		s.logger.Debug("operation completed", "operation", op, "duration", time.Since(started))
		return nil
	}
	if kind == domain.KindStorage {
		s.logger.Error("operation failed", "operation", op, "kind", kind, "error", err)
	} else {
		s.logger.Warn("operation rejected", "operation", op, "kind", kind, "error", err)
	}
	return err
}

// transact runs fn in one store transaction over sets and logs any
// non-blocking rule findings.
func (s *Service) transact(ctx context.Context, op string, sets []RecordSet, fn func(Transaction) error) (Result, error) {
	res, err := s.store.RunInTransaction(ctx, sets, fn)
	if err != nil {
		return res, err
	}
	for _, w := range res.Warnings() {
		s.logger.Warn("rule warning", "operation", op, "rule", w.Rule, "entity", w.Entity, "id", w.EntityID, "message", w.Message)
	}
	return res, nil
}

func requireAdmin(actor Actor) error {
	if !actor.IsAdmin() {
		return domain.Forbiddenf("operation reserved to administrators")
	}
	return nil
}
