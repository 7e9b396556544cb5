package core

import (
	"bytes"
	"context"
	"encoding/json"
	"expvar"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"

	"colazione/pkg/domain"
)

type logCall struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	calls []logCall
}

func (c *captureLogger) Debug(msg string, args ...any) { c.add("debug", msg, args) }
func (c *captureLogger) Info(msg string, args ...any)  { c.add("info", msg, args) }
func (c *captureLogger) Warn(msg string, args ...any)  { c.add("warn", msg, args) }
func (c *captureLogger) Error(msg string, args ...any) { c.add("error", msg, args) }

func (c *captureLogger) add(level, msg string, args []any) {
	c.calls = append(c.calls, logCall{level: level, msg: msg, args: args})
}

func (c *captureLogger) count(level, msg string) int {
	n := 0
	for _, call := range c.calls {
		if call.level == level && call.msg == msg {
			n++
		}
	}
	return n
}

type metricsCall struct {
	op      string
	outcome domain.ErrorKind
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, outcome domain.ErrorKind, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, outcome: outcome})
}

func (c *captureMetricsRecorder) has(op string, outcome domain.ErrorKind) bool {
	for _, call := range c.calls {
		if call.op == op && call.outcome == outcome {
			return true
		}
	}
	return false
}

type failingStore struct {
	PersistentStore
	err error
}

func (f failingStore) RunInTransaction(context.Context, []RecordSet, func(Transaction) error) (Result, error) {
	return Result{}, f.err
}

func (f failingStore) Read(context.Context, ...RecordSet) (Snapshot, error) {
	return Snapshot{}, f.err
}

func TestServiceReportsOutcomes(t *testing.T) {
	logger := &captureLogger{}
	metrics := &captureMetricsRecorder{}
	tracer := NewJSONTracer(nil)
	svc := NewInMemoryService(NewDefaultRulesEngine(), WithLogger(logger), WithMetricsRecorder(metrics), WithTracer(tracer))
	ctx := context.Background()
	root := Actor{Username: "root", Role: RoleAdmin}

	if _, _, err := svc.SeedAdmin(ctx, UserInput{Username: "root", Password: "pw", Group: "Office"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := svc.CreateGroup(ctx, root, "Office"); err == nil {
		t.Fatalf("expected conflict")
	}
	if _, err := svc.ListUsers(ctx, Actor{Username: "alice"}); err == nil {
		t.Fatalf("expected forbidden")
	}

	if !metrics.has("seed_admin", "") || !metrics.has("create_group", domain.KindConflict) || !metrics.has("list_users", domain.KindForbidden) {
		t.Fatalf("unexpected metrics %+v", metrics.calls)
	}
	if logger.count("warn", "operation rejected") != 2 {
		t.Fatalf("expected two rejections, got %+v", logger.calls)
	}
	if logger.count("debug", "operation completed") != 1 {
		t.Fatalf("expected one completion, got %+v", logger.calls)
	}
	entries := tracer.Entries()
	if len(entries) != 3 || entries[0].Operation != "seed_admin" || entries[1].Outcome != "conflict" {
		t.Fatalf("unexpected spans %+v", entries)
	}
}

func TestServiceLogsStorageFailuresAtError(t *testing.T) {
	logger := &captureLogger{}
	svc := NewService(failingStore{err: context.DeadlineExceeded}, WithLogger(logger))
	_, err := svc.GetMenu(context.Background())
	if !strings.Contains(err.Error(), "could not save") || domain.KindOf(err) != domain.KindStorage {
		t.Fatalf("expected storage failure, got %v", err)
	}
	if logger.count("error", "operation failed") != 1 {
		t.Fatalf("expected error log, got %+v", logger.calls)
	}
}

func TestServiceLogsRuleWarnings(t *testing.T) {
	logger := &captureLogger{}
	svc := NewInMemoryService(NewDefaultRulesEngine(), WithLogger(logger))
	ctx := context.Background()
	root := Actor{Username: "root", Role: RoleAdmin}
	if _, _, err := svc.SeedAdmin(ctx, UserInput{Username: "root", Password: "pw", Group: "Office"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, _, err := svc.AddMenuItem(ctx, root, MenuItemInput{Category: "drinks", Name: "Espresso", Options: []string{"Single"}}); err != nil {
		t.Fatalf("menu: %v", err)
	}
	order := map[string]any{"drink": map[string]any{"item": "Espresso", "variant": "Single"}}
	if _, _, err := svc.SubmitOrder(ctx, OrderRequest{Username: "root", Group: "Elsewhere", Order: order}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if logger.count("warn", "rule warning") != 1 {
		t.Fatalf("expected rule warning log, got %+v", logger.calls)
	}
}

func TestLogrusLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetFormatter(&logrus.JSONFormatter{})
	base.SetLevel(logrus.DebugLevel)
	logger := NewLogrusLogger(base)

	logger.Warn("operation rejected", "operation", "create_user", "kind", domain.KindConflict, "dangling")
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["msg"] != "operation rejected" || line["level"] != "warning" {
		t.Fatalf("unexpected line %+v", line)
	}
	if line["operation"] != "create_user" || line["kind"] != "conflict" || line["!BADKEY"] != "dangling" {
		t.Fatalf("fields not mapped: %+v", line)
	}

	buf.Reset()
	logger.Debug("plain")
	if !strings.Contains(buf.String(), `"msg":"plain"`) {
		t.Fatalf("expected debug line, got %q", buf.String())
	}
	if NewLogrusLogger(nil).entry.Logger != logrus.StandardLogger() {
		t.Fatalf("nil logger should fall back to the standard logger")
	}
}

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if !strings.HasPrefix(rec.Name(), "colazione_operations_") {
		t.Fatalf("unexpected generated name %q", rec.Name())
	}
	ctx := context.Background()
	rec.Observe(ctx, "submit_order", "", 2*time.Millisecond)
	rec.Observe(ctx, "submit_order", domain.KindValidation, 3*time.Millisecond)
	rec.Observe(ctx, "", "", time.Millisecond)

	snap := rec.Snapshot()
	st := snap["submit_order"]
	if st.Calls[OutcomeOK] != 1 || st.Calls["validation_failure"] != 1 {
		t.Fatalf("unexpected calls %+v", st.Calls)
	}
	if st.TotalMS != 5 || st.SlowestMS != 3 {
		t.Fatalf("unexpected latency %+v", st)
	}
	if len(snap) != 1 {
		t.Fatalf("empty operation should be ignored: %+v", snap)
	}
	published := expvar.Get(rec.Name())
	if published == nil || !strings.Contains(published.String(), "submit_order") {
		t.Fatalf("expvar export missing: %v", published)
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx := context.Background()
	rec.Observe(ctx, "register_payment", "", 10*time.Millisecond)
	rec.Observe(ctx, "register_payment", "", 20*time.Millisecond)
	rec.Observe(ctx, "register_payment", domain.KindNotFound, time.Millisecond)

	if got := testutil.ToFloat64(rec.operations.WithLabelValues("register_payment", OutcomeOK)); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(rec.operations.WithLabelValues("register_payment", "not_found")); got != 1 {
		t.Fatalf("expected 1 not_found, got %v", got)
	}
	if n := testutil.CollectAndCount(rec.latency, "colazione_operation_duration_seconds"); n != 1 {
		t.Fatalf("expected one latency series, got %d", n)
	}
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestJSONTracerWritesLines(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), "export_snapshot")
	span.End(nil)
	_, span = tracer.Start(context.Background(), "restore_snapshot")
	span.End(domain.Conflictf("restore requires an empty store"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two lines, got %q", buf.String())
	}
	var entry JSONTraceEntry
	if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry.Operation != "restore_snapshot" || entry.Outcome != "conflict" || entry.Error != "restore requires an empty store" {
		t.Fatalf("unexpected entry %+v", entry)
	}
}
