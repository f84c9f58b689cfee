package metric

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/netpulse-io/netpulse-core/internal/infrastructure/database"
	_ "github.com/netpulse-io/netpulse-core/migrations"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "netpulse.db"),
		WALMode:     true,
		BusyTimeout: 5000,
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func testIdentity() Identity {
	return Identity{
		Name:          "Ping",
		Key:           "ping",
		FieldName:     "reachable",
		MainTags:      map[string]string{"object_id": "dev-01", "content_type": "device"},
		Configuration: "ping",
	}
}

func TestGetOrCreate(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	m, created, err := repo.GetOrCreate(ctx, testIdentity())
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !created {
		t.Error("first call should create")
	}
	if m.ID == "" {
		t.Error("metric should have an ID")
	}
	if m.IsHealthy != nil || m.IsHealthyTolerant != nil {
		t.Error("new metric should start in unknown health state")
	}

	again, created, err := repo.GetOrCreate(ctx, testIdentity())
	if err != nil {
		t.Fatalf("GetOrCreate second call: %v", err)
	}
	if created {
		t.Error("second call should not create")
	}
	if again.ID != m.ID {
		t.Errorf("expected same record, got %s and %s", m.ID, again.ID)
	}
}

func TestGetOrCreateTagOrderIndependent(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	a := testIdentity()
	b := testIdentity()
	b.MainTags = map[string]string{"content_type": "device", "object_id": "dev-01"}

	m1, _, err := repo.GetOrCreate(ctx, a)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	m2, created, err := repo.GetOrCreate(ctx, b)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if created || m1.ID != m2.ID {
		t.Error("identical tag sets must resolve to one metric regardless of map order")
	}
}

func TestGetOrCreateConcurrent(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	const workers = 50
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[string]int)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, _, err := repo.GetOrCreate(ctx, testIdentity())
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			mu.Lock()
			ids[m.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(ids) != 1 {
		t.Fatalf("expected one metric record, got %d: %v", len(ids), ids)
	}
	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row, got %d", n)
	}
}

func TestGetOrCreateInvalidIdentity(t *testing.T) {
	repo := openTestRepo(t)

	for _, id := range []Identity{
		{Name: "", Key: "ping", FieldName: "rtt"},
		{Name: "Ping", Key: "bad key", FieldName: "rtt"},
		{Name: "Ping", Key: "ping", FieldName: "rtt; DROP TABLE"},
		{Name: "Ping", Key: "ping", FieldName: "rtt", MainTags: map[string]string{"": "x"}},
	} {
		_, _, err := repo.GetOrCreate(context.Background(), id)
		if !errors.Is(err, ErrInvalidIdentity) {
			t.Errorf("identity %+v: expected ErrInvalidIdentity, got %v", id, err)
		}
	}
}

func TestUpdateHealth(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	m, _, err := repo.GetOrCreate(ctx, testIdentity())
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	first := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	state := State{
		Healthy:         boolPtr(false),
		HealthyTolerant: boolPtr(false),
		FirstBreachAt:   &first,
	}
	if err := repo.UpdateHealth(ctx, m.ID, state); err != nil {
		t.Fatalf("UpdateHealth: %v", err)
	}

	got, err := repo.GetByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.IsHealthy == nil || *got.IsHealthy {
		t.Error("is_healthy not persisted")
	}
	if got.IsHealthyTolerant == nil || *got.IsHealthyTolerant {
		t.Error("is_healthy_tolerant not persisted")
	}
	if got.FirstBreachAt == nil || !got.FirstBreachAt.Equal(first) {
		t.Errorf("first_breach_at not persisted: %v", got.FirstBreachAt)
	}

	// Clearing back to healthy nils the breach marker.
	if err := repo.UpdateHealth(ctx, m.ID, State{
		Healthy:         boolPtr(true),
		HealthyTolerant: boolPtr(true),
	}); err != nil {
		t.Fatalf("UpdateHealth clear: %v", err)
	}
	got, err = repo.GetByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.FirstBreachAt != nil {
		t.Error("first_breach_at should be cleared")
	}

	if err := repo.UpdateHealth(ctx, "missing", state); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown metric, got %v", err)
	}
}

func TestThresholds(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	m, _, err := repo.GetOrCreate(ctx, testIdentity())
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	th := &Threshold{
		MetricID:  m.ID,
		Severity:  "critical",
		Operator:  OperatorLessThan,
		Value:     1,
		Tolerance: 120 * time.Second,
	}
	if err := repo.SaveThreshold(ctx, th); err != nil {
		t.Fatalf("SaveThreshold: %v", err)
	}
	if th.ID == "" {
		t.Fatal("SaveThreshold should assign an ID")
	}

	// Same severity replaces, does not duplicate.
	replacement := &Threshold{
		MetricID:  m.ID,
		Severity:  "critical",
		Operator:  OperatorLessThan,
		Value:     0.5,
		Tolerance: 60 * time.Second,
	}
	if err := repo.SaveThreshold(ctx, replacement); err != nil {
		t.Fatalf("SaveThreshold replace: %v", err)
	}

	got, err := repo.Thresholds(ctx, m.ID)
	if err != nil {
		t.Fatalf("Thresholds: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 threshold, got %d", len(got))
	}
	if got[0].Value != 0.5 || got[0].Tolerance != 60*time.Second {
		t.Errorf("replacement not applied: %+v", got[0])
	}

	if err := repo.DeleteThreshold(ctx, got[0].ID); err != nil {
		t.Fatalf("DeleteThreshold: %v", err)
	}
	if err := repo.DeleteThreshold(ctx, got[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestThresholdsSeverityRank(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	m, _, err := repo.GetOrCreate(ctx, testIdentity())
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	// Inserted least urgent first; "info" also sorts before "warning"
	// alphabetically, so a collation-ordered result would differ.
	for _, severity := range []string{"info", "warning", "critical"} {
		th := &Threshold{
			MetricID: m.ID,
			Severity: severity,
			Operator: OperatorGreaterThan,
			Value:    90,
		}
		if err := repo.SaveThreshold(ctx, th); err != nil {
			t.Fatalf("SaveThreshold %s: %v", severity, err)
		}
	}

	got, err := repo.Thresholds(ctx, m.ID)
	if err != nil {
		t.Fatalf("Thresholds: %v", err)
	}
	want := []string{"critical", "warning", "info"}
	if len(got) != len(want) {
		t.Fatalf("expected %d thresholds, got %d", len(want), len(got))
	}
	for i, severity := range want {
		if got[i].Severity != severity {
			t.Errorf("thresholds[%d].Severity = %q, want %q", i, got[i].Severity, severity)
		}
	}
}

func TestSaveThresholdInvalid(t *testing.T) {
	repo := openTestRepo(t)

	for _, th := range []*Threshold{
		{MetricID: "", Severity: "critical", Operator: OperatorLessThan},
		{MetricID: "m", Severity: "critical", Operator: "<="},
		{MetricID: "m", Severity: "", Operator: OperatorLessThan},
		{MetricID: "m", Severity: "critical", Operator: OperatorLessThan, Tolerance: -time.Second},
	} {
		if err := repo.SaveThreshold(context.Background(), th); !errors.Is(err, ErrInvalidThreshold) {
			t.Errorf("threshold %+v: expected ErrInvalidThreshold, got %v", th, err)
		}
	}
}

func TestDeleteMetricCascades(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	m, _, err := repo.GetOrCreate(ctx, testIdentity())
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := repo.SaveThreshold(ctx, &Threshold{
		MetricID: m.ID, Severity: "critical", Operator: OperatorLessThan, Value: 1,
	}); err != nil {
		t.Fatalf("SaveThreshold: %v", err)
	}

	if err := repo.Delete(ctx, m.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	ths, err := repo.Thresholds(ctx, m.ID)
	if err != nil {
		t.Fatalf("Thresholds: %v", err)
	}
	if len(ths) != 0 {
		t.Errorf("thresholds should cascade on metric delete, got %d", len(ths))
	}
}

func TestList(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	for _, id := range []Identity{
		{Name: "Ping", Key: "ping", FieldName: "reachable", MainTags: map[string]string{"object_id": "a"}},
		{Name: "CPU", Key: "cpu", FieldName: "cpu_usage", MainTags: map[string]string{"object_id": "a"}},
		{Name: "Ping", Key: "ping", FieldName: "reachable", MainTags: map[string]string{"object_id": "b"}},
	} {
		if _, _, err := repo.GetOrCreate(ctx, id); err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}
	}

	metrics, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metrics) != 3 {
		t.Fatalf("expected 3 metrics, got %d", len(metrics))
	}
	if metrics[0].Name != "CPU" {
		t.Errorf("expected name ordering, got %q first", metrics[0].Name)
	}
}
