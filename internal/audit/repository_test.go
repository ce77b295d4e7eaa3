package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/controlnet-core/internal/infrastructure/database"
	_ "github.com/nerrad567/controlnet-core/migrations" // registers the schema
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "audit.db"), WALMode: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestSQLiteRepository_CreateAndList(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	entries := []*AuditLog{
		{Action: "alarm_raised", EntityType: "alarm", EntityID: "a1", Severity: "warning", Source: "rule:r1", CreatedAt: base},
		{Action: "interlock_triggered", EntityType: "interlock", EntityID: "high-pressure", Severity: "critical", Source: "safety",
			Details: map[string]any{"action": "VENT_TO_ATMOSPHERE"}, CreatedAt: base.Add(500 * time.Millisecond)},
		{Action: "emergency_mode_reset", EntityType: "safety", Source: "safety", CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if e.ID == "" {
			t.Error("Create() did not assign an ID")
		}
	}

	res, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 3 || len(res.Logs) != 3 {
		t.Fatalf("List() total=%d len=%d, want 3/3", res.Total, len(res.Logs))
	}
	if res.Logs[0].Action != "emergency_mode_reset" || res.Logs[2].Action != "alarm_raised" {
		t.Errorf("List() not newest first: %s, %s", res.Logs[0].Action, res.Logs[2].Action)
	}
	if res.Logs[0].Severity != "" || res.Logs[0].EntityID != "" {
		t.Errorf("nullable columns = %q/%q, want empty", res.Logs[0].Severity, res.Logs[0].EntityID)
	}
	if got := res.Logs[1].Details["action"]; got != "VENT_TO_ATMOSPHERE" {
		t.Errorf("Details[action] = %v", got)
	}
	if !res.Logs[1].CreatedAt.Equal(base.Add(500 * time.Millisecond)) {
		t.Errorf("CreatedAt = %v, want sub-second precision kept", res.Logs[1].CreatedAt)
	}
	if res.Limit != defaultPageSize {
		t.Errorf("Limit = %d, want %d", res.Limit, defaultPageSize)
	}
}

func TestSQLiteRepository_ListFilters(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	for i, sev := range []string{"info", "critical", "critical", "warning"} {
		if err := repo.Create(ctx, &AuditLog{
			Action:     "alarm_raised",
			EntityType: "alarm",
			Severity:   sev,
			Source:     "test",
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantLen   int
	}{
		{"severity", Filter{Severity: "critical"}, 2, 2},
		{"since", Filter{Since: base.Add(2 * time.Minute)}, 2, 2},
		{"until", Filter{Until: base.Add(2 * time.Minute)}, 2, 2},
		{"window", Filter{Since: base.Add(time.Minute), Until: base.Add(3 * time.Minute)}, 2, 2},
		{"no match", Filter{EntityType: "loop"}, 0, 0},
		{"page", Filter{Limit: 1, Offset: 1}, 4, 1},
		{"limit clamped", Filter{Limit: 1000}, 4, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.wantTotal || len(res.Logs) != tt.wantLen {
				t.Errorf("List() total=%d len=%d, want %d/%d", res.Total, len(res.Logs), tt.wantTotal, tt.wantLen)
			}
			if res.Limit > maxPageSize {
				t.Errorf("Limit = %d exceeds %d", res.Limit, maxPageSize)
			}
		})
	}
}

func TestSQLiteRepository_Get(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	entry := &AuditLog{Action: "permit_expired", EntityType: "permit", EntityID: "p1", Source: "safety"}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.Get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.EntityID != "p1" || got.Action != "permit_expired" {
		t.Errorf("Get() = %+v", got)
	}

	if _, err := repo.Get(ctx, "aud-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteRepository_Prune(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	for i := range 5 {
		if err := repo.Create(ctx, &AuditLog{
			Action:     "rule_triggered",
			EntityType: "rule",
			Source:     "automation",
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	n, err := repo.Prune(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() removed %d, want 2", n)
	}

	res, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 3 {
		t.Errorf("remaining = %d, want 3", res.Total)
	}
	if oldest := res.Logs[len(res.Logs)-1].CreatedAt; !oldest.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("oldest remaining = %v", oldest)
	}
}
