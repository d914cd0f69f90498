package alert

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lumenlearn/pulse/internal/model"
)

func writeRuleFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alerts.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSeedRules(t *testing.T) {
	path := writeRuleFile(t, `
[[rule]]
name = "high-error-rate"
metric = "error_rate"
condition = "gt"
threshold = 5.0
window_minutes = 10
severity = "high"
channels = ["email", "slack"]

[[rule]]
name = "quiet-queue"
metric = "queue_depth"
condition = "lt"
threshold = 1.0
disabled = true
`)

	store := newFakeAlertStore()
	n, err := SeedRules(context.Background(), store, path)
	if err != nil {
		t.Fatalf("SeedRules: %v", err)
	}
	if n != 2 {
		t.Fatalf("seeded %d rules, want 2", n)
	}

	byName := make(map[string]*model.AlertRule)
	for _, r := range store.rules {
		byName[r.Name] = r
	}

	first := byName["high-error-rate"]
	if first == nil {
		t.Fatal("high-error-rate not upserted")
	}
	if first.Condition != model.OpGT || first.Threshold != 5.0 || first.WindowMinutes != 10 {
		t.Errorf("rule = %+v", first)
	}
	if first.Severity != model.SeverityHigh || !first.Enabled {
		t.Errorf("rule = %+v", first)
	}
	if len(first.Channels) != 2 {
		t.Errorf("channels = %v, want 2", first.Channels)
	}

	// Unset fields take defaults; disabled maps to Enabled = false.
	second := byName["quiet-queue"]
	if second == nil {
		t.Fatal("quiet-queue not upserted")
	}
	if second.Severity != model.SeverityMedium {
		t.Errorf("severity = %q, want default medium", second.Severity)
	}
	if second.WindowMinutes != 5 {
		t.Errorf("window = %d, want default 5", second.WindowMinutes)
	}
	if second.Enabled {
		t.Error("disabled rule seeded as enabled")
	}
}

func TestSeedRules_Reseed(t *testing.T) {
	path := writeRuleFile(t, `
[[rule]]
name = "high-error-rate"
metric = "error_rate"
condition = "gt"
threshold = 5.0
`)
	store := newFakeAlertStore()
	ctx := context.Background()
	if _, err := SeedRules(ctx, store, path); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	if _, err := SeedRules(ctx, store, path); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if len(store.rules) != 1 {
		t.Errorf("%d rules after reseed, want 1", len(store.rules))
	}
}

func TestSeedRules_InvalidCondition(t *testing.T) {
	path := writeRuleFile(t, `
[[rule]]
name = "bad"
metric = "error_rate"
condition = "greater_than"
threshold = 5.0
`)
	if _, err := SeedRules(context.Background(), newFakeAlertStore(), path); err == nil {
		t.Fatal("expected error for invalid condition")
	}
}

func TestSeedRules_MissingFile(t *testing.T) {
	if _, err := SeedRules(context.Background(), newFakeAlertStore(), "/nonexistent/alerts.toml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
