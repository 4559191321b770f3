package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseBytesStrict(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		file    string
		data    string
		wantErr string
	}{
		{"json ok", "c.json", `{"logging":{"level":"debug"}}`, ""},
		{"unknown field", "c.json", `{"logging":{"lvl":"debug"}}`, "unknown field"},
		{"trailing data", "c.json", `{"logging":{}} {"logging":{}}`, "trailing data"},
		{"trailing garbage", "c.json", `{"logging":{}} x`, "trailing data"},
		{"trailing unknown object", "c.json", `{"logging":{}} {"nope":1}`, "trailing data"},
		{"yaml ok", "c.yaml", "scheduler:\n  escalate_every: \"25\"\n  no_preempt: true\n", ""},
		{"yaml unknown", "c.yml", "schedulr:\n  no_preempt: true\n", "unknown field"},
		{"yaml inline provisioning", "c.yaml", "provisioning:\n  enabled: false\n  max_workers: 4\n", ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseBytes(tc.file, []byte(tc.data))
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("ParseBytes err = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("ParseBytes err = %v, want %q", err, tc.wantErr)
			}
		})
	}
}

func TestParseBytesYAMLValues(t *testing.T) {
	t.Parallel()

	cfg, err := ParseBytes("c.yaml", []byte("scheduler:\n  escalate_every: \"25\"\n  no_preempt: true\nprovisioning:\n  enabled: false\n  max_workers: 4\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Scheduler.EscalateEvery != "25" || !cfg.Scheduler.NoPreempt {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Provisioning.IsEnabled() {
		t.Fatal("provisioning enabled, want disabled")
	}
	if got := cfg.Provisioning.Pool().MaxWorkers; got != 4 {
		t.Fatalf("max_workers = %d, want 4", got)
	}
}

func TestExampleConfigIsValid(t *testing.T) {
	t.Parallel()

	m := NewConfigManager("example.yaml")
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if m.Get() != cfg {
		t.Fatal("Load did not commit")
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Logging: LoggingConfig{Level: "loud"},
		Storage: &StorageConfig{Driver: "file", PersistEvery: "every:soon"},
		Debug:   DebugConfig{ReadTimeout: "fast"},
	}
	cfg.Scheduler.EscalateEvery = "sometimes"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate = nil, want errors")
	}
	for _, want := range []string{"logging.level", "scheduler.escalate_every", "storage.path", "storage.persist_every", "debug.read_timeout"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
	if err := Validate(Default()); err != nil {
		t.Fatalf("Validate(Default()) = %v", err)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	old := Default()
	next := Default()
	next.Scheduler.NoPreempt = true
	next.Debug.Token = "s3cret"
	off := false
	next.Provisioning = &ProvisioningConfig{Enabled: &off}

	changed, attrs := SummarizeConfigChange(old, next)
	want := []string{"debug", "provisioning", "scheduler"}
	if strings.Join(changed, ",") != strings.Join(want, ",") {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs")
	}
	if got := RestartRequired(changed); len(got) != 0 {
		t.Fatalf("RestartRequired = %v, want none", got)
	}

	next2 := Default()
	next2.Sim.Seed = 9
	changed, _ = SummarizeConfigChange(old, next2)
	if got := RestartRequired(changed); len(got) != 1 || got[0] != "sim" {
		t.Fatalf("RestartRequired = %v, want [sim]", got)
	}

	if changed, _ := SummarizeConfigChange(old, Default()); len(changed) != 0 {
		t.Fatalf("identical configs changed = %v", changed)
	}
}

func TestWatchPublishesValidChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "hivemind.json")
	write := func(s string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(s), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write(`{"logging":{"level":"info"}}`)

	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)
	write(`{"logging":{"level":"loud"}}`)
	time.Sleep(600 * time.Millisecond)
	write(`{"logging":{"level":"debug"}}`)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-sub:
			if cfg.Logging.Level == "debug" {
				if m.Get().Logging.Level != "debug" {
					t.Fatal("published config not committed")
				}
				return
			}
			if cfg.Logging.Level == "loud" {
				t.Fatal("invalid config was published")
			}
		case <-deadline:
			t.Fatal("no config published")
		}
	}
}
