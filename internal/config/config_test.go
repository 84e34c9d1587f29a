package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestParseJSONStrict(t *testing.T) {
	t.Parallel()

	p := writeTemp(t, "config.json", `{
		"logging": {"level": "debug", "console": true},
		"queue": {"name": "main", "workers": 4},
		"tasks": [
			{"name": "ping", "kind": "command", "schedule": "30s", "command": "ping -c1 localhost"}
		]
	}`)

	m := NewManager(p)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Queue.Workers != 4 || cfg.Queue.Name != "main" {
		t.Fatalf("queue = %+v", cfg.Queue)
	}
	if len(cfg.Tasks) != 1 || cfg.Tasks[0].Name != "ping" {
		t.Fatalf("tasks = %+v", cfg.Tasks)
	}
	if got := m.Get(); got != cfg {
		t.Fatalf("Get returned %p, want committed %p", got, cfg)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	p := writeTemp(t, "config.json", `{"queue": {"workers": 2, "threads": 8}, "tasks": []}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()

	p := writeTemp(t, "config.json", `{"tasks": []}{"tasks": []}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatal("expected error for trailing data, got nil")
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	p := writeTemp(t, "config.yaml", `
logging:
  level: info
  console: true
queue:
  name: main
  workers: 2
tasks:
  - name: speed
    kind: speedtest
    schedule: "0 * * * *"
    prefix: "Next speedtest in "
  - name: once
    kind: command
    command: "true"
`)

	cfg, err := NewManager(p).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "info" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if len(cfg.Tasks) != 2 || cfg.Tasks[1].Schedule != "" {
		t.Fatalf("tasks = %+v", cfg.Tasks)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() *Config {
		return &Config{
			Queue: QueueConfig{Workers: 2},
			Tasks: []TaskConfig{
				{Name: "a", Kind: "command", Command: "echo hi", Schedule: "1m"},
			},
		}
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"ok", func(c *Config) {}, false},
		{"negative workers", func(c *Config) { c.Queue.Workers = -1 }, true},
		{"missing name", func(c *Config) { c.Tasks[0].Name = " " }, true},
		{"duplicate name", func(c *Config) { c.Tasks = append(c.Tasks, c.Tasks[0]) }, true},
		{"unknown kind", func(c *Config) { c.Tasks[0].Kind = "ftp" }, true},
		{"command without command", func(c *Config) { c.Tasks[0].Command = "" }, true},
		{"bad schedule", func(c *Config) { c.Tasks[0].Schedule = "every other day" }, true},
		{"bad timeout", func(c *Config) { c.Tasks[0].Timeout = "10 parsecs" }, true},
		{"bad busy timeout", func(c *Config) { c.Journal.BusyTimeout = "soon" }, true},
		{"speedtest kind ok", func(c *Config) { c.Tasks[0].Kind = "speedtest"; c.Tasks[0].Command = "" }, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Queue:   QueueConfig{Name: "main", Workers: 2},
		Tasks: []TaskConfig{
			{Name: "a", Kind: "command", Command: "echo a"},
			{Name: "b", Kind: "command", Command: "echo b"},
		},
	}
	newCfg := &Config{
		Logging: LoggingConfig{Level: "debug", Console: true},
		Queue:   QueueConfig{Name: "main", Workers: 4},
		Tasks: []TaskConfig{
			{Name: "a", Kind: "command", Command: "echo a"},
			{Name: "c", Kind: "speedtest"},
		},
	}

	changed, _, tasks := SummarizeConfigChange(oldCfg, newCfg)
	want := []string{"logging", "queue", "tasks"}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	for i := range want {
		if changed[i] != want[i] {
			t.Fatalf("changed = %v, want %v", changed, want)
		}
	}
	if len(tasks) != 2 || tasks[0] != "b" || tasks[1] != "c" {
		t.Fatalf("tasks = %v", tasks)
	}

	if c, _, _ := SummarizeConfigChange(newCfg, newCfg); len(c) != 0 {
		t.Fatalf("no-op diff reported %v", c)
	}
}

func TestSubscribePublish(t *testing.T) {
	t.Parallel()

	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	cfg := &Config{Queue: QueueConfig{Workers: 1}}
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatalf("got %p, want %p", got, cfg)
		}
	default:
		t.Fatal("no config delivered")
	}

	// Full buffer: oldest is dropped, newest delivered.
	first := &Config{Queue: QueueConfig{Workers: 2}}
	second := &Config{Queue: QueueConfig{Workers: 3}}
	m.publish(first)
	m.publish(second)
	if got := <-ch; got != second {
		t.Fatalf("got workers=%d, want newest", got.Queue.Workers)
	}
}

func TestWatchCancelDropsPendingReload(t *testing.T) {
	t.Parallel()

	p := writeTemp(t, "config.json", `{"queue": {"name": "main", "workers": 1}}`)
	m := NewManager(p)
	initial, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()

	// Let the watcher attach before touching the file.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(p, []byte(`{"queue": {"name": "main", "workers": 7}}`), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	// Cancel inside the debounce window, while the reload is still pending.
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	// A timer that survived shutdown would fire within 250ms; give it room.
	time.Sleep(400 * time.Millisecond)
	select {
	case cfg := <-ch:
		t.Fatalf("config published after cancel (workers=%d)", cfg.Queue.Workers)
	default:
	}
	if got := m.Get(); got != initial {
		t.Fatal("committed config replaced after cancel")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationField("x", "1500ms"); err != nil || d.String() != "1.5s" {
		t.Fatalf("got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "fast"); err == nil {
		t.Fatal("expected error")
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty should be zero, got %v, %v", d, err)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationOrDefault("x", "", 5*time.Second); err != nil || d != 5*time.Second {
		t.Fatalf("unset should take default, got %v, %v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "250ms", 5*time.Second); err != nil || d != 250*time.Millisecond {
		t.Fatalf("explicit value should win, got %v, %v", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "fast", 5*time.Second); err == nil {
		t.Fatal("invalid input must error, not fall back")
	}
}
