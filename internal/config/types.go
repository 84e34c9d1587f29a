package config

import (
	"fmt"
	"strings"

	"taskq/pkg/taskqueue"
)

// Config is the daemon configuration. It is decoded strictly (unknown fields
// are rejected) from JSON or YAML.
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Queue   QueueConfig   `json:"queue"`
	Journal JournalConfig `json:"journal,omitempty"`
	Tasks   []TaskConfig  `json:"tasks"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// QueueConfig controls the worker pool. Workers may be changed at runtime
// via config hot-reload; the pool resizes live.
type QueueConfig struct {
	Name    string `json:"name,omitempty"`
	Workers int    `json:"workers,omitempty"`
}

// JournalConfig controls the optional run journal.
//
// Driver values:
//   - "file": dependency-free JSON Lines backend
//   - "sqlite": SQLite database file (build with -tags sqlite)
//
// If Driver is empty or "none", the journal is disabled.
type JournalConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// TaskConfig declares one scheduled task.
//
// Kind values:
//   - "command": run a shell command each activation
//   - "speedtest": run a network speed measurement each activation
//
// Schedule accepts cron specs ("*/5 * * * *", "@hourly"), Go durations
// ("55m") or HH:MM intervals ("02:30"). An empty schedule means run once.
type TaskConfig struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Schedule string `json:"schedule,omitempty"`
	Command  string `json:"command,omitempty"`
	Timeout  string `json:"timeout,omitempty"` // Go duration string, per run
	Prefix   string `json:"prefix,omitempty"`  // waiting-message prefix
	Paused   bool   `json:"paused,omitempty"`
}

// Validate checks the config for problems a reload must reject.
func (c *Config) Validate() error {
	if c.Queue.Workers < 0 {
		return fmt.Errorf("queue.workers: must be >= 0")
	}
	if _, err := ParseDurationField("journal.busy_timeout", c.Journal.BusyTimeout); err != nil {
		return err
	}
	seen := map[string]bool{}
	for i, t := range c.Tasks {
		where := fmt.Sprintf("tasks[%d]", i)
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return fmt.Errorf("%s: name required", where)
		}
		if seen[name] {
			return fmt.Errorf("%s: duplicate task name %q", where, name)
		}
		seen[name] = true

		switch strings.ToLower(strings.TrimSpace(t.Kind)) {
		case "command":
			if strings.TrimSpace(t.Command) == "" {
				return fmt.Errorf("%s: command required for kind \"command\"", where)
			}
		case "speedtest":
		default:
			return fmt.Errorf("%s: unknown kind %q", where, t.Kind)
		}

		if s := strings.TrimSpace(t.Schedule); s != "" {
			if _, err := taskqueue.ParseSchedule(s); err != nil {
				return fmt.Errorf("%s: %w", where, err)
			}
		}
		if _, err := ParseDurationField(where+".timeout", t.Timeout); err != nil {
			return err
		}
	}
	return nil
}
