package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taskq/internal/config"
	"taskq/pkg/taskqueue"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestNewAppBuildsQueueAndTasks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := writeConfig(t, `{
		"logging": {"console": false},
		"queue": {"name": "main", "workers": 2},
		"journal": {"driver": "file", "path": "`+filepath.ToSlash(dir)+`/j.json"},
		"tasks": [
			{"name": "hello", "kind": "command", "command": "echo hi", "schedule": "1h"},
			{"name": "paused", "kind": "command", "command": "true", "schedule": "1h", "paused": true}
		]
	}`)

	app, err := NewApp(p)
	require.NoError(t, err)
	defer app.Stop()

	require.Equal(t, 2, app.Queue().Workers())

	var statuses []taskqueue.TaskStatus
	app.Queue().ViewStatuses(func(sts []taskqueue.TaskStatus) {
		statuses = append([]taskqueue.TaskStatus(nil), sts...)
	})
	require.Len(t, statuses, 2)

	paused := 0
	for _, st := range statuses {
		if st.Paused {
			paused++
		}
	}
	require.Equal(t, 1, paused)
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	p := writeConfig(t, `{"queue": {"workers": -1}, "tasks": []}`)
	_, err := NewApp(p)
	require.Error(t, err)
}

func TestApplyConfigResizesAndReplacesTasks(t *testing.T) {
	t.Parallel()

	p := writeConfig(t, `{
		"logging": {"console": false},
		"queue": {"workers": 1},
		"tasks": [
			{"name": "a", "kind": "command", "command": "echo a", "schedule": "1h"}
		]
	}`)

	app, err := NewApp(p)
	require.NoError(t, err)
	defer app.Stop()

	require.NoError(t, app.Start(context.Background()))

	oldID := app.tasks["a"]
	require.NotZero(t, oldID)

	next := &config.Config{
		Queue: config.QueueConfig{Workers: 3},
		Tasks: []config.TaskConfig{
			{Name: "a", Kind: "command", Command: "echo changed", Schedule: "2h"},
			{Name: "b", Kind: "command", Command: "echo b", Schedule: "30m"},
		},
	}
	require.NoError(t, next.Validate())
	app.applyConfig(next)

	require.Equal(t, 3, app.Queue().Workers())

	app.tasksMu.Lock()
	newA, hasA := app.tasks["a"]
	_, hasB := app.tasks["b"]
	app.tasksMu.Unlock()
	require.True(t, hasA)
	require.True(t, hasB)
	require.NotEqual(t, oldID, newA, "changed task must be rebuilt with a new id")

	// No-op reload leaves everything alone.
	app.applyConfig(next)
	app.tasksMu.Lock()
	same := app.tasks["a"]
	app.tasksMu.Unlock()
	require.Equal(t, newA, same)
}

func TestMapJournalConfigDefaultsBusyTimeout(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Journal.Driver = "sqlite"
	cfg.Journal.Path = "runs.db"

	jc, err := mapJournalConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, defaultBusyTimeout, jc.BusyTimeout, "unset busy_timeout must fall back to the default")

	cfg.Journal.BusyTimeout = "750ms"
	jc, err = mapJournalConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, 750*time.Millisecond, jc.BusyTimeout)

	cfg.Journal.BusyTimeout = "later"
	_, err = mapJournalConfig(cfg)
	require.Error(t, err)
}
