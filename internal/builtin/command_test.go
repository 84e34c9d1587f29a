package builtin

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taskq/internal/config"
	"taskq/internal/journal"
	"taskq/pkg/logx"
	"taskq/pkg/taskqueue"
)

func TestCommandRun(t *testing.T) {
	t.Parallel()

	run := commandRun("echo hello")
	out, err := run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "hello", out)
}

func TestCommandRunFailureIncludesOutput(t *testing.T) {
	t.Parallel()

	run := commandRun("echo broken >&2; exit 3")
	_, err := run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken")
}

func TestCommandRunTimeout(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	run := commandRun("sleep 5")
	_, err := run(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "aborted")
}

func TestTail(t *testing.T) {
	t.Parallel()

	require.Equal(t, "short", tail("short", 10))

	long := strings.Repeat("x", 50) + "\nlast line"
	got := tail(long, 12)
	require.Equal(t, "last line", got)
}

func TestBuildUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := Build(config.TaskConfig{Name: "x", Kind: "ftp"}, Deps{})
	require.Error(t, err)
}

func TestBuildCommandTaskRunsAndJournals(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	st, err := journal.Open(journal.Config{Driver: "file", Path: dir + "/j.json"}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	task, err := Build(config.TaskConfig{
		Name:     "hello",
		Kind:     "command",
		Command:  "echo hi",
		Schedule: "1h",
		Prefix:   "Next hello in ",
	}, Deps{Journal: st})
	require.NoError(t, err)
	require.Equal(t, time.Hour, task.Interval())
	require.Equal(t, "Next hello in ", task.WaitingPrefix())

	got := task.Perform()
	require.Equal(t, taskqueue.RunAgainYes, got)
	require.Equal(t, "hi", task.Status().Message)

	runs, err := st.RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "hello", runs[0].Task)
	require.Empty(t, runs[0].Error)
}

func TestBuildHonorsInitialPause(t *testing.T) {
	t.Parallel()

	task, err := Build(config.TaskConfig{
		Name:     "p",
		Kind:     "command",
		Command:  "true",
		Schedule: "1m",
		Paused:   true,
	}, Deps{})
	require.NoError(t, err)
	require.True(t, task.Paused())
}

func TestBuildCancelledTaskStopsRepeating(t *testing.T) {
	t.Parallel()

	task, err := Build(config.TaskConfig{
		Name:     "c",
		Kind:     "command",
		Command:  "true",
		Schedule: "1m",
	}, Deps{})
	require.NoError(t, err)

	task.Cancel()
	require.Equal(t, taskqueue.RunAgainNo, task.Perform())
}
