package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taskq/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"", "none", " None "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		require.NoError(t, err)
		require.Nil(t, st)
	}

	_, err := Open(Config{Driver: "redis"}, logx.Nop())
	require.Error(t, err)
}

func TestFileAppendAndRecent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, st.AppendRun(ctx, RunRecord{
			Task:     "ping",
			TaskID:   int64(i + 1),
			Kind:     "command",
			Started:  base.Add(time.Duration(i) * time.Minute),
			Duration: 250 * time.Millisecond,
		}))
	}

	runs, err := st.RecentRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	// Newest first.
	require.Equal(t, int64(5), runs[0].TaskID)
	require.Equal(t, int64(3), runs[2].TaskID)
	for _, r := range runs {
		require.NotEmpty(t, r.ID, "append assigns an id")
	}
}

func TestFileRecentSkipsCorruptLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.AppendRun(ctx, RunRecord{Task: "a", TaskID: 1}))

	// Simulate a crash mid-append.
	runsPath := filepath.Join(filepath.Dir(path), "journal.runs.jsonl")
	f, err := os.OpenFile(runsPath, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(`{"task": "torn`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	runs, err := st.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "a", runs[0].Task)
}

func TestFileClosedErrors(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	require.Error(t, st.AppendRun(context.Background(), RunRecord{Task: "x"}))
	_, err = st.RecentRuns(context.Background(), 1)
	require.Error(t, err)
}
