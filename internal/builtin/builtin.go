// Package builtin turns task declarations from the config file into queue
// tasks. Two kinds are supported: "command" (shell command per activation)
// and "speedtest" (network speed measurement per activation).
package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskq/internal/config"
	"taskq/internal/journal"
	"taskq/pkg/logx"
	"taskq/pkg/taskqueue"
)

// Deps carries the shared services a builtin task needs at run time.
type Deps struct {
	Log     logx.Logger
	Journal journal.Store // may be nil (journal disabled)
}

type runFunc func(ctx context.Context) (summary string, err error)

// Build constructs the queue task declared by tc. The config must have been
// validated; Build still rejects unknown kinds.
func Build(tc config.TaskConfig, deps Deps) (*taskqueue.FuncTask, error) {
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}

	kind := strings.ToLower(strings.TrimSpace(tc.Kind))
	var run runFunc
	switch kind {
	case "command":
		run = commandRun(tc.Command)
	case "speedtest":
		run = speedtestRun()
	default:
		return nil, fmt.Errorf("task %q: unknown kind %q", tc.Name, tc.Kind)
	}

	timeout, err := config.ParseDurationField(tc.Name+".timeout", tc.Timeout)
	if err != nil {
		return nil, err
	}

	prefix := tc.Prefix
	if prefix == "" {
		prefix = "Next " + tc.Name + " run in "
	}

	interval := time.Duration(0)
	if s := strings.TrimSpace(tc.Schedule); s != "" {
		t, err := taskqueue.NewScheduledTask(s, prefix, wrap(tc, kind, run, timeout, deps))
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", tc.Name, err)
		}
		if tc.Paused {
			t.SetPaused(true)
		}
		return t, nil
	}

	t := taskqueue.NewFuncTask(interval, prefix, wrap(tc, kind, run, timeout, deps))
	if tc.Paused {
		t.SetPaused(true)
	}
	return t, nil
}

// wrap runs the kind-specific body with timeout and cancellation plumbing,
// reports progress through the task status and journals the activation.
func wrap(tc config.TaskConfig, kind string, run runFunc, timeout time.Duration, deps Deps) func(*taskqueue.FuncTask) taskqueue.RunAgain {
	return func(t *taskqueue.FuncTask) taskqueue.RunAgain {
		ctx := context.Background()
		var cancel context.CancelFunc
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, timeout)
		} else {
			ctx, cancel = context.WithCancel(ctx)
		}
		defer cancel()

		// Cancelling the task mid-run aborts the body.
		go func() {
			select {
			case <-t.Done():
				cancel()
			case <-ctx.Done():
			}
		}()

		t.SetMessage("Running " + tc.Name + "...")
		started := time.Now()
		summary, err := run(ctx)
		took := time.Since(started)

		rec := journal.RunRecord{
			Task:     tc.Name,
			TaskID:   t.ID(),
			Kind:     kind,
			Started:  started,
			Duration: took,
		}
		if err != nil {
			rec.Error = err.Error()
			deps.Log.Warn("task run failed",
				logx.String("task", tc.Name),
				logx.Duration("took", took),
				logx.Err(err))
			t.SetMessage("Failed: " + err.Error())
		} else {
			deps.Log.Info("task run done",
				logx.String("task", tc.Name),
				logx.Duration("took", took),
				logx.String("summary", summary))
			if summary != "" {
				t.SetMessage(summary)
			}
		}
		if deps.Journal != nil {
			jctx, jcancel := context.WithTimeout(context.Background(), 2*time.Second)
			if jerr := deps.Journal.AppendRun(jctx, rec); jerr != nil {
				deps.Log.Warn("journal append failed", logx.String("task", tc.Name), logx.Err(jerr))
			}
			jcancel()
		}

		if t.Cancelled() {
			return taskqueue.RunAgainNo
		}
		return taskqueue.RunAgainYes
	}
}
