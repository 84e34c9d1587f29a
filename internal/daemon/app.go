// Package daemon wires the config file, logging, journal and the task queue
// into a runnable service.
package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/time/rate"

	"taskq/internal/builtin"
	"taskq/internal/config"
	"taskq/internal/journal"
	"taskq/pkg/logx"
	"taskq/pkg/taskqueue"
)

const defaultQueueName = "taskq"

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service

	store journal.Store
	queue *taskqueue.Queue

	// tasks maps config task names to the queue task ids currently running
	// for them, so reloads can cancel and replace changed definitions.
	tasksMu sync.Mutex
	tasks   map[string]int64

	// applied is the config currently in effect. The manager commits a
	// reloaded config before publishing it, so diffs are taken against this
	// copy rather than Manager.Get().
	applied *config.Config

	sub        taskqueue.Handle
	statusKick chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "daemon"))

	// Journal (optional)
	var store journal.Store
	if jc, err := mapJournalConfig(cfg); err != nil {
		logSvc.Close()
		return nil, err
	} else if jc.Driver != "" {
		store, err = journal.Open(jc, log.With(logx.String("comp", "journal")))
		if err != nil {
			logSvc.Close()
			return nil, err
		}
		log.Info("journal enabled", logx.String("driver", jc.Driver))
	}

	name := cfg.Queue.Name
	if name == "" {
		name = defaultQueueName
	}
	q := taskqueue.New(name, cfg.Queue.Workers,
		taskqueue.WithLogger(log.With(logx.String("comp", "queue"))))

	a := &App{
		cfgPath:    cfgPath,
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		store:      store,
		queue:      q,
		tasks:      map[string]int64{},
		applied:    cfg,
		statusKick: make(chan struct{}, 1),
	}

	for _, tc := range cfg.Tasks {
		if err := a.addTask(tc); err != nil {
			a.Stop()
			return nil, err
		}
	}
	return a, nil
}

func (a *App) Queue() *taskqueue.Queue { return a.queue }

func (a *App) addTask(tc config.TaskConfig) error {
	t, err := builtin.Build(tc, builtin.Deps{
		Log:     a.log.With(logx.String("task", tc.Name)),
		Journal: a.store,
	})
	if err != nil {
		return err
	}
	a.queue.Add(t)
	a.tasksMu.Lock()
	a.tasks[tc.Name] = t.ID()
	a.tasksMu.Unlock()
	a.log.Info("task added",
		logx.String("task", tc.Name),
		logx.String("kind", tc.Kind),
		logx.Int64("task_id", t.ID()),
		logx.Bool("paused", tc.Paused))
	return nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// Startup summary from the previous run, if any.
	if a.store != nil {
		if runs, err := a.store.RecentRuns(runCtx, 5); err == nil && len(runs) > 0 {
			for _, r := range runs {
				a.log.Debug("previous run",
					logx.String("task", r.Task),
					logx.Time("started", r.Started),
					logx.Duration("took", r.Duration),
					logx.String("err", r.Error))
			}
		}
	}

	// Status monitor. The change callback runs inside the queue's status
	// lock, so it only drops a token here; the goroutine does the reading.
	a.sub = a.queue.Subscribe(func() {
		select {
		case a.statusKick <- struct{}{}:
		default:
		}
	})
	a.wg.Add(1)
	go a.monitor(runCtx)

	// Config hot-reload.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})
	updates := a.cfgm.Subscribe(1)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-updates:
				if !ok {
					return
				}
				a.applyConfig(cfg)
			}
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("started",
		logx.Int("workers", a.queue.Workers()),
		logx.String("config", a.cfgPath))
	return nil
}

// monitor logs queue status whenever tasks report changes, throttled so a
// chatty task can't flood the log.
func (a *App) monitor(ctx context.Context) {
	defer a.wg.Done()
	lim := rate.NewLimiter(rate.Every(500*time.Millisecond), 1)
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.statusKick:
		}
		if err := lim.Wait(ctx); err != nil {
			return
		}
		a.queue.ViewStatuses(func(statuses []taskqueue.TaskStatus) {
			for _, st := range statuses {
				a.log.Debug("status",
					logx.Int64("task_id", st.TaskID),
					logx.String("msg", st.Message),
					logx.Bool("paused", st.Paused),
					logx.Bool("complete", st.Complete),
					logx.Int64("rev", st.Rev))
			}
		})
	}
}

func (a *App) applyConfig(cfg *config.Config) {
	changed, attrs, taskNames := config.SummarizeConfigChange(a.applied, cfg)
	a.applied = cfg
	if len(changed) == 0 {
		return
	}

	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a.queue.SetWorkers(cfg.Queue.Workers)

	// Replace changed task definitions: cancel the old instance (removal
	// happens after any in-flight run finishes), then add the new one.
	newDefs := map[string]config.TaskConfig{}
	for _, tc := range cfg.Tasks {
		newDefs[tc.Name] = tc
	}
	for _, name := range taskNames {
		a.tasksMu.Lock()
		id, had := a.tasks[name]
		if had {
			delete(a.tasks, name)
		}
		a.tasksMu.Unlock()
		if had {
			a.queue.Cancel(id)
			a.log.Info("task removed", logx.String("task", name), logx.Int64("task_id", id))
		}
		if tc, ok := newDefs[name]; ok {
			if err := a.addTask(tc); err != nil {
				a.log.Warn("task rebuild failed", logx.String("task", name), logx.Err(err))
			}
		}
	}

	a.log.Info("config reloaded", append([]logx.Field{logx.Any("sections", changed)}, attrs...)...)
}

func (a *App) Stop() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if a.cancel != nil {
		a.cancel()
	}
	if a.sub != 0 {
		a.queue.Unsubscribe(a.sub)
	}
	a.queue.Close()
	a.wg.Wait()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("journal close failed", logx.Err(err))
		}
	}
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

// defaultBusyTimeout keeps sqlite writers from failing fast under brief
// contention when the config leaves journal.busy_timeout unset.
const defaultBusyTimeout = 5 * time.Second

func mapJournalConfig(cfg *config.Config) (journal.Config, error) {
	busy, err := config.ParseDurationOrDefault("journal.busy_timeout", cfg.Journal.BusyTimeout, defaultBusyTimeout)
	if err != nil {
		return journal.Config{}, err
	}
	return journal.Config{
		Driver:      cfg.Journal.Driver,
		Path:        cfg.Journal.Path,
		BusyTimeout: busy,
	}, nil
}
