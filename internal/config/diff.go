package config

import (
	"reflect"
	"sort"
	"strings"

	"taskq/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) structured attrs for logging, and (3) the names of tasks whose
// definition changed (added, removed or edited).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Queue (pool resize applies live; name changes do not)
	if oldCfg.Queue.Workers != newCfg.Queue.Workers ||
		strings.TrimSpace(oldCfg.Queue.Name) != strings.TrimSpace(newCfg.Queue.Name) {
		changed = append(changed, "queue")
		attrs = append(attrs,
			logx.Int("queue.workers", newCfg.Queue.Workers),
			logx.Bool("queue.name_changed", strings.TrimSpace(oldCfg.Queue.Name) != strings.TrimSpace(newCfg.Queue.Name)),
		)
	}

	// Journal. Nil/empty driver means disabled.
	oJ, nJ := oldCfg.Journal, newCfg.Journal
	if strings.TrimSpace(oJ.Driver) != strings.TrimSpace(nJ.Driver) ||
		strings.TrimSpace(oJ.Path) != strings.TrimSpace(nJ.Path) ||
		strings.TrimSpace(oJ.BusyTimeout) != strings.TrimSpace(nJ.BusyTimeout) {
		changed = append(changed, "journal")
		attrs = append(attrs,
			logx.String("journal.driver", strings.TrimSpace(nJ.Driver)),
			logx.Bool("journal.path_set", strings.TrimSpace(nJ.Path) != ""),
		)
	}

	// Tasks (summarize only; per-task details at debug)
	taskChanged := diffTasks(oldCfg.Tasks, newCfg.Tasks)
	if len(taskChanged) > 0 {
		changed = append(changed, "tasks")
		attrs = append(attrs,
			logx.Int("tasks.changed_count", len(taskChanged)),
			logx.Int("tasks.total", len(newCfg.Tasks)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, taskChanged
}

func diffTasks(oldT, newT []TaskConfig) []string {
	oldM := make(map[string]TaskConfig, len(oldT))
	for _, t := range oldT {
		oldM[t.Name] = t
	}
	newM := make(map[string]TaskConfig, len(newT))
	for _, t := range newT {
		newM[t.Name] = t
	}

	set := map[string]struct{}{}
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		o, oOK := oldM[name]
		n, nOK := newM[name]
		if oOK != nOK || !reflect.DeepEqual(o, n) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
