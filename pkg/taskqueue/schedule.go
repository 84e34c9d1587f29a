package taskqueue

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SpecKind describes the normalized kind of a schedule string: either a cron
// expression (robfig/cron) or a fixed interval.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec represents a parsed schedule string.
//
// Supported forms:
//   - Cron (crontab.guru-style): "*/5 * * * *", "55 * * * *", "@hourly", "@every 55m"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//
// Optional prefixes:
//   - "cron:" forces cron parsing
//   - "interval:" or "every:" forces interval parsing
type ParsedSpec struct {
	Kind  SpecKind
	Cron  string
	Every time.Duration
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule parses a schedule string into either a cron expression or an
// interval duration.
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	if strings.HasPrefix(low, "cron:") {
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return ParsedSpec{}, fmt.Errorf("cron schedule required after 'cron:'")
		}
		if _, err := cron.ParseStandard(expr); err != nil {
			return ParsedSpec{}, fmt.Errorf("invalid cron schedule %q: %w", expr, err)
		}
		return ParsedSpec{Kind: SpecCron, Cron: expr}, nil
	}
	for _, prefix := range []string{"interval:", "every:"} {
		if strings.HasPrefix(low, prefix) {
			d, err := parseInterval(strings.TrimSpace(s[len(prefix):]))
			if err != nil {
				return ParsedSpec{}, err
			}
			return ParsedSpec{Kind: SpecInterval, Every: d}, nil
		}
	}

	// Heuristics: whitespace or a leading '@' means cron.
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		if _, err := cron.ParseStandard(s); err != nil {
			return ParsedSpec{}, fmt.Errorf("invalid cron schedule %q: %w", s, err)
		}
		return ParsedSpec{Kind: SpecCron, Cron: s}, nil
	}

	if reHHMM.MatchString(s) {
		d, err := parseHHMMDuration(s)
		if err != nil {
			return ParsedSpec{}, err
		}
		return ParsedSpec{Kind: SpecInterval, Every: d}, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return ParsedSpec{}, fmt.Errorf("interval must be > 0")
		}
		return ParsedSpec{Kind: SpecInterval, Every: d}, nil
	}

	return ParsedSpec{}, fmt.Errorf(
		"invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '02:30', or duration like '55m')",
		raw,
	)
}

func parseInterval(v string) (time.Duration, error) {
	if v == "" {
		return 0, fmt.Errorf("interval required")
	}
	if reHHMM.MatchString(v) {
		return parseHHMMDuration(v)
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '55m'/'2h30m')", v)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}

// parseHHMMDuration reads "HH:MM" as a duration: "02:30" is 2h30m.
func parseHHMMDuration(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	var hh int
	for i := 0; i < len(m[1]); i++ {
		hh = hh*10 + int(m[1][i]-'0')
	}
	mm := int(m[2][0]-'0')*10 + int(m[2][1]-'0')
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}

// NewCronTask builds a repeating FuncTask whose next run follows a cron
// schedule instead of a fixed interval: after each run the task reports the
// time until the next cron activation as its interval. Cron schedules use
// wall-clock time.
func NewCronTask(spec, waitingPrefix string, fn func(t *FuncTask) RunAgain) (*FuncTask, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	t := NewFuncTask(0, waitingPrefix, fn)
	t.intervalFn = func() time.Duration {
		now := time.Now()
		d := sched.Next(now).Sub(now)
		if d < time.Millisecond {
			d = time.Millisecond
		}
		return d
	}
	return t, nil
}

// NewScheduledTask builds a FuncTask from any supported schedule string.
func NewScheduledTask(schedule, waitingPrefix string, fn func(t *FuncTask) RunAgain) (*FuncTask, error) {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return nil, err
	}
	switch ps.Kind {
	case SpecCron:
		return NewCronTask(ps.Cron, waitingPrefix, fn)
	default:
		return NewFuncTask(ps.Every, waitingPrefix, fn), nil
	}
}
