package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskq/pkg/logx"
)

// fileStore is a dependency-free journal backend.
//
// Files:
//   - <prefix>.runs.jsonl (append-only JSON Lines)
//
// RecentRuns re-reads the file; it is meant for startup summaries and
// debugging, not hot paths.
type fileStore struct {
	log logx.Logger

	mu       sync.Mutex
	runsPath string
	runsFile *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("journal.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	runsPath := prefix + ".runs.jsonl"
	f, err := os.OpenFile(runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:      log,
		runsPath: runsPath,
		runsFile: f,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return nil
	}
	err := s.runsFile.Close()
	s.runsFile = nil
	return err
}

func (s *fileStore) AppendRun(ctx context.Context, r RunRecord) error {
	_ = ctx
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Started.IsZero() {
		r.Started = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return errors.New("run journal closed")
	}
	return json.NewEncoder(s.runsFile).Encode(r)
}

func (s *fileStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	_ = ctx
	if limit <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	path := s.runsPath
	closed := s.runsFile == nil
	s.mu.Unlock()
	if closed {
		return nil, errors.New("run journal closed")
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	// Ring over the last `limit` decodable lines. Corrupt lines are skipped
	// (a crash mid-append leaves at most one).
	ring := make([]RunRecord, 0, limit)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var r RunRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if len(ring) == limit {
			copy(ring, ring[1:])
			ring = ring[:limit-1]
		}
		ring = append(ring, r)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	// Newest first.
	for i, j := 0, len(ring)-1; i < j; i, j = i+1, j-1 {
		ring[i], ring[j] = ring[j], ring[i]
	}
	return ring, nil
}
