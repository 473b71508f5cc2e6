package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	coreaudit "github.com/kilianp07/tendering/core/audit"
	"github.com/kilianp07/tendering/core/factory"
)

func init() {
	_ = coreaudit.RegisterStore("jsonl", func(conf map[string]any) (coreaudit.Store, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewJSONLStore(c.Path)
	})
}

// JSONLStore appends one JSON document per decision to a file.
type JSONLStore struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewJSONLStore opens or creates the file at path.
func NewJSONLStore(path string) (*JSONLStore, error) {
	if path == "" {
		return nil, errors.New("audit: jsonl path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	return &JSONLStore{path: path, f: f}, nil
}

// Append writes r as a single line and syncs the file.
func (s *JSONLStore) Append(_ context.Context, r coreaudit.Record) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return os.ErrClosed
	}
	if _, err := s.f.Write(append(b, '\n')); err != nil {
		return err
	}
	return s.f.Sync()
}

// List scans the file for the tender's records in append order.
func (s *JSONLStore) List(ctx context.Context, tenderID string) ([]coreaudit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var out []coreaudit.Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for line := 1; sc.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var r coreaudit.Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("audit: %s line %d: %w", s.path, line, err)
		}
		if r.TenderID == tenderID {
			out = append(out, r)
		}
	}
	return out, sc.Err()
}

// Close closes the file.
func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
