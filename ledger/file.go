package ledger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ineyio/infergate"
)

// FileStore is a LedgerStore backed by a JSON Lines file. Each Append
// writes one line; appends are serialized by a mutex so lines never
// interleave.
type FileStore struct {
	path string

	mu   sync.Mutex
	file *os.File
}

var _ infergate.LedgerStore = (*FileStore)(nil)

// OpenFileStore opens or creates the ledger file at path.
func OpenFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("infergate/ledger: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("infergate/ledger: open %s: %w", path, err)
	}
	return &FileStore{path: path, file: f}, nil
}

// Append writes entry as one JSON line and syncs it to disk.
func (s *FileStore) Append(_ context.Context, entry infergate.LedgerEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("infergate/ledger: encode entry: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("infergate/ledger: store closed")
	}
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("infergate/ledger: write: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("infergate/ledger: sync: %w", err)
	}
	return nil
}

// Recent scans the file and returns up to limit most recent entries,
// oldest first.
func (s *FileStore) Recent(_ context.Context, limit int) ([]infergate.LedgerEntry, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("infergate/ledger: open %s: %w", s.path, err)
	}
	defer f.Close()

	// Ring buffer of the last limit entries.
	ring := make([]infergate.LedgerEntry, 0, min(limit, 1024))
	next := 0

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var e infergate.LedgerEntry
			if derr := json.Unmarshal(line, &e); derr != nil {
				return nil, fmt.Errorf("infergate/ledger: decode line: %w", derr)
			}
			if len(ring) < limit {
				ring = append(ring, e)
			} else {
				ring[next] = e
				next = (next + 1) % limit
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("infergate/ledger: read: %w", err)
		}
	}

	if len(ring) < limit || next == 0 {
		return ring, nil
	}
	out := make([]infergate.LedgerEntry, 0, len(ring))
	out = append(out, ring[next:]...)
	out = append(out, ring[:next]...)
	return out, nil
}

// Close closes the underlying file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
