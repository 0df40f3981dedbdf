package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"DealScanner/internal/domain"
	"DealScanner/internal/ports"
)

// FileStore keeps the ledger as an append-only text file, one
// "<id>\t<RFC3339Nano>" line per delivered listing.
type FileStore struct {
	mu              sync.Mutex
	path            string
	file            *os.File
	writer          *bufio.Writer
	syncEveryCommit bool
}

var _ ports.LedgerStore = (*FileStore)(nil)

// OpenFileStore opens (creating if needed) the ledger file at path. With
// syncEveryCommit each Append is fsynced before returning; otherwise writes
// are buffered until Flush.
func OpenFileStore(path string, syncEveryCommit bool) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger file: %w", err)
	}
	return &FileStore{
		path:            path,
		file:            f,
		writer:          bufio.NewWriter(f),
		syncEveryCommit: syncEveryCommit,
	}, nil
}

// LoadAll reads every entry. Lines without a tab are bare ids; blank lines are skipped.
func (s *FileStore) LoadAll(ctx context.Context) ([]domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger file: %w", err)
	}
	defer f.Close()

	var entries []domain.LedgerEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		entries = append(entries, parseLine(line))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ledger file: %w", err)
	}
	return entries, nil
}

func parseLine(line string) domain.LedgerEntry {
	id, stamp, ok := strings.Cut(line, "\t")
	entry := domain.LedgerEntry{ID: strings.TrimSpace(id)}
	if !ok {
		return entry
	}
	if at, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(stamp)); err == nil {
		entry.DeliveredAt = at
	}
	return entry
}

// Append writes one entry.
func (s *FileStore) Append(_ context.Context, entry domain.LedgerEntry) error {
	if strings.ContainsAny(entry.ID, "\t\n") {
		return fmt.Errorf("ledger id %q contains a separator", entry.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("ledger file is closed")
	}
	s.writer.WriteString(entry.ID)
	s.writer.WriteByte('\t')
	s.writer.WriteString(entry.DeliveredAt.UTC().Format(time.RFC3339Nano))
	if err := s.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write ledger entry: %w", err)
	}
	if !s.syncEveryCommit {
		return nil
	}
	return s.flushLocked()
}

// Flush writes buffered entries and fsyncs the file.
func (s *FileStore) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.flushLocked()
}

func (s *FileStore) flushLocked() error {
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("flush ledger file: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync ledger file: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	flushErr := s.flushLocked()
	closeErr := s.file.Close()
	s.file = nil
	return errors.Join(flushErr, closeErr)
}
