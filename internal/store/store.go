package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PostProcessor runs against each result file after its run group's rows
// have been flushed.
type PostProcessor func(ctx context.Context, h *Handle) error

// Store is the batch context shared by every simulation in a run group.
// It owns the lock table, the write queue, and one Handle per file.
// Safe for concurrent use.
type Store struct {
	locks   *lockTable
	queue   *writeQueue
	metrics *Metrics
	logger  *slog.Logger

	post      []PostProcessor
	exportDir string
	compress  bool

	mu      sync.Mutex
	handles map[string]*Handle
	closed  bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRegisterer registers the store metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Store) {
		s.metrics = NewMetrics(reg)
	}
}

// WithPostProcessor adds a step run per file by OnRunGroupCompleted.
func WithPostProcessor(p PostProcessor) Option {
	return func(s *Store) {
		s.post = append(s.post, p)
	}
}

// WithCSVExport exports every flushed file to dir after post-processing.
func WithCSVExport(dir string, compress bool) Option {
	return func(s *Store) {
		s.exportDir = dir
		s.compress = compress
	}
}

// New creates an empty store context. Nothing is opened until a file is used.
func New(opts ...Option) *Store {
	s := &Store{
		queue:   newWriteQueue(),
		logger:  slog.Default(),
		handles: make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	s.locks = newLockTable(s.metrics.LockWait)
	return s
}

// Metrics returns the store's collectors.
func (s *Store) Metrics() *Metrics {
	return s.metrics
}

// Handle returns the connection handle for file, creating it on first use.
// Paths are compared after conversion to absolute form.
func (s *Store) Handle(file string) (*Handle, error) {
	key, err := fileKey(file)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[key]
	if !ok {
		h = newHandle(key, s.locks, s.metrics, s.logger)
		s.handles[key] = h
	}
	return h, nil
}

// Writer returns a producer-side writer for file.
func (s *Store) Writer(file string) (*Writer, error) {
	key, err := fileKey(file)
	if err != nil {
		return nil, err
	}
	return &Writer{store: s, file: key}, nil
}

// Pending returns the number of queued entries for file.
func (s *Store) Pending(file string) int {
	key, err := fileKey(file)
	if err != nil {
		return 0
	}
	return s.queue.LenFor(key)
}

// OnRunGroupCompleted flushes every file with queued entries or an open
// handle, then runs post-processors and CSV export on each file that
// flushed cleanly. Errors are collected per file; one file's failure does
// not stop the others.
func (s *Store) OnRunGroupCompleted(ctx context.Context) error {
	files := s.touchedFiles()

	var errs []error
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.Flush(ctx, file); err != nil {
			errs = append(errs, err)
			if IsStoreUnavailable(err) {
				continue
			}
		}
		if err := s.finish(ctx, file); err != nil {
			errs = append(errs, err)
		}
	}

	s.logger.Info("run group completed", "files", len(files), "failed", len(errs))
	return errors.Join(errs...)
}

func (s *Store) finish(ctx context.Context, file string) error {
	h, err := s.Handle(file)
	if err != nil {
		return err
	}
	for _, p := range s.post {
		if err := p(ctx, h); err != nil {
			return fmt.Errorf("post-process %s: %w", file, err)
		}
	}
	if s.exportDir == "" {
		return nil
	}
	if _, err := h.ExportCSV(ctx, s.exportDir, s.compress); err != nil {
		return fmt.Errorf("export %s: %w", file, err)
	}
	return nil
}

func (s *Store) touchedFiles() []string {
	seen := make(map[string]bool)
	for _, f := range s.queue.Files() {
		seen[f] = true
	}

	s.mu.Lock()
	for f, h := range s.handles {
		if h.Connected() {
			seen[f] = true
		}
	}
	s.mu.Unlock()

	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Close rejects further writes, discards anything still queued, and
// disconnects every handle. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	handles := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	if n := s.queue.Close(); n > 0 {
		s.logger.Warn("discarding unflushed writes", "entries", n)
	}
	s.metrics.QueueDepth.Set(0)

	var errs []error
	for _, h := range handles {
		if err := h.Disconnect(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// fileKey resolves file to the absolute, cleaned path used as identity.
func fileKey(file string) (string, error) {
	if file == "" {
		return "", configurationError("result file not specified")
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", &StoreError{Code: CodeConfiguration, Message: "cannot resolve result file", File: file, Err: err}
	}
	return abs, nil
}
