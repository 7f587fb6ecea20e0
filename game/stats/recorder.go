package stats

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wricardo/memory-match/game/engine"
)

var ErrRecorderClosed = errors.New("recorder is closed")

// Recorder accepts the results of one finished session.
type Recorder interface {
	Record(ctx context.Context, results []engine.GameResult) error
}

// FileRecorder appends results to a JSON lines file.
type FileRecorder struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	logger *zap.Logger
}

// NewFileRecorder opens path for appending, creating parent directories.
func NewFileRecorder(path string, logger *zap.Logger) (*FileRecorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open results file: %w", err)
	}
	return &FileRecorder{path: path, file: f, logger: logger.Named("stats")}, nil
}

// Record writes one line per result. Lines that fail to encode are skipped
// and reported together.
func (r *FileRecorder) Record(ctx context.Context, results []engine.GameResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return ErrRecorderClosed
	}

	var errs error
	written := 0
	for _, res := range results {
		line, err := json.Marshal(res)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("encode result for %s: %w", res.UserID, err))
			continue
		}
		if _, err := r.file.Write(append(line, '\n')); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("write result for %s: %w", res.UserID, err))
			continue
		}
		written++
	}

	if len(results) > 0 {
		r.logger.Info("results recorded",
			zap.String("room_id", results[0].RoomID),
			zap.Int("written", written),
			zap.Int("failed", len(results)-written))
	}
	return errs
}

// Path returns the file the recorder appends to.
func (r *FileRecorder) Path() string {
	return r.path
}

// Close flushes and closes the file.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := multierr.Combine(r.file.Sync(), r.file.Close())
	r.file = nil
	return err
}

// MemoryRecorder keeps results in memory.
type MemoryRecorder struct {
	mu      sync.Mutex
	results []engine.GameResult
	notify  chan struct{}
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{notify: make(chan struct{}, 1)}
}

func (r *MemoryRecorder) Record(ctx context.Context, results []engine.GameResult) error {
	r.mu.Lock()
	r.results = append(r.results, results...)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
	return nil
}

// Results returns a copy of everything recorded so far.
func (r *MemoryRecorder) Results() []engine.GameResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engine.GameResult(nil), r.results...)
}

// Recorded is signalled after each Record call.
func (r *MemoryRecorder) Recorded() <-chan struct{} {
	return r.notify
}

// ReadFile reads back a JSON lines results file.
func ReadFile(path string) ([]engine.GameResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var out []engine.GameResult
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var res engine.GameResult
		if err := dec.Decode(&res); err != nil {
			return out, fmt.Errorf("decode results: %w", err)
		}
		out = append(out, res)
	}
	return out, nil
}
