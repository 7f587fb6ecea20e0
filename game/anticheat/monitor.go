package anticheat

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrBlocked is returned for every action of a blocked user.
var ErrBlocked = errors.New("user is blocked")

// Reason names a violation.
type Reason string

const (
	ReasonTooFast              Reason = "too_fast"
	ReasonPerfectTiming        Reason = "perfect_timing"
	ReasonImpossibleFlipSpeed  Reason = "impossible_flip_speed"
	ReasonImpossibleMatchCount Reason = "impossible_match_count"
	ReasonStateDesync          Reason = "state_desync"
	ReasonInvalidAction        Reason = "invalid_action"
)

// Timing thresholds
const (
	tooFastWindow       = 10
	tooFastInterval     = 50 * time.Millisecond
	tooFastLimit        = 3
	perfectTimingWindow = 5
	minFlipInterval     = 100 * time.Millisecond
)

// ActionFlip is the action type subject to the flip speed check.
const ActionFlip = "flip"

// Options configures a Monitor.
type Options struct {
	HistorySize    int
	BlockThreshold int
	Retention      time.Duration
	SweepInterval  time.Duration
	Now            func() time.Time
	Logger         *zap.Logger
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{
		HistorySize:    100,
		BlockThreshold: 5,
		Retention:      time.Hour,
		SweepInterval:  5 * time.Minute,
		Now:            time.Now,
		Logger:         zap.NewNop(),
	}
}

// Violation is one recorded reason.
type Violation struct {
	Reason      Reason `json:"reason"`
	Detail      string `json:"detail,omitempty"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// Status is the administrative view of a user's record.
type Status struct {
	UserID         string      `json:"user_id"`
	ViolationCount int         `json:"violation_count"`
	Reasons        []Violation `json:"reasons"`
	Blocked        bool        `json:"blocked"`
	HistorySize    int         `json:"history_size"`
}

type actionEntry struct {
	actionType  string
	timestampMs int64
	digest      string
}

type record struct {
	mu         sync.Mutex
	history    []actionEntry
	violations []Violation
	blocked    bool
	dead       bool // set under mu once the record has left the map
}

// Monitor is safe for concurrent use. The map is guarded by an RWMutex and
// each record carries its own mutex, so users never contend with each other.
type Monitor struct {
	mu      sync.RWMutex
	records map[string]*record
	opts    Options
	logger  *zap.Logger
}

// New creates a monitor. Zero-valued options fall back to DefaultOptions.
func New(opts Options) *Monitor {
	def := DefaultOptions()
	if opts.HistorySize <= 0 {
		opts.HistorySize = def.HistorySize
	}
	if opts.BlockThreshold <= 0 {
		opts.BlockThreshold = def.BlockThreshold
	}
	if opts.Retention <= 0 {
		opts.Retention = def.Retention
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = def.SweepInterval
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	if opts.Logger == nil {
		opts.Logger = def.Logger
	}
	return &Monitor{
		records: make(map[string]*record),
		opts:    opts,
		logger:  opts.Logger.Named("anticheat"),
	}
}

// Record appends an action to the user's history and runs the timing checks.
// It returns ErrBlocked when the user is blocked, including when this action
// pushed them over the threshold; the caller must then reject the action.
func (m *Monitor) Record(userID, actionType, digest string) ([]Reason, error) {
	rec := m.lockRecord(userID)
	defer rec.mu.Unlock()

	if rec.blocked {
		return nil, ErrBlocked
	}

	now := m.opts.Now().UnixMilli()
	rec.history = append(rec.history, actionEntry{actionType: actionType, timestampMs: now, digest: digest})
	if over := len(rec.history) - m.opts.HistorySize; over > 0 {
		rec.history = append(rec.history[:0:0], rec.history[over:]...)
	}

	flags := checkTiming(rec.history)
	for _, reason := range flags {
		m.flagLocked(userID, rec, reason, "", now)
	}
	if rec.blocked {
		return flags, ErrBlocked
	}
	return flags, nil
}

// Flag records a violation and reports whether the user is now blocked.
func (m *Monitor) Flag(userID string, reason Reason, detail string) bool {
	rec := m.lockRecord(userID)
	defer rec.mu.Unlock()
	m.flagLocked(userID, rec, reason, detail, m.opts.Now().UnixMilli())
	return rec.blocked
}

// CompareDigest flags StateDesync when a client echoed a digest that differs
// from the authoritative one. An empty claim is not checked.
func (m *Monitor) CompareDigest(userID, claimed, authoritative string) bool {
	if claimed == "" || claimed == authoritative {
		return true
	}
	m.Flag(userID, ReasonStateDesync, "client digest "+claimed+" != "+authoritative)
	return false
}

// IsBlocked reports whether the user is blocked.
func (m *Monitor) IsBlocked(userID string) bool {
	m.mu.RLock()
	rec, ok := m.records[userID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.blocked
}

// Status returns the user's record. The boolean is false for unknown users.
func (m *Monitor) Status(userID string) (Status, bool) {
	m.mu.RLock()
	rec, ok := m.records[userID]
	m.mu.RUnlock()
	if !ok {
		return Status{UserID: userID, Reasons: []Violation{}}, false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return Status{
		UserID:         userID,
		ViolationCount: len(rec.violations),
		Reasons:        append([]Violation{}, rec.violations...),
		Blocked:        rec.blocked,
		HistorySize:    len(rec.history),
	}, true
}

// Clear drops the user's record, lifting any block.
func (m *Monitor) Clear(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[userID]
	if !ok {
		return false
	}
	rec.mu.Lock()
	rec.dead = true
	delete(m.records, userID)
	rec.mu.Unlock()
	m.logger.Info("suspicion record cleared", zap.String("user_id", userID))
	return true
}

// Sweep discards history and violations older than the retention window and
// forgets users left with nothing. Blocked users are kept until cleared.
// It returns the number of records removed.
func (m *Monitor) Sweep() int {
	cutoff := m.opts.Now().Add(-m.opts.Retention).UnixMilli()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for userID, rec := range m.records {
		rec.mu.Lock()
		rec.history = keepAfter(rec.history, cutoff, func(e actionEntry) int64 { return e.timestampMs })
		rec.violations = keepAfter(rec.violations, cutoff, func(v Violation) int64 { return v.TimestampMs })
		if !rec.blocked && len(rec.history) == 0 && len(rec.violations) == 0 {
			rec.dead = true
			delete(m.records, userID)
			removed++
		}
		rec.mu.Unlock()
	}
	if removed > 0 {
		m.logger.Debug("swept suspicion records", zap.Int("removed", removed))
	}
	return removed
}

// Run sweeps periodically until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *Monitor) record(userID string) *record {
	m.mu.RLock()
	rec, ok := m.records[userID]
	m.mu.RUnlock()
	if ok {
		return rec
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok = m.records[userID]; ok {
		return rec
	}
	rec = &record{}
	m.records[userID] = rec
	return rec
}

// lockRecord returns the user's live record with its mutex held. A record
// removed by Clear or Sweep while we waited for its lock is skipped.
func (m *Monitor) lockRecord(userID string) *record {
	for {
		rec := m.record(userID)
		rec.mu.Lock()
		if !rec.dead {
			return rec
		}
		rec.mu.Unlock()
	}
}

func (m *Monitor) flagLocked(userID string, rec *record, reason Reason, detail string, nowMs int64) {
	rec.violations = append(rec.violations, Violation{Reason: reason, Detail: detail, TimestampMs: nowMs})
	if over := len(rec.violations) - m.opts.HistorySize; over > 0 {
		rec.violations = append(rec.violations[:0:0], rec.violations[over:]...)
	}

	m.logger.Warn("suspicious action",
		zap.String("user_id", userID),
		zap.String("reason", string(reason)),
		zap.String("detail", detail),
		zap.Int("violations", len(rec.violations)),
	)

	if !rec.blocked && len(rec.violations) >= m.opts.BlockThreshold {
		rec.blocked = true
		m.logger.Warn("user blocked", zap.String("user_id", userID), zap.Int("violations", len(rec.violations)))
	}
}

// checkTiming inspects the tail of the history.
func checkTiming(history []actionEntry) []Reason {
	var flags []Reason
	n := len(history)
	if n < 2 {
		return nil
	}

	intervals := make([]int64, 0, tooFastWindow)
	for i := n - 1; i > 0 && len(intervals) < tooFastWindow; i-- {
		intervals = append(intervals, history[i].timestampMs-history[i-1].timestampMs)
	}

	fast := 0
	for _, d := range intervals {
		if d < tooFastInterval.Milliseconds() {
			fast++
		}
	}
	if fast > tooFastLimit {
		flags = append(flags, ReasonTooFast)
	}

	if len(intervals) >= perfectTimingWindow {
		same := true
		for _, d := range intervals[1:perfectTimingWindow] {
			if d != intervals[0] {
				same = false
				break
			}
		}
		if same {
			flags = append(flags, ReasonPerfectTiming)
		}
	}

	last, prev := history[n-1], history[n-2]
	if last.actionType == ActionFlip && prev.actionType == ActionFlip &&
		last.timestampMs-prev.timestampMs < minFlipInterval.Milliseconds() {
		flags = append(flags, ReasonImpossibleFlipSpeed)
	}
	return flags
}

func keepAfter[T any](items []T, cutoff int64, ts func(T) int64) []T {
	out := items[:0]
	for _, it := range items {
		if ts(it) >= cutoff {
			out = append(out, it)
		}
	}
	return out
}
