package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ReplayHandle tracks the lifecycle of one in-flight replay: its
// cancellation signal and the bookkeeping needed to answer status queries
// while it runs (spec §5 "Cancellation and timeouts", §9 "Ownership of
// replay state").
//
// Tracked in a process-wide map guarded by a mutex, keyed by a generated
// UUID, since a replay is this domain's isolation unit.
type ReplayHandle struct {
	ID        string
	Digest    Digest
	Started   time.Time
	Deadline  time.Time
	cancelCh  chan struct{}
	cancelled bool
	aborted   bool
	mu        sync.Mutex
}

// Cancel requests cancellation; the executor observes this at the next
// command boundary (spec §5: "A cancellation signal aborts the next safe
// boundary: between PTB commands, or when the current provider call
// returns").
func (h *ReplayHandle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return
	}
	h.cancelled = true
	close(h.cancelCh)
}

// Cancelled reports whether cancellation has been requested.
func (h *ReplayHandle) Cancelled() bool {
	select {
	case <-h.cancelCh:
		return true
	default:
		return false
	}
}

// DeadlineExceeded reports whether the replay's wall-clock deadline has
// passed. A zero Deadline means no deadline was set.
func (h *ReplayHandle) DeadlineExceeded(now time.Time) bool {
	return !h.Deadline.IsZero() && now.After(h.Deadline)
}

var (
	replayRegistryMu sync.RWMutex
	replayRegistry   = make(map[string]*ReplayHandle)
)

// StartReplay registers a new handle for digest with an optional wall-clock
// timeout (zero means no deadline) and returns it for the caller to drive
// the executor with.
func StartReplay(digest Digest, timeout time.Duration) *ReplayHandle {
	h := &ReplayHandle{
		ID:       uuid.NewString(),
		Digest:   digest,
		Started:  time.Now(),
		cancelCh: make(chan struct{}),
	}
	if timeout > 0 {
		h.Deadline = h.Started.Add(timeout)
	}
	replayRegistryMu.Lock()
	replayRegistry[h.ID] = h
	replayRegistryMu.Unlock()
	logrus.WithFields(logrus.Fields{
		"replay_id": h.ID,
		"digest":    digest.Hex(),
	}).Debug("replay lifecycle: started")
	return h
}

// FinishReplay removes a completed or aborted replay's handle from the
// global registry; no on-disk state is corrupted by this since the base
// store is immutable and overlays are process-local (spec §5).
func FinishReplay(h *ReplayHandle) {
	replayRegistryMu.Lock()
	delete(replayRegistry, h.ID)
	replayRegistryMu.Unlock()
}

// ReplayStatus returns the handle registered under id, if any.
func ReplayStatus(id string) (*ReplayHandle, bool) {
	replayRegistryMu.RLock()
	defer replayRegistryMu.RUnlock()
	h, ok := replayRegistry[id]
	return h, ok
}

// ListReplays returns every currently in-flight replay handle.
func ListReplays() []*ReplayHandle {
	replayRegistryMu.RLock()
	defer replayRegistryMu.RUnlock()
	out := make([]*ReplayHandle, 0, len(replayRegistry))
	for _, h := range replayRegistry {
		out = append(out, h)
	}
	return out
}
