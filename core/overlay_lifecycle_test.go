package core

import (
	"testing"
	"time"
)

func TestStartReplayRegistersAndFinishRemoves(t *testing.T) {
	h := StartReplay(DigestFromBytes([]byte("tx")), 0)
	defer FinishReplay(h)

	if _, ok := ReplayStatus(h.ID); !ok {
		t.Fatal("expected the new handle to be registered")
	}
	FinishReplay(h)
	if _, ok := ReplayStatus(h.ID); ok {
		t.Fatal("expected the handle to be removed after FinishReplay")
	}
}

func TestReplayHandleCancelIsIdempotentAndObservable(t *testing.T) {
	h := StartReplay(DigestFromBytes([]byte("tx")), 0)
	defer FinishReplay(h)

	if h.Cancelled() {
		t.Fatal("expected a fresh handle to not be cancelled")
	}
	h.Cancel()
	if !h.Cancelled() {
		t.Fatal("expected Cancel to be observable via Cancelled")
	}
	h.Cancel() // must not panic on a closed channel
}

func TestReplayHandleDeadlineExceeded(t *testing.T) {
	h := StartReplay(DigestFromBytes([]byte("tx")), time.Millisecond)
	defer FinishReplay(h)

	if h.DeadlineExceeded(h.Started) {
		t.Fatal("expected the deadline to not be exceeded at start time")
	}
	if !h.DeadlineExceeded(h.Started.Add(time.Second)) {
		t.Fatal("expected the deadline to be exceeded a second later")
	}
}

func TestReplayHandleNoDeadlineNeverExceeded(t *testing.T) {
	h := StartReplay(DigestFromBytes([]byte("tx")), 0)
	defer FinishReplay(h)
	if h.DeadlineExceeded(time.Now().Add(24 * time.Hour)) {
		t.Fatal("expected a zero deadline to never be exceeded")
	}
}

func TestListReplaysIncludesRegisteredHandles(t *testing.T) {
	h := StartReplay(DigestFromBytes([]byte("tx-list")), 0)
	defer FinishReplay(h)

	found := false
	for _, r := range ListReplays() {
		if r.ID == h.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("expected ListReplays to include the newly started handle")
	}
}
