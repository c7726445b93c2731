package media

import "testing"

func TestRequestMinimizeInvokesCallback(t *testing.T) {
	called := false
	h := NewMinimizeHooks(func() { called = true })
	h.RequestMinimize()
	if !called {
		t.Error("expected onRequestMinimize to run")
	}
}

func TestNewMinimizeHooksToleratesNilCallback(t *testing.T) {
	h := NewMinimizeHooks(nil)
	h.RequestMinimize()
}

func TestSignalRestoreRequestedCoalesces(t *testing.T) {
	h := NewMinimizeHooks(nil)
	h.SignalRestoreRequested()
	h.SignalRestoreRequested()
	h.SignalRestoreRequested()

	if !h.PollRestoreRequested() {
		t.Fatal("expected first poll to report a pending restore")
	}
	if h.PollRestoreRequested() {
		t.Error("repeated signals before a poll should coalesce into a single pending restore")
	}
}

func TestPollRestoreRequestedFalseWhenNothingSignaled(t *testing.T) {
	h := NewMinimizeHooks(nil)
	if h.PollRestoreRequested() {
		t.Error("expected no pending restore on a fresh hooks value")
	}
}
