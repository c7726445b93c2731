package media

// MinimizeHooks is the core's entire dependency on the platform tray /
// single-instance facility: a way to ask the UI loop to hide the
// window, and a way for that facility to ask the UI loop to bring it
// back. Both directions are modeled as plain hooks rather than an
// interface, since the tray integration itself lives outside this
// module and is driven by whatever the UI loop chooses to wire up.
type MinimizeHooks struct {
	onRequestMinimize func()
	restoreRequested  chan struct{}
}

// NewMinimizeHooks builds a MinimizeHooks. onRequestMinimize is called
// whenever RequestMinimize is invoked; a nil value is treated as a
// no-op so callers that never wire a tray can still use
// SignalRestoreRequested/PollRestoreRequested.
func NewMinimizeHooks(onRequestMinimize func()) *MinimizeHooks {
	if onRequestMinimize == nil {
		onRequestMinimize = func() {}
	}
	return &MinimizeHooks{
		onRequestMinimize: onRequestMinimize,
		restoreRequested:  make(chan struct{}, 1),
	}
}

// RequestMinimize asks the tray facility to hide the main window.
func (h *MinimizeHooks) RequestMinimize() {
	h.onRequestMinimize()
}

// SignalRestoreRequested is called by the tray facility when the user
// asks to bring the window back. Coalesces: a restore request that
// hasn't been polled yet is not queued twice.
func (h *MinimizeHooks) SignalRestoreRequested() {
	select {
	case h.restoreRequested <- struct{}{}:
	default:
	}
}

// PollRestoreRequested is called by the UI loop once per tick. It
// reports true once for any number of SignalRestoreRequested calls
// made since the previous poll that returned true.
func (h *MinimizeHooks) PollRestoreRequested() bool {
	select {
	case <-h.restoreRequested:
		return true
	default:
		return false
	}
}
