package bridge

// rejectEvent mirrors the engine's promise-reject notification kinds.
type rejectEvent int

const (
	rejectWithNoHandler rejectEvent = iota
	handlerAddedAfterReject
	rejectAfterResolved
	resolveAfterResolved
)

// rejectionTracker records which deferred guest values are currently
// unhandled-and-rejected. Entry presence is the single source of truth:
// inserted on "rejected with no handler", removed when a handler attaches
// late. Notifications on already-settled values are no-ops; the
// resolve-after-resolved case is deliberately not logged — engines emit it
// as a benign double-notification.
type rejectionTracker struct {
	pending map[uint64]string
}

func newRejectionTracker() *rejectionTracker {
	return &rejectionTracker{pending: make(map[uint64]string)}
}

// observe applies one engine notification for the given deferred-value
// identity. reason is meaningful only for rejectWithNoHandler. All
// transitions are idempotent; redundant notifications never leak entries.
func (t *rejectionTracker) observe(ev rejectEvent, promiseID uint64, reason string) {
	switch ev {
	case rejectWithNoHandler:
		t.pending[promiseID] = reason
	case handlerAddedAfterReject:
		delete(t.pending, promiseID)
	case rejectAfterResolved:
		// Already settled; must not re-insert.
	case resolveAfterResolved:
		// Intentionally silent.
	}
}

// has reports whether the identity is currently an unhandled rejection.
func (t *rejectionTracker) has(promiseID uint64) bool {
	_, ok := t.pending[promiseID]
	return ok
}

// snapshot copies the current unhandled set for host diagnostics.
func (t *rejectionTracker) snapshot() map[uint64]string {
	out := make(map[uint64]string, len(t.pending))
	for id, reason := range t.pending {
		out[id] = reason
	}
	return out
}

func (t *rejectionTracker) clear() {
	t.pending = make(map[uint64]string)
}
