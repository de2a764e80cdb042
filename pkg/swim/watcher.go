package swim

// Watcher is used to receive notifications when the membership table
// changes.
//
// The implementations of Watcher must not block. Watcher is also called with
// the table mutex held so should not call back to Node.
type Watcher interface {
	// OnJoin notifies that a member was discovered.
	OnJoin(addr Address)

	// OnReachable notifies that a member that was considered stale has been
	// heard from again.
	OnReachable(addr Address)

	// OnUnreachable notifies that a member hasn't been heard from within the
	// failure timeout.
	OnUnreachable(addr Address)
}

type nopWatcher struct {
}

func newNopWatcher() *nopWatcher {
	return &nopWatcher{}
}

func (w *nopWatcher) OnJoin(_ Address) {}

func (w *nopWatcher) OnReachable(_ Address) {}

func (w *nopWatcher) OnUnreachable(_ Address) {}

var _ Watcher = &nopWatcher{}
