package users

import (
	"sync"

	"github.com/google/uuid"
)

// ChangeKind classifies a principal write.
type ChangeKind string

const (
	ChangeCreated        ChangeKind = "created"
	ChangeRoleUpdated    ChangeKind = "role_updated"
	ChangeActiveUpdated  ChangeKind = "active_updated"
	ChangeProfileUpdated ChangeKind = "profile_updated"
	ChangeLinked         ChangeKind = "linked"
	ChangeDeleted        ChangeKind = "deleted"
)

// Change describes one principal write.
type Change struct {
	UserID uuid.UUID
	Kind   ChangeKind
}

// Watcher is an in-process publish/subscribe feed over directory writes.
// Clients that render permission-dependent UI subscribe and re-resolve the
// principal when a change for it arrives. Delivery is best-effort: a
// subscriber that falls behind misses changes rather than blocking writers.
type Watcher struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Change
}

// NewWatcher creates an empty watcher.
func NewWatcher() *Watcher {
	return &Watcher{subs: make(map[int]chan Change)}
}

// Subscribe registers a subscriber. The returned cancel function must be
// called to release the subscription; the channel is closed on cancel.
func (w *Watcher) Subscribe() (<-chan Change, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextID
	w.nextID++

	ch := make(chan Change, 16)
	w.subs[id] = ch

	cancel := func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if sub, ok := w.subs[id]; ok {
			delete(w.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (w *Watcher) notify(change Change) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, ch := range w.subs {
		select {
		case ch <- change:
		default:
			// Subscriber buffer full; drop rather than block the write path.
		}
	}
}

// NotifyLinked records an account-link write made outside this package
// (the invitation workflow commits the principal update in its own
// transaction).
func (w *Watcher) NotifyLinked(userID uuid.UUID) {
	w.notify(Change{UserID: userID, Kind: ChangeLinked})
}
