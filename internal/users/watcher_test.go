package users

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestWatcher_SubscribeAndNotify(t *testing.T) {
	w := NewWatcher()
	ch, cancel := w.Subscribe()
	defer cancel()

	userID := uuid.New()
	w.notify(Change{UserID: userID, Kind: ChangeRoleUpdated})

	select {
	case change := <-ch:
		require.Equal(t, userID, change.UserID)
		require.Equal(t, ChangeRoleUpdated, change.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected change notification")
	}
}

func TestWatcher_MultipleSubscribers(t *testing.T) {
	w := NewWatcher()
	ch1, cancel1 := w.Subscribe()
	defer cancel1()
	ch2, cancel2 := w.Subscribe()
	defer cancel2()

	w.NotifyLinked(uuid.New())

	for _, ch := range []<-chan Change{ch1, ch2} {
		select {
		case change := <-ch:
			require.Equal(t, ChangeLinked, change.Kind)
		case <-time.After(time.Second):
			t.Fatal("expected change notification")
		}
	}
}

func TestWatcher_CancelClosesChannel(t *testing.T) {
	w := NewWatcher()
	ch, cancel := w.Subscribe()

	cancel()
	_, open := <-ch
	require.False(t, open)

	// Cancel is idempotent and notify after cancel does not panic.
	cancel()
	w.notify(Change{UserID: uuid.New(), Kind: ChangeDeleted})
}

func TestWatcher_SlowSubscriberDoesNotBlock(t *testing.T) {
	w := NewWatcher()
	_, cancel := w.Subscribe() // never drained
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			w.notify(Change{UserID: uuid.New(), Kind: ChangeProfileUpdated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("notify blocked on a slow subscriber")
	}
}
