package eventbus

import "testing"

func TestPublishFiltersByType(t *testing.T) {
	t.Parallel()

	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	only, unsubOnly := b.Subscribe(4, TaskAssigned)
	defer unsubOnly()

	b.Publish(Event{Type: TaskAssigned, Tick: 3})
	b.Publish(Event{Type: TaskCompleted, Tick: 4})

	if got := len(all); got != 2 {
		t.Fatalf("len(all) = %d, want 2", got)
	}
	if got := len(only); got != 1 {
		t.Fatalf("len(only) = %d, want 1", got)
	}
	e := <-only
	if e.Type != TaskAssigned || e.Tick != 3 {
		t.Fatalf("event = %+v, want task.assigned@3", e)
	}
	if e.Time.IsZero() {
		t.Fatalf("Time not stamped")
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	t.Parallel()

	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: TaskAssigned})
	b.Publish(Event{Type: TaskAssigned})
	b.Publish(Event{Type: TaskAssigned})

	if got := b.Dropped(); got != 2 {
		t.Fatalf("Dropped() = %d, want 2", got)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("channel still open after unsubscribe")
	}
	b.Publish(Event{Type: TaskAssigned})
}
