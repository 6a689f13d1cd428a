package tail

import (
	"context"
	"testing"
	"time"

	"github.com/flowopsai/orchestrator/internal/domain"
	"github.com/flowopsai/orchestrator/internal/runstore"
)

func newRunWithStore(t *testing.T) (*runstore.Store, *domain.Run) {
	t.Helper()
	store, err := runstore.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	run, err := store.CreateRun(nil)
	if err != nil {
		t.Fatal(err)
	}
	return store, run
}

func collect(t *testing.T) (func(Message) error, <-chan Message) {
	t.Helper()
	ch := make(chan Message, 64)
	return func(m Message) error {
		ch <- m
		return nil
	}, ch
}

func recv(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestTailer_SnapshotThenIncremental(t *testing.T) {
	store, run := newRunWithStore(t)

	a, _ := store.AppendEvent(run.ID, domain.LevelInfo, "A", "", time.Time{})
	b, _ := store.AppendEvent(run.ID, domain.LevelInfo, "B", "", time.Time{})

	ticks := make(chan time.Time)
	tailer := New(store, Options{Ticks: ticks})

	send, msgs := collect(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- tailer.Tail(ctx, run.ID, send) }()

	// Snapshot holds the full history in ascending id order
	snap := recv(t, msgs)
	if snap.Type != TypeSnapshot {
		t.Fatalf("first message type = %q, want snapshot", snap.Type)
	}
	if len(snap.Events) != 3 {
		t.Fatalf("snapshot size = %d, want 3", len(snap.Events))
	}
	if snap.Events[1].ID != a.ID || snap.Events[2].ID != b.ID {
		t.Errorf("snapshot order = [%d %d %d]", snap.Events[0].ID, snap.Events[1].ID, snap.Events[2].ID)
	}

	// C is appended after the snapshot; the next tick relays exactly it
	c, _ := store.AppendEvent(run.ID, domain.LevelInfo, "C", "", time.Time{})
	ticks <- time.Time{}

	inc := recv(t, msgs)
	if inc.Type != TypeEvent {
		t.Fatalf("message type = %q, want event", inc.Type)
	}
	if inc.ID != c.ID || inc.Title != "C" {
		t.Errorf("incremental = id %d title %q, want id %d title C", inc.ID, inc.Title, c.ID)
	}

	// An idle tick without heartbeat produces nothing; the following
	// tick after a new event must not duplicate C
	ticks <- time.Time{}
	d, _ := store.AppendEvent(run.ID, domain.LevelInfo, "D", "", time.Time{})
	ticks <- time.Time{}

	next := recv(t, msgs)
	if next.ID != d.ID {
		t.Errorf("message id = %d, want %d (no duplication, no gap)", next.ID, d.ID)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Tail returned %v, want nil on cancellation", err)
	}
}

func TestTailer_Heartbeat(t *testing.T) {
	store, run := newRunWithStore(t)

	ticks := make(chan time.Time)
	tailer := New(store, Options{Heartbeat: true, Ticks: ticks})

	send, msgs := collect(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tailer.Tail(ctx, run.ID, send)

	if m := recv(t, msgs); m.Type != TypeSnapshot {
		t.Fatalf("first message type = %q, want snapshot", m.Type)
	}

	ticks <- time.Time{}
	if m := recv(t, msgs); m.Type != TypeHeartbeat {
		t.Errorf("idle tick message type = %q, want heartbeat", m.Type)
	}
}

func TestTailer_IndependentSubscribers(t *testing.T) {
	store, run := newRunWithStore(t)

	ticksA := make(chan time.Time)
	ticksB := make(chan time.Time)
	tailerA := New(store, Options{Ticks: ticksA})
	tailerB := New(store, Options{Ticks: ticksB})

	sendA, msgsA := collect(t)
	sendB, msgsB := collect(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tailerA.Tail(ctx, run.ID, sendA)
	go tailerB.Tail(ctx, run.ID, sendB)

	recv(t, msgsA)
	recv(t, msgsB)

	ev, _ := store.AppendEvent(run.ID, domain.LevelInfo, "Step 1", "", time.Time{})

	// Only A ticks; B stays quiet and must not lose the event
	ticksA <- time.Time{}
	if m := recv(t, msgsA); m.ID != ev.ID {
		t.Errorf("subscriber A got id %d, want %d", m.ID, ev.ID)
	}

	ticksB <- time.Time{}
	if m := recv(t, msgsB); m.ID != ev.ID {
		t.Errorf("subscriber B got id %d, want %d", m.ID, ev.ID)
	}
}

func TestTailer_EmptyRunSnapshot(t *testing.T) {
	store, err := runstore.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	// A run that disappeared or never logged anything yields an empty
	// snapshot, not an error.
	tailer := New(store, Options{Ticks: make(chan time.Time)})
	send, msgs := collect(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tailer.Tail(ctx, "ghost-run", send)

	snap := recv(t, msgs)
	if snap.Type != TypeSnapshot || len(snap.Events) != 0 {
		t.Errorf("snapshot = %+v, want empty snapshot", snap)
	}
}
