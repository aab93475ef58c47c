package relay

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/MohamedAljoke/mail-sender/internal/job"
	"github.com/MohamedAljoke/mail-sender/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func update(id string, status job.Status) *job.StatusUpdate {
	j := job.New("user@example.com", "s", "b", 3)
	j.ID = id
	j.Status = status
	return job.NewStatusUpdate(j)
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	h := NewHub(discardLogger())
	defer h.Close()

	c1 := h.register()
	c2 := h.register()
	if got := h.ClientCount(); got != 2 {
		t.Fatalf("ClientCount() = %d, want 2", got)
	}

	h.Broadcast(update("job-1", job.StatusCompleted))

	for i, c := range []*client{c1, c2} {
		select {
		case u := <-c.C():
			if u.JobID != "job-1" {
				t.Errorf("client %d got JobID %q, want job-1", i, u.JobID)
			}
		case <-time.After(time.Second):
			t.Fatalf("client %d never received the update", i)
		}
	}
}

func TestHub_SlowClientDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub(discardLogger(), WithBufferSize(1))
	defer h.Close()

	c := h.register()

	// Second broadcast overflows the buffer of 1 and must not block.
	done := make(chan struct{})
	go func() {
		h.Broadcast(update("job-1", job.StatusProcessing))
		h.Broadcast(update("job-2", job.StatusProcessing))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a slow client")
	}

	_, dropped := h.Stats()
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}

	u := <-c.C()
	if u.JobID != "job-1" {
		t.Errorf("JobID = %q, want job-1", u.JobID)
	}
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	h := NewHub(discardLogger())
	c := h.register()

	h.unregister(c)
	h.unregister(c)

	if got := h.ClientCount(); got != 0 {
		t.Errorf("ClientCount() = %d, want 0", got)
	}
	// Channel must be closed after unregister.
	select {
	case _, ok := <-c.C():
		if ok {
			t.Error("expected closed channel")
		}
	default:
		t.Error("channel not closed")
	}
}

func TestHub_CloseDisconnectsEveryone(t *testing.T) {
	h := NewHub(discardLogger())
	c1 := h.register()
	c2 := h.register()

	h.Close()

	for i, c := range []*client{c1, c2} {
		if _, ok := <-c.C(); ok {
			t.Errorf("client %d channel still open after Close", i)
		}
	}
	if got := h.ClientCount(); got != 0 {
		t.Errorf("ClientCount() = %d, want 0", got)
	}
}

func TestRelay_PumpsStoreUpdatesIntoHub(t *testing.T) {
	st := store.NewMemoryStore()
	h := NewHub(discardLogger())
	defer h.Close()
	r := NewRelay(st, h, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx) //nolint:errcheck // returns on ctx cancel

	// Let the subscription establish before publishing.
	time.Sleep(50 * time.Millisecond)
	c := h.register()

	j := job.New("user@example.com", "s", "b", 3)
	if err := st.StoreJob(ctx, j, time.Minute); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := st.UpdateStatus(ctx, j.ID, job.StatusProcessing, "", 0); err != nil {
		t.Fatalf("update: %v", err)
	}

	select {
	case u := <-c.C():
		if u.JobID != j.ID || u.Status != job.StatusProcessing {
			t.Errorf("got %+v, want job %s processing", u, j.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("update never reached the hub client")
	}
}
