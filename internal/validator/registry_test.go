package validator

import (
	"sync"
	"testing"
	"time"

	"github.com/lloom-network/lloom/internal/protocol"
)

// fakeClock lets tests advance registry time deterministically, the same
// pattern used to drive the teacher's circuit breaker through staleness
// transitions without real sleeps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(clock *fakeClock) *Registry {
	r := NewRegistry(DefaultSweepConfig())
	r.nowFunc = clock.Now
	return r
}

func announcement(nodeID string, kind protocol.AnnouncementKind, nonce uint64, models ...protocol.ModelDescriptor) protocol.SignedMessage[protocol.ModelAnnouncement] {
	return protocol.SignedMessage[protocol.ModelAnnouncement]{
		Payload: protocol.ModelAnnouncement{
			NodeID:          nodeID,
			ExecutorAddress: "0x000000000000000000000000000000000000aa",
			Models:          models,
			Kind:            kind,
			Nonce:           nonce,
			ProtocolVersion: 1,
		},
		Signer: "0x000000000000000000000000000000000000aa",
	}
}

func descriptor(id string) protocol.ModelDescriptor {
	return protocol.ModelDescriptor{ModelID: id, BackendFamily: "test", MaxContext: 4096, Available: true}
}

func TestHandleAnnouncement_InitialCreatesRecord(t *testing.T) {
	clock := newFakeClock(time.Unix(1700000000, 0))
	r := newTestRegistry(clock)

	err := r.HandleAnnouncement(announcement("node-1", protocol.AnnouncementInitial, 1, descriptor("m1")))
	if err != nil {
		t.Fatalf("HandleAnnouncement: %v", err)
	}

	rec, ok := r.Get("node-1")
	if !ok {
		t.Fatal("expected record for node-1")
	}
	if rec.State != StateConnected {
		t.Errorf("state = %v, want Connected", rec.State)
	}
	if _, ok := rec.Models["m1"]; !ok {
		t.Error("expected model m1 to be present")
	}
}

func TestHandleAnnouncement_UpdateReplacesModels(t *testing.T) {
	clock := newFakeClock(time.Unix(1700000000, 0))
	r := newTestRegistry(clock)

	r.HandleAnnouncement(announcement("node-1", protocol.AnnouncementInitial, 1, descriptor("m1")))
	r.HandleAnnouncement(announcement("node-1", protocol.AnnouncementUpdate, 2, descriptor("m2")))

	rec, _ := r.Get("node-1")
	if _, ok := rec.Models["m1"]; ok {
		t.Error("expected m1 to be replaced by the update")
	}
	if _, ok := rec.Models["m2"]; !ok {
		t.Error("expected m2 to be present after update")
	}
}

func TestHandleAnnouncement_RemovalDeletesRecord(t *testing.T) {
	clock := newFakeClock(time.Unix(1700000000, 0))
	r := newTestRegistry(clock)

	r.HandleAnnouncement(announcement("node-1", protocol.AnnouncementInitial, 1, descriptor("m1")))
	r.HandleAnnouncement(announcement("node-1", protocol.AnnouncementRemoval, 2))

	if _, ok := r.Get("node-1"); ok {
		t.Error("expected record to be removed")
	}
}

func TestHandleAnnouncement_TooManyModelsRejected(t *testing.T) {
	clock := newFakeClock(time.Unix(1700000000, 0))
	r := newTestRegistry(clock)

	models := make([]protocol.ModelDescriptor, protocol.MaxModelsPerExecutor+1)
	for i := range models {
		models[i] = descriptor("m")
	}

	err := r.HandleAnnouncement(announcement("node-1", protocol.AnnouncementInitial, 1, models...))
	if err != ErrTooManyModels {
		t.Fatalf("err = %v, want ErrTooManyModels", err)
	}
}

func TestSweep_TransitionsToStaleThenRemoves(t *testing.T) {
	clock := newFakeClock(time.Unix(1700000000, 0))
	r := newTestRegistry(clock)
	r.HandleAnnouncement(announcement("node-1", protocol.AnnouncementInitial, 1, descriptor("m1")))

	r.Sweep()
	rec, _ := r.Get("node-1")
	if rec.State != StateConnected {
		t.Fatalf("state = %v, want Connected immediately after announcement", rec.State)
	}

	clock.Advance(r.cfg.StaleAfter + time.Second)
	r.Sweep()
	rec, _ = r.Get("node-1")
	if rec.State != StateStale {
		t.Fatalf("state = %v, want Stale", rec.State)
	}

	clock.Advance(r.cfg.DisconnectAfter)
	r.Sweep()
	if _, ok := r.Get("node-1"); ok {
		t.Fatal("expected record to be removed after DisconnectAfter elapses")
	}
}

func TestHandleAnnouncement_NeverConnectedExecutorUpdateAccepted(t *testing.T) {
	clock := newFakeClock(time.Unix(1700000000, 0))
	r := newTestRegistry(clock)

	err := r.HandleAnnouncement(announcement("node-unknown", protocol.AnnouncementUpdate, 1, descriptor("m1")))
	if err != nil {
		t.Fatalf("HandleAnnouncement: %v", err)
	}
	if _, ok := r.Get("node-unknown"); !ok {
		t.Error("expected an Update from a never-connected executor to create a record")
	}
}

func TestHandleQuery_ListAllPaginates(t *testing.T) {
	clock := newFakeClock(time.Unix(1700000000, 0))
	r := newTestRegistry(clock)
	r.HandleAnnouncement(announcement("node-1", protocol.AnnouncementInitial, 1, descriptor("a"), descriptor("b"), descriptor("c")))

	limit := uint32(2)
	resp, err := r.HandleQuery(protocol.ModelQuery{QueryID: "q1", Kind: protocol.QueryListAll, Limit: &limit}, 1700000001)
	if err != nil {
		t.Fatalf("HandleQuery: %v", err)
	}
	if len(resp.Models) != 2 {
		t.Fatalf("len(resp.Models) = %d, want 2", len(resp.Models))
	}
}

func TestHandleQuery_FindModel(t *testing.T) {
	clock := newFakeClock(time.Unix(1700000000, 0))
	r := newTestRegistry(clock)
	r.HandleAnnouncement(announcement("node-1", protocol.AnnouncementInitial, 1, descriptor("gpt-4")))

	modelID := "gpt-4"
	resp, err := r.HandleQuery(protocol.ModelQuery{QueryID: "q1", Kind: protocol.QueryFindModel, ModelID: &modelID}, 1700000001)
	if err != nil {
		t.Fatalf("HandleQuery: %v", err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].Descriptor.ModelID != "gpt-4" {
		t.Fatalf("unexpected result: %+v", resp.Entries)
	}
	entry := resp.Entries[0]
	if len(entry.Executors) != 1 || entry.Executors[0].NodeID != "node-1" {
		t.Fatalf("unexpected executor attribution: %+v", entry.Executors)
	}
	if entry.Executors[0].ExecutorAddress != "0x000000000000000000000000000000000000aa" {
		t.Fatalf("unexpected executor address: %+v", entry.Executors[0])
	}
}

func TestHandleQuery_FindModelUnknownReturnsEmpty(t *testing.T) {
	clock := newFakeClock(time.Unix(1700000000, 0))
	r := newTestRegistry(clock)

	modelID := "does-not-exist"
	resp, err := r.HandleQuery(protocol.ModelQuery{QueryID: "q1", Kind: protocol.QueryFindModel, ModelID: &modelID}, 1700000001)
	if err != nil {
		t.Fatalf("HandleQuery: %v", err)
	}
	if len(resp.Entries) != 0 {
		t.Fatalf("expected no entries, got %+v", resp.Entries)
	}
}
