package testutil

import (
	"sync"
	"testing"
	"time"
)

func TestHooksRecorderFiltersByOp(t *testing.T) {
	h := &HooksRecorder{}
	h.ObserveOperation("topic.update_node", "conflict", time.Millisecond)
	h.ObserveOperation("topic.create_node", "success", time.Millisecond)
	h.ObserveOperation("topic.update_node", "success", time.Millisecond)
	h.ObserveLockWait("topic.update_node", true, time.Millisecond)

	got := h.StatusesOf("topic.update_node")
	if len(got) != 2 || got[0] != "conflict" || got[1] != "success" {
		t.Fatalf("update statuses: %v", got)
	}
	if len(h.LockWaits) != 1 || !h.LockWaits[0].Acquired {
		t.Fatalf("lock waits: %+v", h.LockWaits)
	}
}

func TestHooksRecorderConcurrentWriters(t *testing.T) {
	h := &HooksRecorder{}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.IncRetry("topic.delete_node")
			h.IncConflict("topic.delete_node")
		}()
	}
	wg.Wait()
	if len(h.Retries) != 20 || len(h.Conflicts) != 20 {
		t.Fatalf("retries=%d conflicts=%d", len(h.Retries), len(h.Conflicts))
	}
}
