package interaction

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/mamalluca/mamalluca-go/pkg/wire"
)

func TestCorrelatorNextID(t *testing.T) {
	c := NewCorrelator()

	first := c.NextID()
	if first != 1 {
		t.Errorf("first id = %d, want 1", first)
	}
	second := c.NextID()
	if second == first {
		t.Errorf("NextID returned %d twice", first)
	}
}

func TestCorrelatorNextIDSkipsPending(t *testing.T) {
	c := NewCorrelator()

	// Occupy id 2 before the counter reaches it.
	if _, err := c.Register(2); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if got := c.NextID(); got != 1 {
		t.Fatalf("NextID = %d, want 1", got)
	}
	if got := c.NextID(); got != 3 {
		t.Errorf("NextID = %d, want 3 (2 is pending)", got)
	}
}

func TestCorrelatorNextIDConcurrent(t *testing.T) {
	c := NewCorrelator()

	const workers = 8
	const perWorker = 200

	var mu sync.Mutex
	seen := make(map[uint64]bool, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := c.NextID()
				mu.Lock()
				if seen[id] {
					t.Errorf("id %d allocated twice", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("allocated %d distinct ids, want %d", len(seen), workers*perWorker)
	}
}

func TestCorrelatorRegisterDuplicate(t *testing.T) {
	c := NewCorrelator()

	if _, err := c.Register(7); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := c.Register(7); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("second Register err = %v, want ErrDuplicateID", err)
	}
	if c.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", c.Pending())
	}
}

func TestCorrelatorResolve(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		c := NewCorrelator()
		slot, _ := c.Register(1)

		ok := c.Resolve(&wire.Response{ID: 1, Result: json.RawMessage(`{"objects":[]}`)}, 17)
		if !ok {
			t.Fatal("Resolve returned false for pending id")
		}

		res := <-slot
		if res.Err != nil {
			t.Errorf("Err = %v, want nil", res.Err)
		}
		if string(res.Value) != `{"objects":[]}` {
			t.Errorf("Value = %s", res.Value)
		}
		if res.Seq != 17 {
			t.Errorf("Seq = %d, want 17", res.Seq)
		}
		if c.Pending() != 0 {
			t.Errorf("Pending = %d after resolve, want 0", c.Pending())
		}
	})

	t.Run("RemoteError", func(t *testing.T) {
		c := NewCorrelator()
		slot, _ := c.Register(4)

		c.Resolve(&wire.Response{ID: 4, Error: &wire.RemoteError{Code: -32601, Message: "Method not found"}}, 5)

		res := <-slot
		var remote *wire.RemoteError
		if !errors.As(res.Err, &remote) {
			t.Fatalf("Err = %v, want *wire.RemoteError", res.Err)
		}
		if remote.Code != -32601 {
			t.Errorf("Code = %d, want -32601", remote.Code)
		}
		if res.Seq != 5 {
			t.Errorf("Seq = %d, want 5", res.Seq)
		}
	})

	t.Run("UnknownID", func(t *testing.T) {
		c := NewCorrelator()
		if c.Resolve(&wire.Response{ID: 99}, 1) {
			t.Error("Resolve returned true for unknown id")
		}
	})

	t.Run("OnlyOnce", func(t *testing.T) {
		c := NewCorrelator()
		c.Register(2)

		if !c.Resolve(&wire.Response{ID: 2, Result: json.RawMessage(`1`)}, 1) {
			t.Fatal("first Resolve returned false")
		}
		if c.Resolve(&wire.Response{ID: 2, Result: json.RawMessage(`2`)}, 2) {
			t.Error("second Resolve for the same id returned true")
		}
	})
}

func TestCorrelatorCancel(t *testing.T) {
	c := NewCorrelator()
	c.Register(3)
	c.Cancel(3)

	if c.Pending() != 0 {
		t.Errorf("Pending = %d after cancel, want 0", c.Pending())
	}
	if c.Resolve(&wire.Response{ID: 3}, 1) {
		t.Error("late response for cancelled id was delivered")
	}
}

func TestCorrelatorFailAll(t *testing.T) {
	c := NewCorrelator()
	reason := errors.New("connection lost")

	slots := make([]<-chan Result, 0, 3)
	for id := uint64(1); id <= 3; id++ {
		slot, err := c.Register(id)
		if err != nil {
			t.Fatalf("Register(%d): %v", id, err)
		}
		slots = append(slots, slot)
	}

	if n := c.FailAll(reason); n != 3 {
		t.Errorf("FailAll = %d, want 3", n)
	}
	for i, slot := range slots {
		res := <-slot
		if !errors.Is(res.Err, reason) {
			t.Errorf("slot %d err = %v, want %v", i, res.Err, reason)
		}
	}
	if c.Pending() != 0 {
		t.Errorf("Pending = %d after FailAll, want 0", c.Pending())
	}

	// The table stays usable.
	if _, err := c.Register(1); err != nil {
		t.Errorf("Register after FailAll: %v", err)
	}
}
