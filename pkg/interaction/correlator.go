package interaction

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/mamalluca/mamalluca-go/pkg/wire"
)

// Correlator errors.
var (
	ErrDuplicateID = errors.New("call id already pending")
)

// Result is delivered exactly once to the slot of a pending call.
type Result struct {
	// Value is the raw "result" member of a successful response.
	Value json.RawMessage

	// Err is a *wire.RemoteError for error responses, or the reason
	// passed to FailAll.
	Err error

	// Seq is the inbound frame sequence number of the response. It is 0
	// when the call failed without a response.
	Seq uint64
}

// Correlator maps outstanding call ids to single-use response slots.
// It is safe for concurrent use and does no I/O.
type Correlator struct {
	nextID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan Result
}

// NewCorrelator creates an empty correlator. Ids start at 1.
func NewCorrelator() *Correlator {
	return &Correlator{
		pending: make(map[uint64]chan Result),
	}
}

// NextID allocates an id that is not currently pending.
// The counter only wraps after 2^64 calls.
func (c *Correlator) NextID() uint64 {
	for {
		id := c.nextID.Add(1)
		if id == 0 {
			continue
		}
		c.mu.Lock()
		_, taken := c.pending[id]
		c.mu.Unlock()
		if !taken {
			return id
		}
	}
}

// Register stores a slot for id. The returned channel receives exactly
// one Result and is never closed.
func (c *Correlator) Register(id uint64) (<-chan Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pending[id]; exists {
		return nil, ErrDuplicateID
	}
	slot := make(chan Result, 1)
	c.pending[id] = slot
	return slot, nil
}

// Resolve fulfills and removes the slot for resp.ID. seq is the position of
// the response among all inbound frames and is passed on in Result.Seq.
// Returns false if no call with that id is pending.
func (c *Correlator) Resolve(resp *wire.Response, seq uint64) bool {
	c.mu.Lock()
	slot, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}

	if resp.Error != nil {
		slot <- Result{Err: resp.Error, Seq: seq}
	} else {
		slot <- Result{Value: resp.Result, Seq: seq}
	}
	return true
}

// Cancel removes the slot for id without fulfilling it.
// Used when the request never made it onto the wire or the caller gave up.
func (c *Correlator) Cancel(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

// FailAll fulfills every outstanding slot with reason and clears the
// table. Returns the number of calls failed.
func (c *Correlator) FailAll(reason error) int {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint64]chan Result)
	c.mu.Unlock()

	for _, slot := range pending {
		slot <- Result{Err: reason}
	}
	return len(pending)
}

// Pending returns the number of calls awaiting a response.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
