package mdb

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dreamware/kvbroker/internal/shmregion"
	"github.com/dreamware/kvbroker/internal/transport"
)

func sleepTick() { time.Sleep(transport.Tick) }

// ErrClosed is returned by any Client method after Close has been
// called on it.
var ErrClosed = errors.New("mdb: client closed")

// Client is a single peer's connection to a broker-maintained engine.
// It claims one slot in the shared slot table for its lifetime; Open
// blocks until a slot is free.
//
// A Client is safe for concurrent use: mu serializes every public
// method, since the underlying protocol allows at most one outstanding
// request per slot. Methods never call each other through the exported
// API while already holding mu — always through the unexported
// request/response helpers — so there is no reentrancy hazard despite
// Go's mutexes not supporting it.
type Client struct {
	mu     sync.Mutex
	region *shmregion.Region
	index  int
	closed bool
}

// Open attaches to (spawning if necessary) the broker maintaining the
// engine rooted at dir, and claims a free slot.
func Open(dir string) (*Client, error) {
	lock, err := acquireSysLock(dir)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	region, err := attachOrSpawn(dir)
	if err != nil {
		return nil, err
	}

	index := acquireSlot(region.Data)

	return &Client{region: region, index: index}, nil
}

// OpenNonBlocking behaves like Open, except it never waits for a slot to
// free up: if every slot in the table is already held, it returns
// transport.ErrExhausted immediately instead of blocking. Callers that
// would rather fail fast than queue behind other peers use this instead
// of Open.
func OpenNonBlocking(dir string) (*Client, error) {
	lock, err := acquireSysLock(dir)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	region, err := attachOrSpawn(dir)
	if err != nil {
		return nil, err
	}

	index, ok := tryAcquireSlot(region.Data)
	if !ok {
		_ = region.Close()
		return nil, transport.ErrExhausted
	}

	return &Client{region: region, index: index}, nil
}

// Close releases this client's slot. The maintainer reclaims it
// asynchronously once it observes LockClean. Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	c.region.Data[transport.SeekLock(c.index)] = byte(transport.LockClean)
	return c.region.Close()
}

func (c *Client) checkOpen() error {
	if c.closed {
		return ErrClosed
	}
	if transport.LockState(c.region.Data[transport.SeekLock(c.index)]) == transport.LockFree {
		return transport.ErrDisconnected
	}
	return nil
}

// roundTrip writes req to this client's slot, flips it to
// StateRequest, and blocks until the maintainer responds, returning the
// decoded result or a *transport.RemoteError. If idle is true (the
// common case), the slot is returned to StateIdle once the response is
// consumed, freeing it for the next request; sessions that must keep
// state across several round trips (iterators, batches) pass idle=false
// to hold the response in place.
func (c *Client) roundTrip(req transport.Request, idle bool) (any, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	if err := transport.PutRequest(c.region.Data, c.index, req); err != nil {
		return nil, err
	}
	c.region.Data[transport.SeekState(c.index)] = byte(transport.StateRequest)

	return c.waitResponse(idle)
}

func (c *Client) waitResponse(idle bool) (any, error) {
	lockSeek := transport.SeekLock(c.index)
	stateSeek := transport.SeekState(c.index)

	for transport.LockState(c.region.Data[lockSeek]) == transport.LockHeld {
		if transport.SlotState(c.region.Data[stateSeek]) == transport.StateResponse {
			resp, err := transport.GetResponse(c.region.Data, c.index)
			if err != nil {
				return nil, err
			}
			if idle {
				c.region.Data[stateSeek] = byte(transport.StateIdle)
			}
			if resp.HasError {
				return nil, &transport.RemoteError{Message: resp.Error}
			}
			return resp.Result, nil
		}
		sleepTick()
	}
	return nil, transport.ErrDisconnected
}

// Put stores val under key.
func (c *Client) Put(key string, val any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.roundTrip(transport.Request{Method: "put", Key: key, Val: val}, true)
	return err
}

// Delete removes key, if present.
func (c *Client) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.roundTrip(transport.Request{Method: "delete", Key: key}, true)
	return err
}

// Get returns the value stored under key, or (nil, nil) if absent.
func (c *Client) Get(key string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.roundTrip(transport.Request{Method: "get", Key: key}, true)
}

// Iterator scans keys sharing prefix, ascending unless reverse is set,
// optionally starting at seek (the suffix after prefix). The returned
// function yields (suffix, value) pairs; stopping early without
// draining it leaks the maintainer-side iterator until close is called,
// so callers should always call the returned close function.
func (c *Client) Iterator(prefix string, reverse bool, seek string) (next func() (string, any, bool, error), closeFn func() error, err error) {
	c.mu.Lock()

	var seekArg any
	if seek != "" {
		seekArg = seek
	}

	_, err = c.roundTrip(transport.Request{Method: "iterator", Prefix: prefix, Reverse: reverse, Seek: seekArg}, false)
	if err != nil {
		c.mu.Unlock()
		return nil, nil, err
	}

	closed := false

	closeFn = func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if closed {
			return nil
		}
		closed = true
		_, err := c.roundTrip(transport.Request{Method: "close"}, true)
		return err
	}

	next = func() (string, any, bool, error) {
		c.mu.Lock()
		defer c.mu.Unlock()

		if closed {
			return "", nil, false, fmt.Errorf("mdb: iterator already closed")
		}

		result, err := c.roundTrip(transport.Request{Method: "next"}, false)
		if err != nil {
			return "", nil, false, err
		}
		if s, ok := result.(string); ok && s == transport.StopIteration {
			return "", nil, false, nil
		}

		pair, ok := result.([]any)
		if !ok || len(pair) != 2 {
			return "", nil, false, fmt.Errorf("mdb: malformed iterator result: %#v", result)
		}
		suffix, _ := pair[0].(string)
		return suffix, pair[1], true, nil
	}

	c.mu.Unlock()
	return next, closeFn, nil
}
