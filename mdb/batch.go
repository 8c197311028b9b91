package mdb

import "github.com/dreamware/kvbroker/internal/transport"

// WriteBatch is a sequential, all-or-nothing group of writes. Obtain
// one with Client.WriteBatch, issue Put/Delete calls, then call Commit
// or Abort; failing to call either leaves the maintainer-side
// transaction open until this client's slot is cleaned up.
type WriteBatch struct {
	client *Client
	done   bool
}

// WriteBatch opens a batch on this client's slot, holding it open
// (state never returns to idle) across every subsequent call until
// Commit or Abort.
func (c *Client) WriteBatch() (*WriteBatch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.roundTrip(transport.Request{Method: "batch_enter"}, false); err != nil {
		return nil, err
	}
	return &WriteBatch{client: c}, nil
}

// Put stages a write, applied immediately against the maintainer's
// in-progress transaction.
func (b *WriteBatch) Put(key string, val any) error {
	b.client.mu.Lock()
	defer b.client.mu.Unlock()

	_, err := b.client.roundTrip(transport.Request{Method: "batch_put", Key: key, Val: val}, false)
	return err
}

// Delete stages a delete.
func (b *WriteBatch) Delete(key string) error {
	b.client.mu.Lock()
	defer b.client.mu.Unlock()

	_, err := b.client.roundTrip(transport.Request{Method: "batch_delete", Key: key}, false)
	return err
}

// Commit applies every staged write atomically and releases the slot
// back to idle.
func (b *WriteBatch) Commit() error {
	b.client.mu.Lock()
	defer b.client.mu.Unlock()

	if b.done {
		return nil
	}
	b.done = true

	_, err := b.client.roundTrip(transport.Request{Method: "batch_exit"}, true)
	return err
}

// Abort discards every staged write and releases the slot back to
// idle.
func (b *WriteBatch) Abort() error {
	b.client.mu.Lock()
	defer b.client.mu.Unlock()

	if b.done {
		return nil
	}
	b.done = true

	_, err := b.client.roundTrip(transport.Request{Method: "batch_error"}, true)
	return err
}
