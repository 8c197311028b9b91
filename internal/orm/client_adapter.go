package orm

import "github.com/dreamware/kvbroker/mdb"

// clientStore adapts *mdb.Client to rowStore: the only wrinkle is that
// mdb.Client.WriteBatch returns a concrete *mdb.WriteBatch, which this
// package re-exposes as the narrower writeBatch interface so Table can
// be tested against a fake store without depending on mdb at all.
type clientStore struct {
	client *mdb.Client
}

// NewClientStore wraps an mdb.Client as the store a Table operates
// over.
func NewClientStore(client *mdb.Client) rowStore {
	return clientStore{client: client}
}

func (s clientStore) Put(key string, val any) error { return s.client.Put(key, val) }
func (s clientStore) Delete(key string) error       { return s.client.Delete(key) }
func (s clientStore) Get(key string) (any, error)   { return s.client.Get(key) }

func (s clientStore) Iterator(prefix string, reverse bool, seek string) (func() (string, any, bool, error), func() error, error) {
	return s.client.Iterator(prefix, reverse, seek)
}

func (s clientStore) WriteBatch() (writeBatch, error) {
	wb, err := s.client.WriteBatch()
	if err != nil {
		return nil, err
	}
	return wb, nil
}
