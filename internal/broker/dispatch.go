package broker

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dreamware/kvbroker/internal/engine"
	"github.com/dreamware/kvbroker/internal/transport"
)

// handleRequest decodes slot i's request frame, dispatches it to the
// matching operation, and writes a response frame. Any error from the
// operation (including a malformed request) becomes an {"error": ...}
// response rather than propagating — a single peer's bad request must
// never take down the maintainer or any other peer's slot.
func (m *Maintainer) handleRequest(i int) {
	req, err := transport.GetRequest(m.region, i)
	if err != nil {
		m.respondError(i, err)
		return
	}

	result, err := m.dispatch(i, req)
	if err != nil {
		m.respondError(i, err)
		return
	}
	m.respondResult(i, result)
}

func (m *Maintainer) dispatch(i int, req transport.Request) (any, error) {
	switch req.Method {
	case "put":
		return m.doPut(req)
	case "delete":
		return m.doDelete(req)
	case "get":
		return m.doGet(req)
	case "iterator":
		return m.doIteratorOpen(i, req)
	case "next":
		return m.doIteratorNext(i)
	case "close":
		return m.doIteratorClose(i)
	case "batch_enter":
		return m.doBatchEnter(i)
	case "batch_put":
		return m.doBatchPut(i, req)
	case "batch_delete":
		return m.doBatchDelete(i, req)
	case "batch_exit":
		return m.doBatchExit(i)
	case "batch_error":
		return m.doBatchError(i)
	default:
		return nil, fmt.Errorf("broker: unsupported method %q", req.Method)
	}
}

func (m *Maintainer) doPut(req transport.Request) (any, error) {
	key, ok := req.Key.(string)
	if !ok {
		return nil, fmt.Errorf("broker: put: key must be a string")
	}
	if err := m.engine.Put(key, req.Val); err != nil {
		return nil, err
	}
	return true, nil
}

func (m *Maintainer) doDelete(req transport.Request) (any, error) {
	key, ok := req.Key.(string)
	if !ok {
		return nil, fmt.Errorf("broker: delete: key must be a string")
	}
	if err := m.engine.Delete(key); err != nil {
		return nil, err
	}
	return true, nil
}

func (m *Maintainer) doGet(req transport.Request) (any, error) {
	key, ok := req.Key.(string)
	if !ok {
		return nil, fmt.Errorf("broker: get: key must be a string")
	}
	val, found, err := m.engine.Get(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return val, nil
}

func (m *Maintainer) doIteratorOpen(i int, req transport.Request) (any, error) {
	if m.iterators[i] != nil {
		return nil, transport.ErrNestingIterator
	}

	seek, _ := req.Seek.(string)
	it, err := m.engine.NewIterator(engine.IteratorOptions{
		Prefix:  req.Prefix,
		Reverse: req.Reverse,
		Seek:    seek,
	})
	if err != nil {
		return nil, err
	}

	m.iterators[i] = it
	return true, nil
}

func (m *Maintainer) doIteratorNext(i int) (any, error) {
	it := m.iterators[i]
	if it == nil {
		return nil, fmt.Errorf("broker: next: no iterator open")
	}

	suffix, val, ok, err := it.Next()
	if err != nil {
		return nil, err
	}
	if !ok {
		_ = it.Close()
		m.iterators[i] = nil
		return transport.StopIteration, nil
	}

	return []any{suffix, val}, nil
}

func (m *Maintainer) doIteratorClose(i int) (any, error) {
	if it := m.iterators[i]; it != nil {
		if err := it.Close(); err != nil {
			m.logger.Warn("iterator close failed", zap.Int("slot", i), zap.Error(err))
		}
		m.iterators[i] = nil
	}
	return true, nil
}

func (m *Maintainer) doBatchEnter(i int) (any, error) {
	if m.batches[i] != nil {
		return nil, transport.ErrNestingBatch
	}
	m.batches[i] = newBatchSession(m.engine.NewBatch())
	return true, nil
}

func (m *Maintainer) doBatchPut(i int, req transport.Request) (any, error) {
	b := m.batches[i]
	if b == nil {
		return nil, fmt.Errorf("broker: batch_put: no batch open")
	}
	key, ok := req.Key.(string)
	if !ok {
		return nil, fmt.Errorf("broker: batch_put: key must be a string")
	}
	if err := b.put(key, req.Val); err != nil {
		return nil, err
	}
	return true, nil
}

func (m *Maintainer) doBatchDelete(i int, req transport.Request) (any, error) {
	b := m.batches[i]
	if b == nil {
		return nil, fmt.Errorf("broker: batch_delete: no batch open")
	}
	key, ok := req.Key.(string)
	if !ok {
		return nil, fmt.Errorf("broker: batch_delete: key must be a string")
	}
	if err := b.delete(key); err != nil {
		return nil, err
	}
	return true, nil
}

func (m *Maintainer) doBatchExit(i int) (any, error) {
	b := m.batches[i]
	if b == nil {
		return nil, fmt.Errorf("broker: batch_exit: no batch open")
	}
	m.batches[i] = nil
	if err := b.commit(); err != nil {
		return nil, err
	}
	return true, nil
}

func (m *Maintainer) doBatchError(i int) (any, error) {
	b := m.batches[i]
	if b == nil {
		return nil, fmt.Errorf("broker: batch_error: no batch open")
	}
	m.batches[i] = nil
	if err := b.abort(); err != nil {
		return nil, err
	}
	return true, nil
}
