package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/kvbroker/internal/engine"
	"github.com/dreamware/kvbroker/internal/transport"
)

func newTestMaintainer() (*Maintainer, []byte) {
	region := make([]byte, transport.RegionSize)
	m := New(region, engine.NewMemEngine(), nil)
	return m, region
}

func sendRequest(t *testing.T, region []byte, slot int, req transport.Request) {
	t.Helper()
	require.NoError(t, transport.PutRequest(region, slot, req))
	region[transport.SeekState(slot)] = byte(transport.StateRequest)
}

func readResponse(t *testing.T, region []byte, slot int) transport.Response {
	t.Helper()
	require.Equal(t, transport.StateResponse, transport.SlotState(region[transport.SeekState(slot)]))
	resp, err := transport.GetResponse(region, slot)
	require.NoError(t, err)
	return resp
}

func TestPutGetDeleteRoundTrip(t *testing.T) {
	m, region := newTestMaintainer()
	region[transport.SeekLock(0)] = byte(transport.LockHeld)

	sendRequest(t, region, 0, transport.Request{Method: "put", Key: "k1", Val: "v1"})
	m.processOnce()
	resp := readResponse(t, region, 0)
	require.False(t, resp.HasError)
	require.Equal(t, true, resp.Result)

	region[transport.SeekState(0)] = byte(transport.StateRequest)
	sendRequest(t, region, 0, transport.Request{Method: "get", Key: "k1"})
	m.processOnce()
	resp = readResponse(t, region, 0)
	require.False(t, resp.HasError)
	require.Equal(t, "v1", resp.Result)

	sendRequest(t, region, 0, transport.Request{Method: "delete", Key: "k1"})
	m.processOnce()
	resp = readResponse(t, region, 0)
	require.False(t, resp.HasError)

	sendRequest(t, region, 0, transport.Request{Method: "get", Key: "k1"})
	m.processOnce()
	resp = readResponse(t, region, 0)
	require.False(t, resp.HasError)
	require.Nil(t, resp.Result)
}

func TestIteratorLifecycle(t *testing.T) {
	m, region := newTestMaintainer()
	region[transport.SeekLock(0)] = byte(transport.LockHeld)

	require.NoError(t, m.engine.Put("a:1", "x"))
	require.NoError(t, m.engine.Put("a:2", "y"))

	sendRequest(t, region, 0, transport.Request{Method: "iterator", Prefix: "a:"})
	m.processOnce()
	resp := readResponse(t, region, 0)
	require.False(t, resp.HasError)

	var got []any
	for {
		region[transport.SeekState(0)] = byte(transport.StateRequest)
		sendRequest(t, region, 0, transport.Request{Method: "next"})
		m.processOnce()
		resp = readResponse(t, region, 0)
		require.False(t, resp.HasError)
		if resp.Result == transport.StopIteration {
			break
		}
		got = append(got, resp.Result)
	}
	require.Len(t, got, 2)

	require.Nil(t, m.iterators[0])
}

func TestNestedIteratorRejected(t *testing.T) {
	m, region := newTestMaintainer()
	region[transport.SeekLock(0)] = byte(transport.LockHeld)

	sendRequest(t, region, 0, transport.Request{Method: "iterator", Prefix: ""})
	m.processOnce()
	readResponse(t, region, 0)

	region[transport.SeekState(0)] = byte(transport.StateRequest)
	sendRequest(t, region, 0, transport.Request{Method: "iterator", Prefix: ""})
	m.processOnce()
	resp := readResponse(t, region, 0)
	require.True(t, resp.HasError)
}

func TestBatchCommitAndAbort(t *testing.T) {
	m, region := newTestMaintainer()
	region[transport.SeekLock(0)] = byte(transport.LockHeld)

	sendRequest(t, region, 0, transport.Request{Method: "batch_enter"})
	m.processOnce()
	readResponse(t, region, 0)

	region[transport.SeekState(0)] = byte(transport.StateRequest)
	sendRequest(t, region, 0, transport.Request{Method: "batch_put", Key: "k", Val: "v"})
	m.processOnce()
	readResponse(t, region, 0)

	region[transport.SeekState(0)] = byte(transport.StateRequest)
	sendRequest(t, region, 0, transport.Request{Method: "batch_exit"})
	m.processOnce()
	readResponse(t, region, 0)

	v, found, err := m.engine.Get("k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v", v)

	// Second batch aborted should not apply.
	region[transport.SeekState(0)] = byte(transport.StateRequest)
	sendRequest(t, region, 0, transport.Request{Method: "batch_enter"})
	m.processOnce()
	readResponse(t, region, 0)

	region[transport.SeekState(0)] = byte(transport.StateRequest)
	sendRequest(t, region, 0, transport.Request{Method: "batch_put", Key: "k2", Val: "v2"})
	m.processOnce()
	readResponse(t, region, 0)

	region[transport.SeekState(0)] = byte(transport.StateRequest)
	sendRequest(t, region, 0, transport.Request{Method: "batch_error"})
	m.processOnce()
	readResponse(t, region, 0)

	_, found, err = m.engine.Get("k2")
	require.NoError(t, err)
	require.False(t, found)
}

func TestCleanSlotOnDisconnect(t *testing.T) {
	m, region := newTestMaintainer()
	region[transport.SeekLock(0)] = byte(transport.LockHeld)

	sendRequest(t, region, 0, transport.Request{Method: "iterator", Prefix: ""})
	m.processOnce()
	readResponse(t, region, 0)
	require.NotNil(t, m.iterators[0])

	region[transport.SeekLock(0)] = byte(transport.LockClean)
	m.processOnce()

	require.Nil(t, m.iterators[0])
	require.Equal(t, transport.LockFree, transport.LockState(region[transport.SeekLock(0)]))
}

func TestRunExitsWhenNoSlotsHeld(t *testing.T) {
	m, _ := newTestMaintainer()
	err := m.Run(context.Background())
	require.NoError(t, err)
}
