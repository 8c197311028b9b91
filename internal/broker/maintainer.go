// Package broker implements the single owning process that talks
// directly to the KV engine on behalf of every peer attached to a slot
// table: the maintainer loop. It is the only component in this module
// allowed to hold an open engine.Engine, which is what lets many
// unrelated OS processes share one embedded LSM database.
package broker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dreamware/kvbroker/internal/engine"
	"github.com/dreamware/kvbroker/internal/transport"
)

// Maintainer owns an engine.Engine and services every slot in region
// whose state byte asks for work. It is not safe for concurrent use —
// exactly one goroutine should ever call Run, matching the single
// dedicated OS process the original implementation dedicates to this
// role.
type Maintainer struct {
	region []byte
	engine engine.Engine
	logger *zap.Logger
	id     uuid.UUID

	iterators [transport.NumSlots]engine.Iterator
	batches   [transport.NumSlots]*batchSession
}

// New returns a Maintainer ready to service region against eng. A nil
// logger defaults to a no-op logger. Every Maintainer is tagged with a
// random id so its log lines can be told apart from a previous
// maintainer instance's that owned the same engine directory across a
// restart.
func New(region []byte, eng engine.Engine, logger *zap.Logger) *Maintainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.New()
	return &Maintainer{region: region, engine: eng, logger: logger.With(zap.String("maintainer_id", id.String())), id: id}
}

// Run services requests until no slot is held by a peer, then tears
// down any iterators/batches still open and returns. It blocks the
// calling goroutine; callers that want to run it as a background
// process should invoke it from their own goroutine or os/exec child.
//
// Run also returns early if ctx is canceled, leaving any in-flight
// peer without a response — callers doing a controlled shutdown should
// prefer waiting for every peer to detach over canceling ctx.
func (m *Maintainer) Run(ctx context.Context) error {
	defer m.teardown()

	ticker := time.NewTicker(transport.Tick)
	defer ticker.Stop()

	m.logger.Info("maintainer started")

	for m.anyLockHeld() {
		m.processOnce()

		select {
		case <-ticker.C:
		case <-ctx.Done():
			m.logger.Info("maintainer stopping on context cancellation")
			return ctx.Err()
		}
	}

	m.logger.Info("maintainer exiting: no slots held")
	return nil
}

func (m *Maintainer) anyLockHeld() bool {
	for i := 0; i < transport.NumSlots; i++ {
		if transport.LockState(m.region[transport.SeekLock(i)]) != transport.LockFree {
			return true
		}
	}
	return false
}

func (m *Maintainer) processOnce() {
	for i := 0; i < transport.NumSlots; i++ {
		if transport.SlotState(m.region[transport.SeekState(i)]) == transport.StateRequest {
			m.handleRequest(i)
		}

		if transport.LockState(m.region[transport.SeekLock(i)]) == transport.LockClean {
			m.cleanupSlot(i)
			m.region[transport.SeekLock(i)] = byte(transport.LockFree)
		}
	}
}

func (m *Maintainer) cleanupSlot(i int) {
	if it := m.iterators[i]; it != nil {
		_ = it.Close()
		m.iterators[i] = nil
	}
	if b := m.batches[i]; b != nil {
		_ = b.abort()
		m.batches[i] = nil
	}
}

func (m *Maintainer) teardown() {
	for i := 0; i < transport.NumSlots; i++ {
		m.cleanupSlot(i)
	}
}

func (m *Maintainer) respond(i int, resp transport.Response) {
	if err := transport.PutResponse(m.region, i, resp); err != nil {
		m.logger.Error("failed writing response frame", zap.Int("slot", i), zap.Error(err))
		return
	}
	m.region[transport.SeekState(i)] = byte(transport.StateResponse)
}

func (m *Maintainer) respondError(i int, err error) {
	m.respond(i, transport.Response{HasError: true, Error: err.Error()})
}

func (m *Maintainer) respondResult(i int, result any) {
	m.respond(i, transport.Response{Result: result})
}
