package broker

import "github.com/dreamware/kvbroker/internal/engine"

// batchSession tracks one slot's open write-batch transaction. It
// mirrors the original implementation's generator-based _batch: every
// accumulated Put/Delete is applied to the underlying engine.Batch
// immediately, and the first error encountered is remembered so that a
// subsequent batch_exit discards instead of committing a partially
// failed transaction.
type batchSession struct {
	batch engine.Batch
	err   error
}

func newBatchSession(b engine.Batch) *batchSession {
	return &batchSession{batch: b}
}

func (s *batchSession) put(key string, val any) error {
	if s.err != nil {
		return s.err
	}
	if err := s.batch.Put(key, val); err != nil {
		s.err = err
		return err
	}
	return nil
}

func (s *batchSession) delete(key string) error {
	if s.err != nil {
		return s.err
	}
	if err := s.batch.Delete(key); err != nil {
		s.err = err
		return err
	}
	return nil
}

// commit applies the batch, unless an earlier operation already failed
// in which case it discards and returns that error.
func (s *batchSession) commit() error {
	if s.err != nil {
		_ = s.batch.Discard()
		return s.err
	}
	return s.batch.Commit()
}

// abort discards the batch unconditionally.
func (s *batchSession) abort() error {
	return s.batch.Discard()
}
