package runtime

import (
	"context"
	"time"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/errors"
)

// unavailableStore is the rejecting stand-in handed out when no store was
// configured or the runtime has stopped. Every operation fails with a
// recoverable typed error, so callers degrade instead of panicking on nil.
type unavailableStore struct{}

var _ core.Store = unavailableStore{}

func errStoreUnavailable() error {
	return errors.New(errors.CodeUnavailable, "no memory store available", nil).
		WithRecoverable(true)
}

func (unavailableStore) SaveMemory(_ context.Context, _ core.Memory) (core.ID, error) {
	return core.ZeroID, errStoreUnavailable()
}

func (unavailableStore) GetMemory(_ context.Context, _ core.ID) (*core.Memory, error) {
	return nil, errStoreUnavailable()
}

func (unavailableStore) GetMemories(_ context.Context, _ core.MemoryQuery) ([]core.Memory, error) {
	return nil, errStoreUnavailable()
}

func (unavailableStore) SearchMemories(_ context.Context, _ []float32, _ core.SearchFilter) ([]core.MemoryMatch, error) {
	return nil, errStoreUnavailable()
}

func (unavailableStore) CountMemories(_ context.Context, _ core.ID) (int, error) {
	return 0, errStoreUnavailable()
}

func (unavailableStore) DeleteMemory(_ context.Context, _ core.ID) error {
	return errStoreUnavailable()
}

func (unavailableStore) DeleteMemoriesBefore(_ context.Context, _ core.ID, _ time.Time) (int, error) {
	return 0, errStoreUnavailable()
}
