package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/gofrs/flock"
)

// lockManager hands out one RWMutex per dataset so mutating operations are
// serialized per dataset while reads stay concurrent. Multi-dataset
// operations (cross-dataset cascades) must use LockAll, which acquires the
// writer locks in sorted dataset-id order to prevent deadlock when two
// cascades cross datasets in opposite directions.
type lockManager struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func newLockManager() *lockManager {
	return &lockManager{locks: make(map[string]*sync.RWMutex)}
}

func (m *lockManager) get(datasetID string) *sync.RWMutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[datasetID]
	if !ok {
		l = &sync.RWMutex{}
		m.locks[datasetID] = l
	}
	return l
}

// Lock takes the writer lock of a single dataset. The returned function
// releases it.
func (m *lockManager) Lock(datasetID string) func() {
	l := m.get(datasetID)
	l.Lock()
	return l.Unlock
}

// LockAll takes the writer locks of all given datasets in sorted id order.
// Duplicates are ignored. The returned function releases them in reverse.
func (m *lockManager) LockAll(datasetIDs []string) func() {
	ids := slices.Clone(datasetIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	held := make([]*sync.RWMutex, 0, len(ids))
	for _, id := range ids {
		l := m.get(id)
		l.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// processLockFile is created inside the data directory to keep a second
// process from opening the same store.
const processLockFile = ".lock"

// AcquireProcessLock takes an exclusive flock on the data directory.
// Returns an error immediately if another process holds it; the caller
// should treat that as fatal.
func AcquireProcessLock(root string) (*flock.Flock, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	fl := flock.New(filepath.Join(root, processLockFile))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock data directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("data directory %s is in use by another process", root)
	}
	return fl, nil
}
