package rkhevent

import (
	"sort"
	"strconv"
	"sync"

	"github.com/coachpo/rkh/errs"
	"github.com/coachpo/rkh/internal/pool"
)

// Manager owns the set of fixed-block event pools, ordered by ascending
// block size, and satisfies the event lifecycle manager contract (C1):
// register, alloc, recycle.
//
// alloc scans pools smallest-first and returns the first block from a pool
// whose block size is large enough. It never falls back to a larger pool's
// remaining blocks after failing the smallest fit — pool selection for a
// given size class is fixed at registration time, bounding fragmentation.
type Manager struct {
	mu      sync.RWMutex
	pools   []*sizedPool
	nextID  int
	metrics Metrics
}

type sizedPool struct {
	id        int
	blockSize int
	backing   *pool.BoundedPool
}

// Metrics receives counter/gauge updates from the manager. A nil Metrics is
// valid; all calls become no-ops.
type Metrics interface {
	SetPoolFree(poolID, blockSize int, free, minFree int64)
	IncAllocFailure(blockSize int)
}

// NewManager constructs an empty pool manager reporting to metrics; pass nil
// for a silent manager.
func NewManager(metrics Metrics) *Manager {
	return &Manager{metrics: metrics}
}

// RegisterPool appends a new fixed-block pool of the given block size and
// capacity. Pools are kept sorted ascending by block size so Alloc's
// smallest-fit scan is a simple linear walk.
func (m *Manager) RegisterPool(blockSize, capacity int) (int, error) {
	if blockSize <= 0 || capacity <= 0 {
		return 0, errs.New("rkhevent/register", errs.CodeInvalid, errs.WithMessage("block size and capacity must be positive"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	backing := pool.NewBoundedPool(poolName(id), capacity, func() any { return new(Event) })
	sp := &sizedPool{id: id, blockSize: blockSize, backing: backing}
	m.pools = append(m.pools, sp)
	sort.Slice(m.pools, func(i, j int) bool { return m.pools[i].blockSize < m.pools[j].blockSize })
	return id, nil
}

// Alloc returns a dynamic event carrying signal, backed by the smallest
// registered pool whose block size is at least size. It never blocks: a
// pool at capacity immediately yields OUT_OF_MEMORY rather than falling
// through to a larger pool.
func (m *Manager) Alloc(signal Signal, size int) (*Event, error) {
	m.mu.RLock()
	pools := m.pools
	m.mu.RUnlock()

	for _, sp := range pools {
		if sp.blockSize < size {
			continue
		}
		obj, ok := sp.backing.TryGet()
		m.reportFree(sp)
		if !ok {
			m.reportAllocFailure(size)
			return nil, errs.New("rkhevent/alloc", errs.CodeOutOfMemory,
				errs.WithMessage("pool exhausted"),
				errs.WithField("block_size", strconv.Itoa(sp.blockSize)))
		}
		ev := obj.(*Event)
		ev.Signal = signal
		ev.poolID = sp.id
		ev.refcount.Store(1)
		return ev, nil
	}
	m.reportAllocFailure(size)
	return nil, errs.New("rkhevent/alloc", errs.CodeOutOfMemory,
		errs.WithMessage("no pool large enough"),
		errs.WithField("requested_size", strconv.Itoa(size)))
}

// AddRef increments a dynamic event's reference count. Static events are
// unaffected. Called whenever an event is handed to an additional holder —
// for example, a second queue post of the same reference.
func (m *Manager) AddRef(ev *Event) {
	if ev == nil || !ev.IsDynamic() {
		return
	}
	ev.refcount.Add(1)
}

// Recycle is a no-op for static events. For dynamic events it decrements the
// reference count; when it reaches zero the block is returned to its origin
// pool. Callers must invoke Recycle under the framework critical section.
func (m *Manager) Recycle(ev *Event) {
	if ev == nil || !ev.IsDynamic() {
		return
	}
	if ev.refcount.Add(-1) > 0 {
		return
	}

	m.mu.RLock()
	var origin *sizedPool
	for _, sp := range m.pools {
		if sp.id == ev.poolID {
			origin = sp
			break
		}
	}
	m.mu.RUnlock()
	if origin == nil {
		return
	}
	origin.backing.Put(ev)
	m.reportFree(origin)
}

// Stats reports the capacity, current free count, and historical minimum
// free count for the pool identified by poolID. This implements the
// introspection contract (NumUsed/NumMin/NumBlocks) left unfinished by the
// source this framework follows.
type Stats struct {
	BlockSize int
	Capacity  int
	NumFree   int
	NumUsed   int
	NumMin    int
}

// Stats returns a point-in-time snapshot for the pool identified by poolID.
func (m *Manager) Stats(poolID int) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sp := range m.pools {
		if sp.id != poolID {
			continue
		}
		free := sp.backing.Available()
		return Stats{
			BlockSize: sp.blockSize,
			Capacity:  sp.backing.Capacity(),
			NumFree:   free,
			NumUsed:   sp.backing.Capacity() - free,
			NumMin:    sp.backing.MinFree(),
		}, nil
	}
	return Stats{}, errs.New("rkhevent/stats", errs.CodeNotFound, errs.WithMessage("pool not registered"))
}

func (m *Manager) reportFree(sp *sizedPool) {
	if m.metrics == nil {
		return
	}
	m.metrics.SetPoolFree(sp.id, sp.blockSize, int64(sp.backing.Available()), int64(sp.backing.MinFree()))
}

func (m *Manager) reportAllocFailure(size int) {
	if m.metrics == nil {
		return
	}
	m.metrics.IncAllocFailure(size)
}

func poolName(id int) string {
	return "rkhevent-pool-" + strconv.Itoa(id)
}
