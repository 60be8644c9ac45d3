// Package lockmgr implements the per-frame substate lock manager. Locks
// are tracked per (NodeId, Partition, Key) with flag
// semantics {read_only, mutable, force_write}; every open lock belongs to
// exactly one call frame and must be dropped before that frame exits.
package lockmgr

import (
	"fmt"
	"sync"

	"txruntime/engine/ids"
	"txruntime/engine/substate"
)

// Flags describe how a substate is locked.
type Flags struct {
	ReadOnly   bool
	Mutable    bool
	ForceWrite bool
}

// ReadOnlyFlags is the common case of a shared, read-only lock.
var ReadOnlyFlags = Flags{ReadOnly: true}

// MutableFlags is the common case of an exclusive, read-write lock.
var MutableFlags = Flags{Mutable: true}

// Handle identifies one open lock.
type Handle uint64

type addr struct {
	node      ids.NodeId
	partition substate.Partition
	key       string
}

type lockState struct {
	addr    addr
	frame   int
	flags   Flags
	readers int // count of concurrently-held read_only locks in this frame (always <=1 per frame per substate, kept for clarity)
}

// Manager tracks every open lock across all call frames of one transaction.
type Manager struct {
	mu      sync.Mutex
	next    Handle
	locks   map[Handle]*lockState
	byAddr  map[addr][]Handle // which frames/handles currently hold a given substate
	byFrame map[int][]Handle
}

// New returns an empty lock manager.
func New() *Manager {
	return &Manager{
		locks:   make(map[Handle]*lockState),
		byAddr:  make(map[addr][]Handle),
		byFrame: make(map[int][]Handle),
	}
}

func toAddr(node ids.NodeId, partition substate.Partition, key substate.Key) addr {
	return addr{node: node, partition: partition, key: keyString(key)}
}

func keyString(k substate.Key) string {
	if k.HasSort {
		return fmt.Sprintf("s:%d:%x", k.SortPrefix, k.Bytes)
	}
	if k.Bytes != nil {
		return "b:" + string(k.Bytes)
	}
	return fmt.Sprintf("f:%d", k.FieldOffset)
}

// Lock acquires a lock on the given substate for frame, per the flag
// semantics:
//   - read_only locks are shared; mutable is exclusive; force_write is
//     exclusive and also permitted on otherwise-read-only substates.
//   - A frame holding a mutable lock may also read it.
//   - A transaction may not lock the same substate twice from the same
//     frame except to upgrade via force_write.
func (m *Manager) Lock(frame int, node ids.NodeId, partition substate.Partition, key substate.Key, flags Flags) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := toAddr(node, partition, key)
	holders := m.byAddr[a]

	for _, h := range holders {
		ls := m.locks[h]
		if ls.frame == frame {
			if flags.ForceWrite {
				break // upgrade permitted
			}
			return 0, fmt.Errorf("lockmgr: substate already locked by this frame")
		}
		if flags.Mutable || flags.ForceWrite || ls.flags.Mutable {
			return 0, fmt.Errorf("lockmgr: substate locked by another frame")
		}
		// both read_only: shared, fall through to grant another handle
	}

	m.next++
	h := m.next
	m.locks[h] = &lockState{addr: a, frame: frame, flags: flags}
	m.byAddr[a] = append(m.byAddr[a], h)
	m.byFrame[frame] = append(m.byFrame[frame], h)
	return h, nil
}

// Drop releases a previously acquired lock. Dropping an already-dropped
// handle within the same frame is idempotent (a no-op): drop_lock is
// idempotent within a frame.
func (m *Manager) Drop(frame int, h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls, ok := m.locks[h]
	if !ok {
		return nil // idempotent
	}
	if ls.frame != frame {
		return fmt.Errorf("lockmgr: handle %d does not belong to frame %d", h, frame)
	}
	delete(m.locks, h)
	m.byAddr[ls.addr] = removeHandle(m.byAddr[ls.addr], h)
	m.byFrame[frame] = removeHandle(m.byFrame[frame], h)
	return nil
}

// OpenCount returns how many locks remain open for a frame.
func (m *Manager) OpenCount(frame int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byFrame[frame])
}

// DropAll force-releases every lock held by frame. The kernel and the
// executor do not call it: locks left open by a failed transaction stay
// registered in the Manager.
func (m *Manager) DropAll(frame int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range append([]Handle(nil), m.byFrame[frame]...) {
		ls := m.locks[h]
		delete(m.locks, h)
		m.byAddr[ls.addr] = removeHandle(m.byAddr[ls.addr], h)
	}
	delete(m.byFrame, frame)
}

// TotalOpen reports the number of open locks across every frame. The
// executor does not check it when a transaction ends.
func (m *Manager) TotalOpen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func removeHandle(hs []Handle, target Handle) []Handle {
	out := hs[:0]
	for _, h := range hs {
		if h != target {
			out = append(out, h)
		}
	}
	return out
}
