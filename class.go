package flotalk

import (
	"sync"
	"sync/atomic"
)

// ClassID is a small integer identifying a class within the process, per
// spec.md section 3.4. Built-in class IDs are stable for the life of the
// process; cell-block (script) class IDs are drawn from a recyclable pool
// (see classIDPool below).
type ClassID int32

// DataHandle is an opaque 64-bit identifier an allocator uses to recover the
// storage behind a Reference. For cell-block-backed classes, the handle is
// literally a BlockID.
type DataHandle uint64

// Allocator maps data handles to typed per-instance storage for one class
// within one Context. Built-in classes own their storage and refcount table
// directly; cell-block-backed classes forward to the Context's Heap.
type Allocator interface {
	// AddReference increments whatever refcount backs handle.
	AddReference(ctx *Context, handle DataHandle)
	// RemoveReference decrements whatever refcount backs handle, releasing
	// the underlying storage if it drops to zero.
	RemoveReference(ctx *Context, handle DataHandle)
}

// ClassCallbacks is the static, process-wide behavior record for a class:
// dispatch tables (installed lazily into a per-Context classState) and the
// allocator-management entry points, per spec.md section 4.4.
type ClassCallbacks struct {
	// Name is used for diagnostics only.
	Name string
	// CreateInContext builds this class's allocator and initial dispatch
	// tables for one Context, the first time the class is referenced there.
	CreateInContext func(ctx *Context) *classState
	// CellBlockBacked marks a class whose data handle is a BlockID: its
	// add/remove-reference forwards directly to the Context's Heap rather
	// than to a class-owned allocator.
	CellBlockBacked bool
}

// classState is the per-Context realization of a class: its allocator (nil
// for cell-block-backed classes, which use the Context's Heap directly) and
// its instance/class dispatch tables.
type classState struct {
	allocator Allocator
	instance  *DispatchTable
	class     *DispatchTable
}

// classRegistry is the process-wide table from ClassID to static callbacks,
// per spec.md section 4.4.
type classRegistry struct {
	mu        sync.RWMutex
	callbacks []*ClassCallbacks
}

var globalClasses = &classRegistry{}

// RegisterClass assigns a fresh, stable ClassID to cb and returns it. It is
// meant to be called once per built-in class during process or Context
// initialization.
func RegisterClass(cb *ClassCallbacks) ClassID {
	globalClasses.mu.Lock()
	defer globalClasses.mu.Unlock()
	id := ClassID(len(globalClasses.callbacks))
	globalClasses.callbacks = append(globalClasses.callbacks, cb)
	return id
}

func (r *classRegistry) get(id ClassID) *ClassCallbacks {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) < 0 || int(id) >= len(r.callbacks) {
		return nil
	}
	return r.callbacks[id]
}

// classIDPool hands out ClassIDs for cell-block-backed (script) classes. It
// is process-global, per spec.md section 4.4, but exposes a "next unused"
// cursor so that repeatedly creating and discarding script classes across
// Contexts does not grow the ID space without bound (spec.md section 9):
// freed IDs go back on a free list and are handed out again before the
// cursor advances.
type classIDPool struct {
	mu       sync.Mutex
	next     int32
	freeList []ClassID
}

// cellBlockClassBase is the first ClassID available to the recyclable pool,
// placed after every built-in class registered via RegisterClass during
// standard-library initialization (see stdlib_*.go).
var cellBlockClassBase int32 = 1 << 16

var globalCellBlockClassIDs = &classIDPool{next: cellBlockClassBase}

// Acquire returns a ClassID for a new cell-block-backed class, reusing a
// freed ID if one is available.
func (p *classIDPool) Acquire() ClassID {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.freeList); n > 0 {
		id := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return id
	}
	id := ClassID(atomic.AddInt32(&p.next, 1) - 1)
	return id
}

// Release returns id to the pool's free list for reuse.
func (p *classIDPool) Release(id ClassID) {
	p.mu.Lock()
	p.freeList = append(p.freeList, id)
	p.mu.Unlock()
}

// ResetClassIDPoolForTesting restores the recyclable cell-block class ID
// pool to its initial state. It exists so that tests demonstrating P4
// (two Contexts created independently assign the same class ID when they
// first create cell-block classes in the same order) can establish that
// precondition deterministically; production code never calls it.
func ResetClassIDPoolForTesting() {
	globalCellBlockClassIDs.mu.Lock()
	globalCellBlockClassIDs.next = cellBlockClassBase
	globalCellBlockClassIDs.freeList = nil
	globalCellBlockClassIDs.mu.Unlock()
}

// NewCellBlockClass registers a fresh cell-block-backed ClassID and its
// callbacks, drawing the ID from the recyclable pool.
func NewCellBlockClass(createInContext func(ctx *Context) *classState) ClassID {
	id := globalCellBlockClassIDs.Acquire()
	cb := &ClassCallbacks{Name: "ScriptClass", CreateInContext: createInContext, CellBlockBacked: true}
	globalClasses.mu.Lock()
	for int(id) >= len(globalClasses.callbacks) {
		globalClasses.callbacks = append(globalClasses.callbacks, nil)
	}
	globalClasses.callbacks[id] = cb
	globalClasses.mu.Unlock()
	return id
}

// RetireCellBlockClass returns id to the recyclable pool. Callers must have
// already released every instance and dispatch-table resource of the class.
func RetireCellBlockClass(id ClassID) {
	globalCellBlockClassIDs.Release(id)
}
