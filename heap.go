package flotalk

import (
	"sync"
	"sync/atomic"
)

// BlockID identifies a cell block within a Heap's arena.
type BlockID int32

// Cell identifies a single slot within a cell block: a (block, index) pair,
// per spec.md section 3.3.
type Cell struct {
	Block BlockID
	Index int
}

// cellBlock is the backing storage for one allocation: a fixed-length (until
// resized) array of Values plus an atomic refcount. Blocks are never moved
// or compacted, per spec.md section 4.3's rationale: cell addresses are
// embedded in closures and instance references, so an immobile arena avoids
// pointer-rewriting.
type cellBlock struct {
	values   []Value
	refcount int32
	// live is false once the block has been released to zero and its index
	// pushed onto the free list. A block on the free list must never be
	// dereferenced until allocate reassigns it (invariant I2).
	live bool
}

// Heap is the indexable arena of fixed-size Value arrays described in
// spec.md section 3.3 / 4.3.
type Heap struct {
	mu       sync.Mutex
	blocks   []*cellBlock
	freeList []BlockID
}

// NewHeap creates an empty heap.
func NewHeap() *Heap {
	return &Heap{}
}

// Allocate reserves a block of n Values, all initialized to Nil, and
// returns its BlockID with a refcount of 1. It reuses a free index if one is
// available, per spec.md section 4.3.
func (h *Heap) Allocate(n int) BlockID {
	h.mu.Lock()
	defer h.mu.Unlock()

	values := make([]Value, n)
	if len(h.freeList) > 0 {
		id := h.freeList[len(h.freeList)-1]
		h.freeList = h.freeList[:len(h.freeList)-1]
		b := h.blocks[id]
		b.values = values
		b.refcount = 1
		b.live = true
		return id
	}
	id := BlockID(len(h.blocks))
	h.blocks = append(h.blocks, &cellBlock{values: values, refcount: 1, live: true})
	return id
}

// Retain increments the refcount of block id. The caller must already hold
// a refcount on id (retain is never performed on a handle whose owner does
// not), which is what makes the relaxed-order atomic safe per spec.md
// section 5.
func (h *Heap) Retain(id BlockID) {
	b := h.blockUnchecked(id)
	n := atomic.AddInt32(&b.refcount, 1)
	if n <= 1 {
		panic("flotalk: retain on a block with non-positive refcount")
	}
}

// Release decrements the refcount of block id. If it drops from 1 to 0, the
// block's Values are released (recursively, via ctx), the index is pushed
// onto the free list, and the block is marked dead. It returns true exactly
// when this call freed the block.
func (h *Heap) Release(ctx *Context, id BlockID) bool {
	b := h.blockUnchecked(id)
	n := atomic.AddInt32(&b.refcount, -1)
	if n > 0 {
		return false
	}
	if n < 0 {
		panic("flotalk: release on an already-free block")
	}
	h.mu.Lock()
	values := b.values
	b.values = nil
	b.live = false
	h.freeList = append(h.freeList, id)
	h.mu.Unlock()

	if ctx != nil {
		ctx.ReleaseValues(values)
	}
	return true
}

// Resize grows or shrinks block id to newN slots. Growth fills new slots
// with Nil; shrinking releases the Values in the dropped tail.
func (h *Heap) Resize(ctx *Context, id BlockID, newN int) {
	b := h.blockUnchecked(id)
	old := b.values
	if newN <= len(old) {
		dropped := old[newN:]
		if ctx != nil {
			ctx.ReleaseValues(dropped)
		}
		b.values = old[:newN]
		return
	}
	grown := make([]Value, newN)
	copy(grown, old)
	b.values = grown
}

// Len returns the current slot count of block id.
func (h *Heap) Len(id BlockID) int {
	return len(h.blockUnchecked(id).values)
}

// Refcount returns the current refcount of block id, for diagnostics and
// property tests (P1/P2).
func (h *Heap) Refcount(id BlockID) int32 {
	return atomic.LoadInt32(&h.blockUnchecked(id).refcount)
}

// CellValue reads the value at c without bounds checking beyond a slice
// index, matching the evaluator's hot-path access pattern from spec.md
// section 4.3.
func (h *Heap) CellValue(c Cell) Value {
	return h.blockUnchecked(c.Block).values[c.Index]
}

// SetCellValue writes v into c, again unchecked.
func (h *Heap) SetCellValue(c Cell, v Value) {
	h.blockUnchecked(c.Block).values[c.Index] = v
}

func (h *Heap) blockUnchecked(id BlockID) *cellBlock {
	h.mu.Lock()
	b := h.blocks[id]
	h.mu.Unlock()
	return b
}
