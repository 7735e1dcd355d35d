package flotalk

import "testing"

// TestHeapRefcountBalance covers P1: a block's refcount tracks exactly the
// number of outstanding Retain calls against its one allocation reference,
// and only the final matching Release frees it.
func TestHeapRefcountBalance(t *testing.T) {
	h := NewHeap()
	id := h.Allocate(2)
	if got := h.Refcount(id); got != 1 {
		t.Fatalf("fresh allocation refcount = %d, want 1", got)
	}

	h.Retain(id)
	h.Retain(id)
	if got := h.Refcount(id); got != 3 {
		t.Fatalf("refcount after two retains = %d, want 3", got)
	}

	if freed := h.Release(nil, id); freed {
		t.Fatal("release dropped a non-zero refcount block")
	}
	if freed := h.Release(nil, id); freed {
		t.Fatal("release dropped a non-zero refcount block")
	}
	if got := h.Refcount(id); got != 1 {
		t.Fatalf("refcount before final release = %d, want 1", got)
	}
	if freed := h.Release(nil, id); !freed {
		t.Fatal("final release did not report freeing the block")
	}
}

// TestHeapNoUseAfterFree covers P2: a block whose refcount has dropped to
// zero is recycled onto the free list and rejects a further Release rather
// than silently corrupting an unrelated block's refcount.
func TestHeapNoUseAfterFree(t *testing.T) {
	h := NewHeap()
	id := h.Allocate(1)
	h.SetCellValue(Cell{Block: id, Index: 0}, NewInt(7))

	if freed := h.Release(nil, id); !freed {
		t.Fatal("expected the only reference's release to free the block")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected releasing an already-free block to panic")
		}
	}()
	h.Release(nil, id)
}

// TestHeapReallocationReusesFreedSlot shows that a freed block's index is
// handed back out with fresh zero-valued storage, never the stale Values of
// the block that previously occupied it.
func TestHeapReallocationReusesFreedSlot(t *testing.T) {
	h := NewHeap()
	first := h.Allocate(1)
	h.SetCellValue(Cell{Block: first, Index: 0}, NewInt(99))
	h.Release(nil, first)

	second := h.Allocate(1)
	if second != first {
		t.Fatalf("expected freed id %d to be reused, got %d", first, second)
	}
	if got := h.CellValue(Cell{Block: second, Index: 0}); got.Kind != KindNil {
		t.Fatalf("reallocated block slot = %+v, want Nil", got)
	}
	if got := h.Refcount(second); got != 1 {
		t.Fatalf("reallocated block refcount = %d, want 1", got)
	}
}
