package heap_test

import (
	"testing"

	"github.com/dantte-lp/netstackd/internal/heap"
)

func newHeap(t *testing.T, size int) *heap.Heap {
	t.Helper()
	h := heap.New()
	if err := h.Initialize(make([]byte, size)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return h
}

// TestAllocateDisjoint verifies property 1 from spec.md §8: every live
// allocation's region is disjoint from every other live allocation.
func TestAllocateDisjoint(t *testing.T) {
	t.Parallel()

	h := newHeap(t, 4096)
	var regions [][2]int
	for i := range 10 {
		p := h.Allocate(32 + i)
		if p == heap.NullAddr {
			t.Fatalf("allocate %d: got null", i)
		}
		regions = append(regions, [2]int{p, p + 32 + i})
	}
	for i := range regions {
		for j := range regions {
			if i == j {
				continue
			}
			a, b := regions[i], regions[j]
			if a[0] < b[1] && b[0] < a[1] {
				t.Fatalf("regions %d=%v and %d=%v overlap", i, a, j, b)
			}
		}
	}
}

// TestAllocateFreeIdempotent verifies property 2 from spec.md §8:
// free(allocate(n)) restores the prior stats.
func TestAllocateFreeIdempotent(t *testing.T) {
	t.Parallel()

	h := newHeap(t, 1024)
	before := h.Stats()

	p := h.Allocate(100)
	if p == heap.NullAddr {
		t.Fatal("allocate: got null")
	}
	h.Free(p)

	after := h.Stats()
	if after.UsedSize != before.UsedSize || after.FreeSize != before.FreeSize {
		t.Fatalf("stats not restored: before=%+v after=%+v", before, after)
	}
	if after.AllocationCount != before.AllocationCount+1 {
		t.Fatalf("allocation count: got %d, want %d", after.AllocationCount, before.AllocationCount+1)
	}
}

// TestCoalescingLeavesNoAdjacentFree verifies property 3 from spec.md §8
// via the seed scenario S6 in spec.md §8: after freeing three adjacent
// allocations in non-address order, exactly one free block remains.
func TestCoalescingLeavesNoAdjacentFree(t *testing.T) {
	t.Parallel()

	h := newHeap(t, 1024)
	p1 := h.Allocate(100)
	p2 := h.Allocate(100)
	p3 := h.Allocate(100)

	h.Free(p1)
	h.Free(p3)
	h.Free(p2)

	dump := h.DebugDump()
	freeBlocks := 0
	for _, b := range dump {
		if !b.Used {
			freeBlocks++
		}
	}
	if freeBlocks != 1 {
		t.Fatalf("expected exactly one free block after full coalesce, got %d: %+v", freeBlocks, dump)
	}

	for i := 1; i < len(dump); i++ {
		if !dump[i-1].Used && !dump[i].Used {
			t.Fatalf("adjacent free blocks at index %d: %+v", i, dump)
		}
	}
}

// TestAllocateAlignedAlignment verifies property 4 from spec.md §8 across
// the listed alignment values.
func TestAllocateAlignedAlignment(t *testing.T) {
	t.Parallel()

	for _, align := range []int{1, 2, 4, 8, 16, 64, 4096} {
		h := newHeap(t, 1<<20)
		p := h.AllocateAligned(128, align)
		if p == heap.NullAddr {
			t.Fatalf("align=%d: allocate returned null", align)
		}
		if p%align != 0 {
			t.Errorf("align=%d: address %d not aligned", align, p)
		}
	}
}

// TestAllocateAlignedFreeRestoresStats verifies that the prefix gap carved
// off by AllocateAligned is accounted as free, not leaked, and that
// freeing the aligned allocation restores the original stats (spec.md §4.A
// invariant iv).
func TestAllocateAlignedFreeRestoresStats(t *testing.T) {
	t.Parallel()

	h := newHeap(t, 1<<20)
	before := h.Stats()

	p := h.AllocateAligned(128, 4096)
	if p == heap.NullAddr {
		t.Fatal("allocate: got null")
	}

	mid := h.Stats()
	if mid.UsedSize != before.UsedSize+128 {
		t.Fatalf("used size after aligned allocate: got %d, want %d", mid.UsedSize, before.UsedSize+128)
	}
	if mid.FreeSize != before.FreeSize-128 {
		t.Fatalf("free size after aligned allocate: got %d, want %d", mid.FreeSize, before.FreeSize-128)
	}

	h.Free(p)

	after := h.Stats()
	if after.UsedSize != before.UsedSize || after.FreeSize != before.FreeSize {
		t.Fatalf("stats not restored: before=%+v after=%+v", before, after)
	}
}

// TestUsedNeverExceedsTotal verifies property 5 from spec.md §8 and that
// AllocationCount never decreases across a mixed sequence of operations.
func TestUsedNeverExceedsTotal(t *testing.T) {
	t.Parallel()

	h := newHeap(t, 2048)
	var last uint64
	var live []int
	for i := range 50 {
		switch i % 3 {
		case 0:
			p := h.Allocate(16)
			if p != heap.NullAddr {
				live = append(live, p)
			}
		case 1:
			if len(live) > 0 {
				h.Free(live[0])
				live = live[1:]
			}
		case 2:
			if len(live) > 0 {
				live[0] = h.Reallocate(live[0], 32)
			}
		}
		stats := h.Stats()
		if stats.UsedSize > stats.TotalSize {
			t.Fatalf("step %d: used %d exceeds total %d", i, stats.UsedSize, stats.TotalSize)
		}
		if stats.AllocationCount < last {
			t.Fatalf("step %d: allocation count decreased: %d < %d", i, stats.AllocationCount, last)
		}
		last = stats.AllocationCount
	}
}

func TestAllocateZeroSizeTreatedAsOne(t *testing.T) {
	t.Parallel()

	h := newHeap(t, 256)
	p := h.Allocate(0)
	if p == heap.NullAddr {
		t.Fatal("allocate(0): got null")
	}
}

func TestFreeNullIsNoop(t *testing.T) {
	t.Parallel()

	h := newHeap(t, 256)
	before := h.Stats()
	h.Free(heap.NullAddr)
	after := h.Stats()
	if before != after {
		t.Fatalf("free(null) changed stats: before=%+v after=%+v", before, after)
	}
}

func TestReallocateFromNullBehavesAsAllocate(t *testing.T) {
	t.Parallel()

	h := newHeap(t, 256)
	p := h.Reallocate(heap.NullAddr, 64)
	if p == heap.NullAddr {
		t.Fatal("reallocate(null, 64): got null")
	}
}

func TestReallocateToZeroFrees(t *testing.T) {
	t.Parallel()

	h := newHeap(t, 256)
	p := h.Allocate(64)
	before := h.Stats()

	got := h.Reallocate(p, 0)
	if got != heap.NullAddr {
		t.Fatalf("reallocate(p, 0): got %d, want null", got)
	}

	after := h.Stats()
	if after.UsedSize != before.UsedSize-64 {
		t.Fatalf("used size after free-via-reallocate: got %d, want %d", after.UsedSize, before.UsedSize-64)
	}
}

func TestReallocateGrowCopiesData(t *testing.T) {
	t.Parallel()

	h := newHeap(t, 4096)
	p := h.Allocate(16)
	copy(h.Bytes(p, 16), []byte("0123456789abcdef"))

	// Force a move by keeping the heap too fragmented for an in-place grow:
	// allocate a neighbour so the block at p cannot expand in place.
	h2 := newHeap(t, 4096)
	q := h2.Allocate(16)
	copy(h2.Bytes(q, 16), []byte("0123456789abcdef"))
	h2.Allocate(16) // pins the neighbour so growth must move.

	grown := h2.Reallocate(q, 64)
	if grown == heap.NullAddr {
		t.Fatal("reallocate grow: got null")
	}
	if got := string(h2.Bytes(grown, 16)); got != "0123456789abcdef" {
		t.Fatalf("reallocate grow: data = %q, want original prefix", got)
	}
	_ = p
}

func TestOutOfMemoryReturnsNull(t *testing.T) {
	t.Parallel()

	h := newHeap(t, 64)
	if p := h.Allocate(1000); p != heap.NullAddr {
		t.Fatalf("allocate(1000) on a 64-byte heap: got %d, want null", p)
	}
}

func TestExpandHeapHookExtendsCapacity(t *testing.T) {
	t.Parallel()

	h := heap.New()
	region := make([]byte, 64)
	if err := h.Initialize(region); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	h.SetExpandHeap(func(minSize int) ([]byte, bool) {
		grown := make([]byte, 64+minSize+64)
		copy(grown, region)
		return grown, true
	})

	p := h.Allocate(128)
	if p == heap.NullAddr {
		t.Fatal("allocate after expand: got null")
	}
	if h.Stats().TotalSize <= 64 {
		t.Fatalf("total size did not grow: %+v", h.Stats())
	}
}

func TestDoubleInitializeFails(t *testing.T) {
	t.Parallel()

	h := newHeap(t, 64)
	if err := h.Initialize(make([]byte, 64)); err == nil {
		t.Fatal("second Initialize: expected error, got nil")
	}
}
