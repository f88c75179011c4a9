package allocator

import (
	"unsafe"

	"github.com/orizon-lang/cmagic/internal/assert"
)

// chunkHeader is the intrusive doubly linked list node threaded through
// every live allocation in a Region. Free space is never itself linked —
// it exists only as the gap between consecutive chunkHeaders (or between
// the pool boundary and the first/last chunk) — exactly as
// original_source/src/memory.c threads its chunk_t list.
type chunkHeader struct {
	next, prev unsafe.Pointer // *chunkHeader
	slots      uintptr        // total slots this node occupies, header included
	payload    uintptr        // bytes actually requested by the caller
}

var slotSize = unsafe.Sizeof(chunkHeader{})

// FreeResult mirrors cmagic_memory_free_result_t: cmagic_memory_free
// reports what happened rather than silently no-op'ing on a bad pointer.
type FreeResult int

const (
	FreeOK FreeResult = iota
	FreeOKNull
	FreeErrUninitialized
	FreeErrOutsideRegion
	FreeErrNotAllocated
)

// Region is the fixed-region allocator (C1 alignment helpers + C3). It
// never grows: Init binds it to a caller-supplied byte slice once, and
// every Allocate/Reallocate is satisfied from that slice alone, first-fit,
// single free list — no best-fit, buddy, or slab strategy.
type Region struct {
	backing []byte // retained so the GC never reclaims the pool out from under us

	poolBegin  unsafe.Pointer
	poolEnd    unsafe.Pointer
	totalSlots uintptr

	head unsafe.Pointer // *chunkHeader, nil when the region holds no allocations
}

// defaultRegion is the process-wide singleton spec.md's C3 describes: one
// region per program, initialised once via RegionInit. Region itself
// stays exported so tests (and callers who genuinely want more than one
// fixed-region allocator in the same process) can construct independent
// instances instead of going through the singleton.
var defaultRegion Region

// RegionInit binds the process-wide region singleton to buf. See
// (*Region).Init for the alignment and too-small-to-use contract.
func RegionInit(buf []byte) {
	defaultRegion.Init(buf)
}

// RegionVtable returns an Allocator bound to the process-wide region
// singleton.
func RegionVtable() *Allocator {
	return defaultRegion.Vtable()
}

// RegionFree releases ptr from the process-wide region singleton.
func RegionFree(ptr unsafe.Pointer) FreeResult {
	return defaultRegion.Free(ptr)
}

// RegionBytesInUse reports bytes in use in the process-wide region singleton.
func RegionBytesInUse() uintptr {
	return defaultRegion.BytesInUse()
}

// RegionAllocations reports the live allocation count in the process-wide
// region singleton.
func RegionAllocations() int {
	return defaultRegion.Allocations()
}

// RegionFreeBytes reports free bytes in the process-wide region singleton.
func RegionFreeBytes() uintptr {
	return defaultRegion.FreeBytes()
}

// NewRegion allocates and initializes an independent Region over a fresh
// buffer of the requested size, bypassing the process-wide singleton.
// Most production callers bind to caller-owned memory via RegionInit
// instead; NewRegion exists for tests and for callers who deliberately
// want more than one region.
func NewRegion(size uintptr) *Region {
	r := &Region{}
	r.Init(make([]byte, size))

	return r
}

// Init binds the region to buf. buf's usable span is aligned inward to
// chunkHeader's natural alignment on both ends, so a Region over a buffer
// too small to hold even the sentinel bookkeeping ends up with
// totalSlots == 0 — every subsequent Allocate then fails and Free reports
// FreeErrUninitialized, matching cmagic_memory_init's contract for a pool
// too small to use.
func (r *Region) Init(buf []byte) {
	r.backing = buf
	r.head = nil

	if len(buf) == 0 {
		r.poolBegin, r.poolEnd, r.totalSlots = nil, nil, 0
		return
	}

	base := uintptr(unsafe.Pointer(&buf[0]))
	alignment := uintptr(unsafe.Alignof(chunkHeader{}))

	begin := alignUp(base, alignment)
	end := alignDown(base+uintptr(len(buf)), alignment)

	if end <= begin {
		r.poolBegin, r.poolEnd, r.totalSlots = nil, nil, 0
		return
	}

	r.poolBegin = unsafe.Add(unsafe.Pointer(&buf[0]), begin-base)
	r.poolEnd = unsafe.Add(unsafe.Pointer(&buf[0]), end-base)
	r.totalSlots = (end - begin) / slotSize
}

// Vtable returns an Allocator bound to this region.
func (r *Region) Vtable() *Allocator {
	return &Allocator{
		Allocate:   r.Allocate,
		Reallocate: r.Reallocate,
		Release:    r.free,
	}
}

func ceilDivSlots(size uintptr) uintptr {
	return (size + slotSize - 1) / slotSize
}

func slotsNeeded(size uintptr) uintptr {
	return 1 + ceilDivSlots(size)
}

func headerOf(ptr unsafe.Pointer) *chunkHeader {
	return (*chunkHeader)(ptr)
}

func payloadOf(h *chunkHeader) unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(h), slotSize)
}

// Allocate reserves size bytes from the region's single free list,
// first-fit: the first gap (before the first node, between two
// consecutive nodes, or after the last node up to the pool end) large
// enough to hold a header plus the requested bytes wins. Returns nil if
// no gap is large enough.
func (r *Region) Allocate(size uintptr) unsafe.Pointer {
	if r.totalSlots == 0 {
		return nil
	}

	needed := slotsNeeded(size)

	var prevNode *chunkHeader
	cursor := r.head

	for {
		var gapStart unsafe.Pointer
		if prevNode == nil {
			gapStart = r.poolBegin
		} else {
			gapStart = unsafe.Add(payloadOf(prevNode), (prevNode.slots-1)*slotSize)
		}

		var gapEnd unsafe.Pointer
		if cursor == nil {
			gapEnd = r.poolEnd
		} else {
			gapEnd = unsafe.Pointer(headerOf(cursor))
		}

		gapSlots := (uintptr(gapEnd) - uintptr(gapStart)) / slotSize
		if gapSlots >= needed {
			return r.insertAt(gapStart, needed, size, prevNode, cursor)
		}

		if cursor == nil {
			return nil
		}

		prevNode = headerOf(cursor)
		cursor = prevNode.next
	}
}

func (r *Region) insertAt(at unsafe.Pointer, slots, payload uintptr, prevNode *chunkHeader, next unsafe.Pointer) unsafe.Pointer {
	node := headerOf(at)
	node.slots = slots
	node.payload = payload
	node.next = next
	if prevNode == nil {
		node.prev = nil
		r.head = at
	} else {
		node.prev = unsafe.Pointer(prevNode)
		prevNode.next = at
	}

	if next != nil {
		headerOf(next).prev = at
	}

	return payloadOf(node)
}

func (r *Region) findNode(ptr unsafe.Pointer) *chunkHeader {
	if uintptr(ptr) < uintptr(r.poolBegin) || uintptr(ptr) >= uintptr(r.poolEnd) {
		return nil
	}

	for cursor := r.head; cursor != nil; {
		node := headerOf(cursor)
		if payloadOf(node) == ptr {
			return node
		}

		cursor = node.next
	}

	return nil
}

func (r *Region) unlink(node *chunkHeader) {
	if node.prev != nil {
		headerOf(node.prev).next = node.next
	} else {
		r.head = node.next
	}

	if node.next != nil {
		headerOf(node.next).prev = node.prev
	}
}

// Free releases the block at ptr, returning a status describing the
// outcome. Unlike Release (the Allocator-vtable-facing method), Free
// never panics and reports every failure mode the original C contract
// distinguishes.
func (r *Region) Free(ptr unsafe.Pointer) FreeResult {
	if r.totalSlots == 0 {
		return FreeErrUninitialized
	}

	if ptr == nil {
		return FreeOKNull
	}

	if uintptr(ptr) < uintptr(r.poolBegin) || uintptr(ptr) >= uintptr(r.poolEnd) {
		return FreeErrOutsideRegion
	}

	node := r.findNode(ptr)
	if node == nil {
		return FreeErrNotAllocated
	}

	r.unlink(node)

	return FreeOK
}

func (r *Region) free(ptr unsafe.Pointer) {
	result := r.Free(ptr)
	assert.That(result == FreeOK || result == FreeOKNull, "allocator: Release on an invalid region pointer")
}

// Reallocate resizes the block at ptr to size bytes, shrinking or
// extending in place when the neighboring gap allows it and otherwise
// falling back to allocate-copy-free. A nil ptr behaves as Allocate; a
// failed allocation on the fallback path leaves the original block
// untouched and returns nil, matching realloc's classic contract.
func (r *Region) Reallocate(ptr unsafe.Pointer, size uintptr) unsafe.Pointer {
	if ptr == nil {
		return r.Allocate(size)
	}

	node := r.findNode(ptr)
	if node == nil {
		return nil
	}

	needed := slotsNeeded(size)

	if needed <= node.slots {
		node.slots = needed
		node.payload = size
		return ptr
	}

	var gapEnd unsafe.Pointer
	if node.next == nil {
		gapEnd = r.poolEnd
	} else {
		gapEnd = unsafe.Pointer(headerOf(node.next))
	}

	availableSlots := (uintptr(gapEnd) - uintptr(unsafe.Pointer(node))) / slotSize
	if availableSlots >= needed {
		node.slots = needed
		node.payload = size
		return ptr
	}

	newPtr := r.Allocate(size)
	if newPtr == nil {
		return nil
	}

	copyLen := node.payload
	if size < copyLen {
		copyLen = size
	}

	if copyLen > 0 {
		copy(unsafe.Slice((*byte)(newPtr), copyLen), unsafe.Slice((*byte)(ptr), copyLen))
	}

	r.unlink(node)

	return newPtr
}

// BytesInUse sums the payload size of every live allocation.
func (r *Region) BytesInUse() uintptr {
	var total uintptr
	for cursor := r.head; cursor != nil; {
		node := headerOf(cursor)
		total += node.payload
		cursor = node.next
	}

	return total
}

// Allocations counts live allocations.
func (r *Region) Allocations() int {
	count := 0
	for cursor := r.head; cursor != nil; {
		count++
		cursor = headerOf(cursor).next
	}

	return count
}

// FreeBytes reports slotSize * (totalSlots - 1 - the data slots of every
// live allocation). Header slots of live allocations are not subtracted,
// and the reported space need not be contiguous. It is computed from the
// region's actual span rather than from
// unsafe.Sizeof of a pointer variable — the original C library's
// cmagic_memory_get_free_bytes used sizeof(g_pool_begin) by mistake,
// which on every real platform undercounts free space by orders of
// magnitude; that bug is not reproduced here.
func (r *Region) FreeBytes() uintptr {
	if r.totalSlots == 0 {
		return 0
	}

	var dataSlots uintptr
	for cursor := r.head; cursor != nil; {
		node := headerOf(cursor)
		dataSlots += ceilDivSlots(node.payload)
		cursor = node.next
	}

	if dataSlots+1 >= r.totalSlots {
		return 0
	}

	return (r.totalSlots - 1 - dataSlots) * slotSize
}

// Size returns the usable span of the region in bytes, after alignment.
func (r *Region) Size() uintptr {
	return r.totalSlots * slotSize
}
