// Package pool provides fixed-capacity object pools for order book records.
//
// A pool hands out pointers into pre-allocated backing chunks so that the
// steady-state add/cancel/execute path never touches the heap. Records keep
// stable addresses for their whole lifetime: chunks are never reallocated,
// only new chunks are appended when the pool grows.
package pool

import "sync"

// Stats describes the current state of a pool.
type Stats struct {
	TotalAllocated int // records carved out of backing chunks so far
	InUse          int // records currently handed out
	Free           int // records sitting on the free list
	Peak           int // high-water mark of InUse
}

// Pool recycles records of a single type T.
//
// Get returns a record in arbitrary (possibly dirty) state; the caller must
// fully initialize it before publishing. A record passed to Put must not be
// touched again until Get hands it back. Double-Put is a programming error
// and is not detected.
type Pool[T any] struct {
	mu     sync.Mutex
	chunks [][]T
	free   []*T
	next   int // index of the first unused slot in the newest chunk

	allocated int
	inUse     int
	peak      int
}

// New creates a pool with an initial backing chunk of the given capacity.
// Capacities below 1 are raised to 1.
func New[T any](capacity int) *Pool[T] {
	if capacity < 1 {
		capacity = 1
	}
	p := &Pool[T]{}
	p.chunks = append(p.chunks, make([]T, capacity))
	return p
}

// Get returns a record from the free list, or carves a fresh one out of the
// backing chunks, growing the pool if every slot has been handed out at least
// once. Growth allocates a chunk at least as large as the current capacity.
func (p *Pool[T]) Get() *T {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.free); n > 0 {
		v := p.free[n-1]
		p.free = p.free[:n-1]
		p.inUse++
		if p.inUse > p.peak {
			p.peak = p.inUse
		}
		return v
	}

	cur := p.chunks[len(p.chunks)-1]
	if p.next >= len(cur) {
		grow := p.capacityLocked()
		p.chunks = append(p.chunks, make([]T, grow))
		cur = p.chunks[len(p.chunks)-1]
		p.next = 0
	}

	v := &cur[p.next]
	p.next++
	p.allocated++
	p.inUse++
	if p.inUse > p.peak {
		p.peak = p.inUse
	}
	return v
}

// Put returns a record to the free list. The record's contents are left as-is
// and will be visible, dirty, to the next Get.
func (p *Pool[T]) Put(v *T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, v)
	p.inUse--
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		TotalAllocated: p.allocated,
		InUse:          p.inUse,
		Free:           len(p.free),
		Peak:           p.peak,
	}
}

// Capacity returns the total number of slots across all backing chunks.
func (p *Pool[T]) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacityLocked()
}

func (p *Pool[T]) capacityLocked() int {
	total := 0
	for _, c := range p.chunks {
		total += len(c)
	}
	return total
}
