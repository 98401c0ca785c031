package pool

import "testing"

type record struct {
	id  uint64
	qty uint32
}

func TestGetPutReuse(t *testing.T) {
	p := New[record](4)

	a := p.Get()
	a.id = 42
	p.Put(a)

	b := p.Get()
	if a != b {
		t.Errorf("expected freed record to be reused")
	}
	// Records come back dirty; callers must reinitialize.
	if b.id != 42 {
		t.Errorf("expected dirty record contents, got id=%d", b.id)
	}
}

func TestGrowthKeepsOldRecordsValid(t *testing.T) {
	p := New[record](2)

	first := p.Get()
	first.id = 1
	second := p.Get()
	second.id = 2

	// Exhaust the initial chunk and force growth.
	for i := 0; i < 10; i++ {
		p.Get()
	}

	if first.id != 1 || second.id != 2 {
		t.Errorf("records moved after growth: first=%d second=%d", first.id, second.id)
	}
	if p.Capacity() < 12 {
		t.Errorf("expected capacity >= 12 after growth, got %d", p.Capacity())
	}
}

func TestGrowthAtLeastDoubles(t *testing.T) {
	p := New[record](3)
	before := p.Capacity()
	for i := 0; i < before+1; i++ {
		p.Get()
	}
	after := p.Capacity()
	if after < 2*before {
		t.Errorf("expected capacity to at least double from %d, got %d", before, after)
	}
}

func TestStats(t *testing.T) {
	p := New[record](8)

	var held []*record
	for i := 0; i < 5; i++ {
		held = append(held, p.Get())
	}
	for _, r := range held[:2] {
		p.Put(r)
	}

	s := p.Stats()
	if s.TotalAllocated != 5 {
		t.Errorf("TotalAllocated = %d, want 5", s.TotalAllocated)
	}
	if s.InUse != 3 {
		t.Errorf("InUse = %d, want 3", s.InUse)
	}
	if s.Free != 2 {
		t.Errorf("Free = %d, want 2", s.Free)
	}
	if s.Peak != 5 {
		t.Errorf("Peak = %d, want 5", s.Peak)
	}
}
