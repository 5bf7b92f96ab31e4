// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

package proxy

import (
	"sync"

	"github.com/courtcast/courtcast/internal/metrics"
)

// PortAllocator hands out local relay ports from a fixed range. Allocation
// and the set insert happen under one lock, so a port can never be handed to
// two sessions simultaneously within a process.
type PortAllocator struct {
	mu        sync.Mutex
	base      int
	size      int
	allocated map[int]struct{}
}

// NewPortAllocator scans [base, base+size) for free ports.
func NewPortAllocator(base, size int) *PortAllocator {
	return &PortAllocator{
		base:      base,
		size:      size,
		allocated: make(map[int]struct{}),
	}
}

// Allocate returns the first free port at or above the base.
func (p *PortAllocator) Allocate() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for port := p.base; port < p.base+p.size; port++ {
		if _, taken := p.allocated[port]; !taken {
			p.allocated[port] = struct{}{}
			metrics.AllocatedPorts.Set(float64(len(p.allocated)))
			return port, nil
		}
	}
	return 0, ErrNoFreePorts
}

// Release returns a port to the pool. Releasing an unallocated port is a
// no-op so teardown paths can release unconditionally.
func (p *PortAllocator) Release(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.allocated, port)
	metrics.AllocatedPorts.Set(float64(len(p.allocated)))
}

// InUse reports whether the port is currently allocated.
func (p *PortAllocator) InUse(port int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, taken := p.allocated[port]
	return taken
}

// Count returns the number of allocated ports.
func (p *PortAllocator) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.allocated)
}
