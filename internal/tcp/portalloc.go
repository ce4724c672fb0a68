package tcp

import (
	"fmt"
	"sync"
)

const (
	ephemeralBase = 49152
	ephemeralTop  = 65535
)

// portAllocator hands out ephemeral local ports for connect() (spec.md
// §4.F "picks an ephemeral local port (monotonic from 49152, wrap at
// 65535)"). Adapted from internal/bfd/discriminator.go's
// DiscriminatorAllocator: that allocator draws from crypto/rand because BFD
// discriminators are demultiplexing keys an off-path attacker should not be
// able to predict, whereas an ephemeral TCP source port carries no such
// requirement, so this allocator keeps the fixed-capacity/retry-on-collision
// shape but replaces the random draw with a plain monotonic counter.
type portAllocator struct {
	mu       sync.Mutex
	next     uint16
	inUse    map[uint16]bool
	maxTries int
}

func newPortAllocator() *portAllocator {
	return &portAllocator{next: ephemeralBase, inUse: make(map[uint16]bool), maxTries: ephemeralTop - ephemeralBase}
}

// Allocate returns an unused ephemeral port from the half-open range
// [49152, 65535) (65535 itself is never handed out), or an error if the
// entire range is exhausted.
func (p *portAllocator) Allocate() (uint16, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for range p.maxTries {
		port := p.next
		p.next++
		if p.next >= ephemeralTop || p.next < ephemeralBase {
			p.next = ephemeralBase
		}
		if !p.inUse[port] {
			p.inUse[port] = true
			return port, nil
		}
	}
	return 0, fmt.Errorf("tcp: ephemeral port range exhausted")
}

// Release returns port to the free pool.
func (p *portAllocator) Release(port uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inUse, port)
}
