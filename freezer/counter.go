package freezer

import "sync"

// Counter counts blocked tabs per domain for the life of the process.
type Counter struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewCounter returns an empty counter.
func NewCounter() *Counter {
	return &Counter{counts: make(map[string]int)}
}

// Inc adds one for domain and returns the new count.
func (c *Counter) Inc(domain string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[domain]++
	return c.counts[domain]
}

// Count returns the count for domain.
func (c *Counter) Count(domain string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[domain]
}

// Snapshot copies every count.
func (c *Counter) Snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}
