package logging

import "sync"

const defaultDedupSize = 1024

// Dedup remembers keys it has seen so that a message is logged once per key.
//
// It is used for notifications from resource types that cannot be tracked: the first one
// of each type is worth a log line, the thousandth is noise.
type Dedup struct {
	size int

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDedup creates a Dedup remembering at most size keys. Once full, new keys are always
// allowed so that nothing is silently dropped.
func NewDedup(size int) *Dedup {
	if size <= 0 {
		size = defaultDedupSize
	}
	return &Dedup{
		size: size,
		seen: make(map[string]struct{}, min(size, 64)),
	}
}

// First reports whether key is seen for the first time.
func (d *Dedup) First(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return false
	}
	if len(d.seen) < d.size {
		d.seen[key] = struct{}{}
	}
	return true
}
