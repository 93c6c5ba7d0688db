package cache

import "sync/atomic"

// Stats is a Metrics implementation that counts events.
type Stats struct {
	hits        atomic.Uint64
	misses      atomic.Uint64
	evictions   atomic.Uint64
	expirations atomic.Uint64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Expirations uint64
}

func (s *Stats) Hit()      { s.hits.Add(1) }
func (s *Stats) Miss()     { s.misses.Add(1) }
func (s *Stats) Eviction() { s.evictions.Add(1) }
func (s *Stats) Expire()   { s.expirations.Add(1) }

// Snapshot returns the current counters.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		Evictions:   s.evictions.Load(),
		Expirations: s.expirations.Load(),
	}
}

// HitRatio returns hits / (hits + misses), or 0 before any lookup.
func (s Snapshot) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
