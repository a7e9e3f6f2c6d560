// internal/monitor/dedupe.go
package monitor

// seenSet remembers the most recent signatures, evicting the oldest first.
type seenSet struct {
	limit int
	ring  []string
	next  int
	set   map[string]struct{}
}

func newSeenSet(limit int) *seenSet {
	if limit <= 0 {
		limit = 1
	}
	return &seenSet{
		limit: limit,
		ring:  make([]string, 0, limit),
		set:   make(map[string]struct{}, limit),
	}
}

// Add records sig and reports whether it was new.
func (s *seenSet) Add(sig string) bool {
	if _, ok := s.set[sig]; ok {
		return false
	}
	if len(s.ring) < s.limit {
		s.ring = append(s.ring, sig)
	} else {
		delete(s.set, s.ring[s.next])
		s.ring[s.next] = sig
		s.next = (s.next + 1) % s.limit
	}
	s.set[sig] = struct{}{}
	return true
}

func (s *seenSet) Len() int { return len(s.set) }
