// internal/bot/stats.go
package bot

import (
	"context"
	"sync"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/events"
)

// CopyStats counts pipeline outcomes since start.
type CopyStats struct {
	Detected  int64                       `json:"detected"`
	Copied    int64                       `json:"copied"`
	Skipped   map[domain.SkipReason]int64 `json:"skipped"`
	Confirmed int64                       `json:"confirmed"`
	Failed    int64                       `json:"failed"`
}

// SkippedTotal sums skips over all reasons.
func (s CopyStats) SkippedTotal() int64 {
	var n int64
	for _, v := range s.Skipped {
		n += v
	}
	return n
}

// Stats is an events.Handler that tallies copy outcomes. Manual orders are
// not counted.
type Stats struct {
	mu    sync.Mutex
	stats CopyStats
}

func NewStats() *Stats {
	return &Stats{stats: CopyStats{Skipped: make(map[domain.SkipReason]int64)}}
}

// Handle implements events.Handler.
func (s *Stats) Handle(_ context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev := event.(type) {
	case *events.TradeDetectedEvent:
		s.stats.Detected++
	case *events.CopySkippedEvent:
		s.stats.Skipped[ev.Reason]++
	case *events.CopyOrderedEvent:
		s.stats.Copied++
	case *events.TradeExecutedEvent:
		if ev.Result.Order.Source == domain.SourceManual {
			return nil
		}
		switch ev.Result.Status {
		case domain.TradeConfirmed:
			s.stats.Confirmed++
		case domain.TradeFailed:
			s.stats.Failed++
		}
	}
	return nil
}

// Snapshot returns a copy of the counters.
func (s *Stats) Snapshot() CopyStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.stats
	out.Skipped = make(map[domain.SkipReason]int64, len(s.stats.Skipped))
	for k, v := range s.stats.Skipped {
		out.Skipped[k] = v
	}
	return out
}
