package attendance

import (
	"context"
	"sort"
	"sync"
)

// MemoryLog is an append-only in-process Log. It does not enforce
// uniqueness; the Recorder does.
type MemoryLog struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryLog() *MemoryLog { return &MemoryLog{} }

func (l *MemoryLog) Insert(_ context.Context, identity, date, clock string) error {
	l.mu.Lock()
	l.events = append(l.events, Event{Identity: identity, Date: date, Time: clock})
	l.mu.Unlock()
	return nil
}

func (l *MemoryLog) CountForIdentityOnDate(_ context.Context, identity, date string) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, e := range l.events {
		if e.Identity == identity && e.Date == date {
			n++
		}
	}
	return n, nil
}

func (l *MemoryLog) AllForIdentity(_ context.Context, identity string) ([]Event, error) {
	l.mu.RLock()
	var out []Event
	for _, e := range l.events {
		if e.Identity == identity {
			out = append(out, e)
		}
	}
	l.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

func (l *MemoryLog) CountsByMonth(_ context.Context) (map[string]int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	counts := map[string]int{}
	for _, e := range l.events {
		if len(e.Date) >= 7 {
			counts[e.Date[:7]]++
		}
	}
	return counts, nil
}

// Events returns a copy of every event in insertion order.
func (l *MemoryLog) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Event(nil), l.events...)
}
