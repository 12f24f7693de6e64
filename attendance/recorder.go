package attendance

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/abihf/rollcall/lbph"
	"github.com/pkg/errors"
)

type Outcome int

const (
	Rejected Outcome = iota
	Duplicate
	Marked
)

func (o Outcome) String() string {
	switch o {
	case Rejected:
		return "rejected"
	case Duplicate:
		return "duplicate"
	case Marked:
		return "marked"
	}
	return "unknown"
}

type Option func(*Recorder)

// WithClock sets the time source that decides "today".
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// Recorder accepts predictions below the threshold and writes the first one
// per identity per day to the log.
type Recorder struct {
	log       Log
	threshold float64
	now       func() time.Time
	logger    *slog.Logger

	locks keyedMutex

	mu     sync.Mutex
	marked map[string]string // identity -> date already in the log
}

func NewRecorder(log Log, threshold float64, opts ...Option) *Recorder {
	r := &Recorder{
		log:       log,
		threshold: threshold,
		now:       time.Now,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		marked:    map[string]string{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) Threshold() float64 { return r.threshold }

// Accepts reports whether a distance is close enough to count as a match.
func (r *Recorder) Accepts(distance float64) bool {
	return distance < r.threshold
}

// Observe applies one prediction. A rejected or duplicate prediction is not
// an error.
func (r *Recorder) Observe(ctx context.Context, p lbph.Prediction) (Outcome, error) {
	if !r.Accepts(p.Distance) {
		r.logger.DebugContext(ctx, "Match rejected", "identity", p.Identity, "distance", p.Distance)
		return Rejected, nil
	}

	now := r.now()
	date, clock := now.Format(DateLayout), now.Format(TimeLayout)
	if r.seen(p.Identity, date) {
		return Duplicate, nil
	}

	unlock := r.locks.Lock(p.Identity)
	defer unlock()

	if r.seen(p.Identity, date) {
		return Duplicate, nil
	}
	n, err := r.log.CountForIdentityOnDate(ctx, p.Identity, date)
	if err != nil {
		return Rejected, errors.Wrap(err, "Can not query attendance")
	}
	if n > 0 {
		r.remember(p.Identity, date)
		return Duplicate, nil
	}

	err = r.log.Insert(ctx, p.Identity, date, clock)
	if errors.Is(err, ErrAlreadyRecorded) {
		r.remember(p.Identity, date)
		return Duplicate, nil
	}
	if err != nil {
		return Rejected, errors.Wrap(err, "Can not record attendance")
	}

	r.remember(p.Identity, date)
	r.logger.InfoContext(ctx, "Attendance marked", "identity", p.Identity, "date", date, "time", clock, "distance", p.Distance)
	return Marked, nil
}

// Status reports whether identity already has an event today.
func (r *Recorder) Status(ctx context.Context, identity string) (bool, error) {
	date := Today(r.now())
	if r.seen(identity, date) {
		return true, nil
	}
	n, err := r.log.CountForIdentityOnDate(ctx, identity, date)
	if err != nil {
		return false, errors.Wrap(err, "Can not query attendance")
	}
	if n > 0 {
		r.remember(identity, date)
	}
	return n > 0, nil
}

func (r *Recorder) seen(identity, date string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.marked[identity] == date
}

func (r *Recorder) remember(identity, date string) {
	r.mu.Lock()
	r.marked[identity] = date
	r.mu.Unlock()
}

// keyedMutex hands out one mutex per key and drops it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*refMutex{}
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
