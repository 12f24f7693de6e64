// Package attendance turns accepted face matches into at most one attendance
// event per identity per calendar day.
package attendance

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"

	DefaultThreshold = 55.0
)

// ErrAlreadyRecorded is returned by a Log that enforces one event per
// (identity, date) when a second insert arrives.
var ErrAlreadyRecorded = errors.New("attendance already recorded")

type Event struct {
	Identity string
	Date     string
	Time     string
}

// Log is the persisted attendance history. Implementations must be safe for
// concurrent use.
type Log interface {
	Insert(ctx context.Context, identity, date, clock string) error
	CountForIdentityOnDate(ctx context.Context, identity, date string) (int, error)
	// AllForIdentity returns events ordered by date then time.
	AllForIdentity(ctx context.Context, identity string) ([]Event, error)
	// CountsByMonth maps "YYYY-MM" to the number of events in that month.
	CountsByMonth(ctx context.Context) (map[string]int, error)
}

func Today(now time.Time) string { return now.Format(DateLayout) }
