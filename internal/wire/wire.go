// Package wire builds pipeline parts from a loaded configuration.
package wire

import (
	"context"
	"log/slog"

	"github.com/abihf/rollcall/attendance"
	"github.com/abihf/rollcall/capture"
	"github.com/abihf/rollcall/config"
	"github.com/abihf/rollcall/dataset"
	"github.com/abihf/rollcall/detect"
	"github.com/abihf/rollcall/store"
)

// Source returns the configured camera, or a directory replay when dir is
// set.
func Source(c *config.Config, dir string) capture.Source {
	if dir != "" {
		return &capture.Dir{Path: dir}
	}
	return &capture.Webcam{
		Device:          c.Capture.Device,
		Format:          c.Capture.Format,
		Width:           c.Capture.Width,
		Height:          c.Capture.Height,
		MaxTimeouts:     c.Capture.MaxTimeouts,
		SkipBadExposure: c.Capture.SkipBadExposure,
	}
}

func Locator(c *config.Config) (*detect.Pigo, error) {
	return detect.LoadPigo(c.Detect.Cascade, c.Detect.Params())
}

func Store(c *config.Config) *dataset.Store {
	return dataset.NewStore(c.Dataset.Dir, c.Dataset.Size)
}

// Attendance opens the attendance log and a recorder over it. Close the
// returned log when done.
func Attendance(ctx context.Context, c *config.Config, logger *slog.Logger) (*store.Log, *attendance.Recorder, error) {
	log, err := store.Open(ctx, c.Attendance.DSN)
	if err != nil {
		return nil, nil, err
	}
	rec := attendance.NewRecorder(log, c.Attendance.Threshold, attendance.WithLogger(logger))
	return log, rec, nil
}
