package rollcall

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/abihf/rollcall/attendance"
	"github.com/abihf/rollcall/capture"
	"github.com/abihf/rollcall/detect"
	"github.com/abihf/rollcall/lbph"
	"github.com/abihf/rollcall/metrics"
)

// Station owns one camera and serves verification sessions on it one at a
// time.
type Station struct {
	Source             capture.Source
	Locator            detect.Locator
	Model              *lbph.Handle
	ModelPath          string
	Recorder           *attendance.Recorder
	Timeout            time.Duration
	StopAfterFirstMark bool
	Metrics            *metrics.Metrics
	Logger             *slog.Logger

	busy sync.Mutex
}

// Mark runs a session. A zero timeout uses the station timeout. It fails
// with ErrStationBusy while another session holds the camera.
func (s *Station) Mark(ctx context.Context, timeout time.Duration) (VerifyResult, error) {
	if !s.busy.TryLock() {
		return VerifyResult{}, ErrStationBusy
	}
	defer s.busy.Unlock()

	if timeout <= 0 {
		timeout = s.Timeout
	}
	return Verify(ctx, VerifyOptions{
		Source:             s.Source,
		Locator:            s.Locator,
		Model:              s.Model,
		Recorder:           s.Recorder,
		Timeout:            timeout,
		StopAfterFirstMark: s.StopAfterFirstMark,
		Metrics:            s.Metrics,
		Logger:             s.Logger,
	})
}

// Reload publishes the artifact at ModelPath. Sessions already running keep
// their version.
func (s *Station) Reload() (*lbph.Version, error) {
	v, err := s.Model.Load(s.ModelPath)
	if err != nil {
		loggerOr(s.Logger).Warn("Model reload failed", "path", s.ModelPath, "error", err)
		return nil, err
	}
	s.Metrics.ModelVersion(v.Number)
	loggerOr(s.Logger).Info("Model loaded", "path", s.ModelPath, "version", v.Number, "labels", len(v.Model.Labels()))
	return v, nil
}

func (s *Station) Status(ctx context.Context, identity string) (bool, error) {
	return s.Recorder.Status(ctx, identity)
}
