package rollcall

import (
	"context"
	"log/slog"

	"github.com/abihf/rollcall/capture"
	"github.com/abihf/rollcall/dataset"
	"github.com/abihf/rollcall/detect"
	"github.com/abihf/rollcall/metrics"
	"github.com/pkg/errors"
)

const DefaultEnrollTarget = 30

type EnrollOptions struct {
	Identity string
	Source   capture.Source
	Locator  detect.Locator
	Store    *dataset.Store
	// Target is the sample count at which enrollment stops.
	Target int
	// Reset drops existing samples of Identity first.
	Reset    bool
	Progress func(EnrollProgress)
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

type EnrollProgress struct {
	Identity      string
	Count         int
	Target        int
	Frames        int
	NoFace        int
	MultipleFaces int
}

type EnrollResult struct {
	EnrollProgress
	// Captured is the number of samples added by this session.
	Captured int
	Complete bool
}

// Enroll captures samples of one identity until it has Target samples or ctx
// is cancelled. Only frames holding exactly one face are kept. Cancellation
// returns the partial result without error.
func Enroll(ctx context.Context, opts EnrollOptions) (EnrollResult, error) {
	if opts.Target <= 0 {
		opts.Target = DefaultEnrollTarget
	}
	log := loggerOr(opts.Logger).With("identity", opts.Identity)

	res := EnrollResult{EnrollProgress: EnrollProgress{Identity: opts.Identity, Target: opts.Target}}
	if err := dataset.ValidateIdentity(opts.Identity); err != nil {
		return res, err
	}
	if opts.Reset {
		if err := opts.Store.Reset(opts.Identity); err != nil {
			return res, err
		}
	}
	count, err := opts.Store.Count(opts.Identity)
	if err != nil {
		return res, err
	}
	res.Count = count
	if count >= opts.Target {
		res.Complete = true
		return res, nil
	}

	log.Info("Enrollment started", "have", count, "target", opts.Target)
	err = capture.Capture(ctx, opts.Source, func(frame *capture.Frame) (bool, error) {
		res.Frames++
		gray, boxes, err := locate(opts.Locator, frame)
		if err != nil {
			return false, err
		}

		switch len(boxes) {
		case 0:
			res.NoFace++
			opts.Metrics.Enroll("no_face")
			return true, nil
		case 1:
		default:
			res.MultipleFaces++
			opts.Metrics.Enroll("multiple_faces")
			log.Debug("Frame skipped", "faces", len(boxes))
			return true, nil
		}

		n, err := opts.Store.AddSample(opts.Identity, gray.SubImage(boxes[0].Rectangle))
		if err != nil {
			return false, err
		}
		res.Count = n
		res.Captured++
		opts.Metrics.Enroll("saved")
		if opts.Progress != nil {
			opts.Progress(res.EnrollProgress)
		}
		return n < opts.Target, nil
	})
	res.Complete = res.Count >= opts.Target

	if isStop(err) {
		log.Info("Enrollment stopped", "count", res.Count, "captured", res.Captured)
		return res, nil
	}
	if err != nil {
		return res, errors.Wrap(err, "Enrollment aborted")
	}
	log.Info("Enrollment complete", "count", res.Count, "captured", res.Captured)
	return res, nil
}

func isStop(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
