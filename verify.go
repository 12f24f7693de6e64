package rollcall

import (
	"context"
	"log/slog"
	"time"

	"github.com/abihf/rollcall/attendance"
	"github.com/abihf/rollcall/capture"
	"github.com/abihf/rollcall/detect"
	"github.com/abihf/rollcall/lbph"
	"github.com/abihf/rollcall/metrics"
	"github.com/pkg/errors"
)

type VerifyOptions struct {
	Source   capture.Source
	Locator  detect.Locator
	Model    *lbph.Handle
	Recorder *attendance.Recorder
	// Timeout ends the session; zero runs until ctx is done.
	Timeout            time.Duration
	StopAfterFirstMark bool
	OnMatch            func(Match)
	Metrics            *metrics.Metrics
	Logger             *slog.Logger
}

// Match is one classified face.
type Match struct {
	Box        detect.Box
	Prediction lbph.Prediction
	Outcome    attendance.Outcome
}

type VerifyResult struct {
	ModelVersion uint64
	Frames       int
	Faces        int
	Rejected     int
	Duplicates   int
	// Marked lists identities marked by this session in order.
	Marked []string
}

// Verify runs one session: every located face is classified with the model
// version active at session start and handed to the recorder. The session
// ends on cancellation or timeout, or after the first mark when
// StopAfterFirstMark is set. Device and frame errors end it with an error.
func Verify(ctx context.Context, opts VerifyOptions) (res VerifyResult, err error) {
	log := loggerOr(opts.Logger)
	defer func() { opts.Metrics.Session(err) }()

	version, err := opts.Model.Acquire()
	if err != nil {
		return res, err
	}
	res.ModelVersion = version.Number
	model := version.Model

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	log.Info("Verification started", "model_version", version.Number)
	err = capture.Capture(ctx, opts.Source, func(frame *capture.Frame) (bool, error) {
		res.Frames++
		gray, boxes, err := locate(opts.Locator, frame)
		if err != nil {
			opts.Metrics.Frame("error")
			return false, err
		}
		opts.Metrics.Frame("ok")
		opts.Metrics.Faces(len(boxes))
		res.Faces += len(boxes)

		for _, box := range boxes {
			p, err := model.Predict(gray.SubImage(box.Rectangle))
			if err != nil {
				return false, err
			}
			out, err := opts.Recorder.Observe(ctx, p)
			if err != nil {
				return false, err
			}
			opts.Metrics.Match(out.String(), p.Distance)
			if opts.OnMatch != nil {
				opts.OnMatch(Match{Box: box, Prediction: p, Outcome: out})
			}

			switch out {
			case attendance.Rejected:
				res.Rejected++
			case attendance.Duplicate:
				res.Duplicates++
			case attendance.Marked:
				res.Marked = append(res.Marked, p.Identity)
				if opts.StopAfterFirstMark {
					return false, nil
				}
			}
		}
		return true, nil
	})

	if isStop(err) {
		err = nil
	}
	if err != nil {
		return res, errors.Wrap(err, "Verification aborted")
	}
	log.Info("Verification finished", "frames", res.Frames, "faces", res.Faces, "marked", res.Marked)
	return res, nil
}
