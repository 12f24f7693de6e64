// Package rollcall runs the face attendance pipeline: enrollment fills the
// sample store, training turns it into an LBPH model, and verification
// classifies live faces and records attendance.
package rollcall

import (
	"image"
	"log/slog"

	"github.com/abihf/rollcall/attendance"
	"github.com/abihf/rollcall/capture"
	"github.com/abihf/rollcall/dataset"
	"github.com/abihf/rollcall/detect"
	"github.com/abihf/rollcall/lbph"
	"github.com/pkg/errors"
)

var (
	ErrInvalidFrame        = capture.ErrInvalidFrame
	ErrDeviceUnavailable   = capture.ErrDeviceUnavailable
	ErrDeviceDisconnected  = capture.ErrDeviceDisconnected
	ErrInvalidIdentity     = dataset.ErrInvalidIdentity
	ErrEmptyDataset        = lbph.ErrEmptyDataset
	ErrInsufficientSamples = lbph.ErrInsufficientSamples
	ErrModelNotLoaded      = lbph.ErrModelNotLoaded
	ErrModelNotAvailable   = lbph.ErrModelNotAvailable
	ErrArtifactCorrupt     = lbph.ErrArtifactCorrupt
	ErrAlreadyRecorded     = attendance.ErrAlreadyRecorded

	ErrStationBusy = errors.New("station busy")
)

// locate runs the locator over a frame, rejecting malformed frames first.
func locate(loc detect.Locator, frame *capture.Frame) (*image.Gray, []detect.Box, error) {
	if !frame.Valid() {
		return nil, nil, errors.Wrap(ErrInvalidFrame, "Malformed frame")
	}
	gray := frame.Gray()
	boxes, err := loc.Locate(gray)
	if err != nil {
		return nil, nil, err
	}
	return gray, boxes, nil
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
