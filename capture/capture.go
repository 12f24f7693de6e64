// Package capture abstracts the live image source used by enrollment and
// verification sessions.
package capture

import (
	"context"
	"image"
	"image/draw"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrDeviceUnavailable  = errors.New("capture device unavailable")
	ErrDeviceDisconnected = errors.New("capture device disconnected")
	ErrInvalidFrame       = errors.New("invalid frame")
)

// Frame is a single 8-bit luminance image.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
	Time   time.Time
}

// Gray wraps the frame pixels without copying.
func (f *Frame) Gray() *image.Gray {
	return &image.Gray{
		Pix:    f.Pix,
		Stride: f.Width,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// Valid reports whether the frame has a non-zero size backed by enough pixels.
func (f *Frame) Valid() bool {
	return f != nil && f.Width > 0 && f.Height > 0 && len(f.Pix) >= f.Width*f.Height
}

// FromImage converts any image into a luminance frame.
func FromImage(img image.Image) *Frame {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return &Frame{
		Width:  b.Dx(),
		Height: b.Dy(),
		Pix:    gray.Pix,
		Time:   time.Now(),
	}
}

// Source yields frame streams. Open fails with ErrDeviceUnavailable when the
// device can not be acquired.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an acquired device. Next blocks until a frame is available and
// fails with ErrDeviceDisconnected when the stream ends unexpectedly.
type Stream interface {
	Next(ctx context.Context) (*Frame, error)
	Close() error
}

// Processor handles one frame and reports whether capture should continue.
type Processor func(frame *Frame) (bool, error)

// Capture opens src, feeds frames to processor until it asks to stop, fails
// or ctx is done, and always releases the stream before returning.
func Capture(ctx context.Context, src Source, processor Processor) (err error) {
	stream, err := src.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "Can not release device")
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := stream.Next(ctx)
		if err != nil {
			return err
		}

		cont, err := processor(frame)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
}
