package capture

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blackjack/webcam"
	"github.com/pkg/errors"
)

const (
	formatGrey = "GREY"
	formatYUYV = "YUYV"
)

// Webcam is a V4L2 device source.
type Webcam struct {
	Device string
	// Format is the V4L2 fourcc requested from the driver, GREY or YUYV.
	Format string
	Width  uint32
	Height uint32
	// MaxTimeouts bounds consecutive frame wait timeouts before the stream
	// is treated as disconnected. Zero means 10.
	MaxTimeouts int
	// SkipBadExposure drops frames rejected by WellExposed.
	SkipBadExposure bool
}

func fourcc(s string) webcam.PixelFormat {
	b := []byte(s + "    ")[:4]
	return webcam.PixelFormat(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
}

func (w *Webcam) Open(ctx context.Context) (Stream, error) {
	cam, err := webcam.Open(w.Device)
	if err != nil {
		return nil, errors.Wrapf(ErrDeviceUnavailable, "Can not open device %s: %v", w.Device, err)
	}

	format := strings.ToUpper(w.Format)
	if format == "" {
		format = formatYUYV
	}
	if format != formatGrey && format != formatYUYV {
		cam.Close()
		return nil, errors.Wrapf(ErrDeviceUnavailable, "Unsupported pixel format %q", w.Format)
	}

	_, width, height, err := cam.SetImageFormat(fourcc(format), w.Width, w.Height)
	if err != nil {
		cam.Close()
		return nil, errors.Wrapf(ErrDeviceUnavailable, "Can not set image format: %v", err)
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, errors.Wrapf(ErrDeviceUnavailable, "Can not start streaming: %v", err)
	}

	maxTimeouts := w.MaxTimeouts
	if maxTimeouts <= 0 {
		maxTimeouts = 10
	}

	s := &webcamStream{
		cam:             cam,
		yuyv:            format == formatYUYV,
		width:           int(width),
		height:          int(height),
		maxTimeouts:     maxTimeouts,
		skipBadExposure: w.SkipBadExposure,
		frame:           make(chan *Frame, 1),
		done:            make(chan struct{}),
	}
	go s.run()
	return s, nil
}

type webcamStream struct {
	cam             *webcam.Webcam
	yuyv            bool
	width, height   int
	maxTimeouts     int
	skipBadExposure bool

	frame chan *Frame
	done  chan struct{}
	err   error

	stopped   atomic.Bool
	closeOnce sync.Once
}

func (s *webcamStream) run() {
	defer close(s.done)
	defer s.cam.Close()

	timeouts := 0
	for !s.stopped.Load() {
		err := s.cam.WaitForFrame(1)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			timeouts++
			slog.Debug("Frame wait timeout", "count", timeouts)
			if timeouts > s.maxTimeouts {
				s.err = errors.Wrapf(ErrDeviceDisconnected, "No frame after %d waits", timeouts)
				return
			}
			continue
		default:
			s.err = errors.Wrapf(ErrDeviceDisconnected, "Frame wait failed: %v", err)
			return
		}
		timeouts = 0

		if s.stopped.Load() {
			break
		}

		buf, err := s.cam.ReadFrame()
		if err != nil {
			s.err = errors.Wrapf(ErrDeviceDisconnected, "Read frame failed: %v", err)
			return
		}
		if len(buf) == 0 {
			continue
		}

		frame := s.decode(buf)
		if frame == nil {
			continue
		}
		if s.skipBadExposure && !WellExposed(frame.Pix) {
			continue
		}

		// keep only the most recent frame
		select {
		case <-s.frame:
		default:
		}
		s.frame <- frame
	}

	_ = s.cam.StopStreaming()
}

func (s *webcamStream) decode(buf []byte) *Frame {
	n := s.width * s.height
	pix := make([]byte, n)
	if s.yuyv {
		if len(buf) < n*2 {
			return nil
		}
		for i := 0; i < n; i++ {
			pix[i] = buf[i*2]
		}
	} else {
		if len(buf) < n {
			return nil
		}
		copy(pix, buf[:n])
	}
	return &Frame{Width: s.width, Height: s.height, Pix: pix, Time: time.Now()}
}

func (s *webcamStream) Next(ctx context.Context) (*Frame, error) {
	select {
	case frame := <-s.frame:
		return frame, nil
	case <-s.done:
		if s.err != nil {
			return nil, s.err
		}
		return nil, ErrDeviceDisconnected
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the reader goroutine and waits until the device is released.
func (s *webcamStream) Close() error {
	s.closeOnce.Do(func() {
		s.stopped.Store(true)
	})
	<-s.done
	return nil
}
