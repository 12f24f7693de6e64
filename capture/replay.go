package capture

import (
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/spakin/netpbm"
)

// Dir replays the image files of a directory in name order, standing in for
// a camera when developing or testing a station.
type Dir struct {
	Path string
	// Loop restarts from the first file instead of ending the stream.
	Loop bool
}

var imageExt = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".pgm": true}

func (d *Dir) Open(ctx context.Context) (Stream, error) {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, errors.Wrapf(ErrDeviceUnavailable, "Can not read %s: %v", d.Path, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExt[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(d.Path, e.Name()))
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, errors.Wrapf(ErrDeviceUnavailable, "No images in %s", d.Path)
	}

	return &dirStream{files: files, loop: d.Loop}, nil
}

type dirStream struct {
	files []string
	loop  bool
	pos   int
}

func (s *dirStream) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.files) {
		if !s.loop {
			return nil, errors.Wrap(ErrDeviceDisconnected, "End of recording")
		}
		s.pos = 0
	}
	path := s.files[s.pos]
	s.pos++

	img, err := decodeFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrDeviceDisconnected, "Can not decode %s: %v", path, err)
	}
	return FromImage(img), nil
}

func (s *dirStream) Close() error {
	return nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".pgm") {
		return netpbm.Decode(f, &netpbm.DecodeOptions{Target: netpbm.PGM})
	}
	img, _, err := image.Decode(f)
	return img, err
}

// Replay is an in-memory source. Every Open starts from the first frame and
// the stream reports ErrDeviceDisconnected once all frames were served.
type Replay struct {
	Frames []*Frame
	// Hold makes an exhausted stream block until its context is done, like
	// a camera facing an empty room.
	Hold bool

	mu   sync.Mutex
	open int
}

func NewReplay(frames ...*Frame) *Replay {
	return &Replay{Frames: frames}
}

func (r *Replay) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.open++
	r.mu.Unlock()
	return &replayStream{src: r}, nil
}

// Acquired reports how many streams are currently open.
func (r *Replay) Acquired() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

type replayStream struct {
	src    *Replay
	pos    int
	closed bool
}

func (s *replayStream) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.src.Frames) {
		if s.src.Hold {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(ErrDeviceDisconnected, "End of replay")
	}
	f := s.src.Frames[s.pos]
	s.pos++
	return f, nil
}

func (s *replayStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.src.mu.Lock()
	s.src.open--
	s.src.mu.Unlock()
	return nil
}
