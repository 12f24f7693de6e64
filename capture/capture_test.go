package capture

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grayFrame(w, h int, v byte) *Frame {
	pix := make([]byte, w*h)
	for i := range pix {
		pix[i] = v
	}
	return &Frame{Width: w, Height: h, Pix: pix}
}

type failingSource struct{}

func (failingSource) Open(context.Context) (Stream, error) {
	return nil, errors.Wrap(ErrDeviceUnavailable, "no device")
}

func TestCapture_StopsWhenProcessorDeclines(t *testing.T) {
	src := NewReplay(grayFrame(4, 4, 1), grayFrame(4, 4, 2), grayFrame(4, 4, 3))
	seen := 0
	err := Capture(context.Background(), src, func(f *Frame) (bool, error) {
		seen++
		return seen < 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, seen)
	assert.Equal(t, 0, src.Acquired())
}

func TestCapture_ReleasesOnProcessorError(t *testing.T) {
	src := NewReplay(grayFrame(4, 4, 1))
	boom := errors.New("boom")
	err := Capture(context.Background(), src, func(*Frame) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, src.Acquired())
}

func TestCapture_ReleasesOnDisconnect(t *testing.T) {
	src := NewReplay(grayFrame(4, 4, 1))
	err := Capture(context.Background(), src, func(*Frame) (bool, error) {
		return true, nil
	})
	assert.ErrorIs(t, err, ErrDeviceDisconnected)
	assert.Equal(t, 0, src.Acquired())
}

func TestCapture_ReleasesOnCancel(t *testing.T) {
	src := NewReplay(grayFrame(4, 4, 1), grayFrame(4, 4, 1), grayFrame(4, 4, 1))
	ctx, cancel := context.WithCancel(context.Background())
	err := Capture(ctx, src, func(*Frame) (bool, error) {
		cancel()
		return true, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, src.Acquired())
}

func TestCapture_OpenFailure(t *testing.T) {
	called := false
	err := Capture(context.Background(), failingSource{}, func(*Frame) (bool, error) {
		called = true
		return true, nil
	})
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.False(t, called)
}

func TestFrame_GrayAndValid(t *testing.T) {
	f := grayFrame(3, 2, 9)
	assert.True(t, f.Valid())
	g := f.Gray()
	assert.Equal(t, image.Rect(0, 0, 3, 2), g.Bounds())
	assert.Equal(t, uint8(9), g.GrayAt(2, 1).Y)

	assert.False(t, (&Frame{}).Valid())
	assert.False(t, (&Frame{Width: 2, Height: 2, Pix: []byte{1}}).Valid())
	var nilFrame *Frame
	assert.False(t, nilFrame.Valid())
}

func TestFromImage_ConvertsToLuminance(t *testing.T) {
	img := image.NewRGBA(image.Rect(10, 10, 12, 11))
	img.Set(10, 10, color.RGBA{255, 255, 255, 255})
	img.Set(11, 10, color.RGBA{0, 0, 0, 255})

	f := FromImage(img)
	assert.Equal(t, 2, f.Width)
	assert.Equal(t, 1, f.Height)
	assert.Equal(t, []byte{255, 0}, f.Pix)
}

func TestWellExposed(t *testing.T) {
	assert.False(t, WellExposed(nil))
	assert.False(t, WellExposed(grayFrame(10, 10, 0).Pix))
	assert.False(t, WellExposed(grayFrame(10, 10, 200).Pix))

	half := grayFrame(10, 10, 200).Pix
	for i := 0; i < 50; i++ {
		half[i] = 10
	}
	assert.True(t, WellExposed(half))
}

func TestDir_ReplaysInNameOrder(t *testing.T) {
	dir := t.TempDir()
	for i, v := range []uint8{30, 60} {
		img := image.NewGray(image.Rect(0, 0, 2, 2))
		for p := range img.Pix {
			img.Pix[p] = v
		}
		f, err := os.Create(filepath.Join(dir, []string{"b.png", "a.png"}[i]))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	stream, err := (&Dir{Path: dir}).Open(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	first, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint8(60), first.Pix[0])

	second, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint8(30), second.Pix[0])

	_, err = stream.Next(context.Background())
	assert.ErrorIs(t, err, ErrDeviceDisconnected)
}

func TestDir_Unavailable(t *testing.T) {
	_, err := (&Dir{Path: filepath.Join(t.TempDir(), "missing")}).Open(context.Background())
	assert.ErrorIs(t, err, ErrDeviceUnavailable)

	_, err = (&Dir{Path: t.TempDir()}).Open(context.Background())
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestFourcc(t *testing.T) {
	assert.Equal(t, uint32(0x56595559), uint32(fourcc("YUYV")))
	assert.Equal(t, uint32(0x59455247), uint32(fourcc("GREY")))
}
