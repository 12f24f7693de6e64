package detect

import (
	"image"
	"testing"

	"github.com/abihf/rollcall/capture"
	pigo "github.com/esimov/pigo/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocate_InvalidFrame(t *testing.T) {
	p := &Pigo{params: DefaultParams()}

	_, err := p.Locate(nil)
	assert.ErrorIs(t, err, capture.ErrInvalidFrame)

	_, err = p.Locate(image.NewGray(image.Rect(0, 0, 0, 10)))
	assert.ErrorIs(t, err, capture.ErrInvalidFrame)

	short := &image.Gray{Pix: make([]uint8, 3), Stride: 4, Rect: image.Rect(0, 0, 4, 4)}
	_, err = p.Locate(short)
	assert.ErrorIs(t, err, capture.ErrInvalidFrame)
}

func TestLoadPigo_MissingCascade(t *testing.T) {
	_, err := LoadPigo(t.TempDir()+"/facefinder", DefaultParams())
	assert.Error(t, err)
}

func TestLocate_BlankFrame(t *testing.T) {
	p, err := LoadPigo("testdata/facefinder", DefaultParams())
	require.NoError(t, err)

	img := image.NewGray(image.Rect(0, 0, 320, 240))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	boxes, err := p.Locate(img)
	require.NoError(t, err)
	assert.NotNil(t, boxes)
	assert.Empty(t, boxes)

	// a sub-image with a non-zero origin goes through the same path
	boxes, err = p.Locate(img.SubImage(image.Rect(40, 20, 280, 220)).(*image.Gray))
	require.NoError(t, err)
	assert.Empty(t, boxes)
}

func TestRectAndIoU(t *testing.T) {
	r := rect(pigo.Detection{Row: 50, Col: 40, Scale: 20})
	assert.Equal(t, image.Rect(30, 40, 50, 60), r)

	assert.Equal(t, 1.0, iou(r, r))
	assert.Equal(t, 0.0, iou(r, image.Rect(100, 100, 110, 110)))
	assert.InDelta(t, 1.0/3.0, iou(image.Rect(0, 0, 10, 10), image.Rect(5, 0, 15, 10)), 1e-9)
}

func TestFilter_NeighborsAndQuality(t *testing.T) {
	params := DefaultParams()
	params.MinNeighbors = 2
	params.MinQuality = 1

	raw := []pigo.Detection{
		{Row: 50, Col: 50, Scale: 40, Q: 2},
		{Row: 52, Col: 51, Scale: 40, Q: 2},
		{Row: 49, Col: 48, Scale: 42, Q: 2},
		{Row: 150, Col: 150, Scale: 40, Q: 3},
	}
	clustered := []pigo.Detection{
		{Row: 50, Col: 50, Scale: 40, Q: 6},
		{Row: 150, Col: 150, Scale: 40, Q: 3},
		{Row: 300, Col: 300, Scale: 40, Q: 0.5},
	}

	boxes := filter(raw, clustered, params, image.Rect(0, 0, 400, 400))
	require.Len(t, boxes, 1)
	assert.Equal(t, 3, boxes[0].Neighbors)
	assert.Equal(t, float32(6), boxes[0].Quality)
	assert.Equal(t, image.Rect(30, 30, 70, 70), boxes[0].Rectangle)
}

func TestFilter_ClipsToFrame(t *testing.T) {
	params := DefaultParams()
	params.MinNeighbors = 1
	params.MinQuality = 0

	d := pigo.Detection{Row: 5, Col: 5, Scale: 20, Q: 1}
	boxes := filter([]pigo.Detection{d}, []pigo.Detection{d}, params, image.Rect(0, 0, 100, 100))
	require.Len(t, boxes, 1)
	assert.Equal(t, image.Rect(0, 0, 15, 15), boxes[0].Rectangle)
}

func TestFilter_NoFaces(t *testing.T) {
	boxes := filter(nil, nil, DefaultParams(), image.Rect(0, 0, 10, 10))
	assert.NotNil(t, boxes)
	assert.Empty(t, boxes)
}

func TestPacked_SubImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	sub := img.SubImage(image.Rect(1, 1, 3, 3)).(*image.Gray)
	assert.Equal(t, []uint8{5, 6, 9, 10}, packed(sub))
	assert.Len(t, packed(img), 16)
}
