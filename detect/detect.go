// Package detect locates faces in luminance frames.
package detect

import (
	"image"
	"os"

	"github.com/abihf/rollcall/capture"
	pigo "github.com/esimov/pigo/core"
	"github.com/pkg/errors"
)

// Box is a located face. Boxes returned for one frame may overlap.
type Box struct {
	image.Rectangle
	Quality   float32
	Neighbors int
}

// Locator finds zero or more faces in a frame. An empty result is not an
// error.
type Locator interface {
	Locate(img *image.Gray) ([]Box, error)
}

// Params tune the cascade scan. Smaller ScaleFactor steps find more faces at
// a higher cost per frame.
type Params struct {
	MinSize      int
	MaxSize      int
	ShiftFactor  float64
	ScaleFactor  float64
	IoUThreshold float64
	MinNeighbors int
	MinQuality   float32
	Angle        float64
}

func DefaultParams() Params {
	return Params{
		MinSize:      80,
		MaxSize:      1000,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
		MinNeighbors: 3,
		MinQuality:   5,
	}
}

// Pigo is a pixel intensity comparison cascade detector.
type Pigo struct {
	classifier *pigo.Pigo
	params     Params
}

func NewPigo(cascade []byte, params Params) (*Pigo, error) {
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, errors.Wrap(err, "Can not unpack cascade")
	}
	return &Pigo{classifier: classifier, params: params}, nil
}

func LoadPigo(path string, params Params) (*Pigo, error) {
	cascade, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Error reading cascade file %s", path)
	}
	return NewPigo(cascade, params)
}

func (p *Pigo) Locate(img *image.Gray) ([]Box, error) {
	if err := checkFrame(img); err != nil {
		return nil, err
	}

	b := img.Bounds()
	cols, rows := b.Dx(), b.Dy()

	cp := pigo.CascadeParams{
		MinSize:     p.params.MinSize,
		MaxSize:     p.params.MaxSize,
		ShiftFactor: p.params.ShiftFactor,
		ScaleFactor: p.params.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: packed(img),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	raw := p.classifier.RunCascade(cp, p.params.Angle)
	clustered := p.classifier.ClusterDetections(raw, p.params.IoUThreshold)
	return filter(raw, clustered, p.params, b), nil
}

func checkFrame(img *image.Gray) error {
	if img == nil || img.Bounds().Dx() <= 0 || img.Bounds().Dy() <= 0 {
		return errors.Wrap(capture.ErrInvalidFrame, "Zero-dimension frame")
	}
	if len(img.Pix) < (img.Bounds().Dy()-1)*img.Stride+img.Bounds().Dx() {
		return errors.Wrap(capture.ErrInvalidFrame, "Frame buffer too short")
	}
	return nil
}

// packed returns the pixels as one contiguous row-major slice.
func packed(img *image.Gray) []uint8 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if img.Stride == w && b.Min == (image.Point{}) {
		return img.Pix[:w*h]
	}
	out := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(out[y*w:], img.Pix[off:off+w])
	}
	return out
}

func rect(d pigo.Detection) image.Rectangle {
	half := d.Scale / 2
	return image.Rect(d.Col-half, d.Row-half, d.Col-half+d.Scale, d.Row-half+d.Scale)
}

func iou(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := inter.Dx() * inter.Dy()
	union := a.Dx()*a.Dy() + b.Dx()*b.Dy() - ia
	if union <= 0 {
		return 0
	}
	return float64(ia) / float64(union)
}

// neighbors counts raw window hits backing a clustered detection.
func neighbors(c pigo.Detection, raw []pigo.Detection, threshold float64) int {
	cr := rect(c)
	n := 0
	for _, d := range raw {
		if iou(cr, rect(d)) > threshold {
			n++
		}
	}
	return n
}

func filter(raw, clustered []pigo.Detection, params Params, bounds image.Rectangle) []Box {
	boxes := make([]Box, 0, len(clustered))
	for _, c := range clustered {
		if c.Q < params.MinQuality {
			continue
		}
		n := neighbors(c, raw, params.IoUThreshold)
		if n < params.MinNeighbors {
			continue
		}
		r := rect(c).Add(bounds.Min).Intersect(bounds)
		if r.Empty() {
			continue
		}
		boxes = append(boxes, Box{Rectangle: r, Quality: c.Q, Neighbors: n})
	}
	return boxes
}
