// Package lbph implements a local binary pattern histogram face classifier.
//
// Every face is reduced to a spatial histogram: the 3x3 LBP code image is
// split into a GridX x GridY grid and each cell contributes a 256-bin
// histogram normalized to unit mass. Prediction returns the identity of the
// nearest training histogram under the chi-square distance.
package lbph

import (
	"image"
	"math"

	"github.com/abihf/rollcall/dataset"
	"github.com/pkg/errors"
)

const bins = 256

var ErrInvalidParams = errors.New("invalid lbph parameters")

type Params struct {
	GridX int
	GridY int
	// Size is the side of the normalized face the histograms are taken from.
	Size int
}

func DefaultParams() Params {
	return Params{GridX: 8, GridY: 8, Size: dataset.DefaultSize}
}

func (p Params) Validate() error {
	if p.GridX <= 0 || p.GridY <= 0 {
		return errors.Wrapf(ErrInvalidParams, "grid %dx%d", p.GridX, p.GridY)
	}
	if p.Size-2 < p.GridX || p.Size-2 < p.GridY {
		return errors.Wrapf(ErrInvalidParams, "size %d too small for grid %dx%d", p.Size, p.GridX, p.GridY)
	}
	return nil
}

// HistogramLen is the length of one spatial histogram.
func (p Params) HistogramLen() int { return p.GridX * p.GridY * bins }

// Prediction is the nearest identity and its distance. Lower is closer.
type Prediction struct {
	Identity string
	Distance float64
}

// Model is a trained classifier. It is immutable once built.
type Model struct {
	params     Params
	labels     []string
	histograms [][]float32
	owners     []int
}

func (m *Model) Params() Params { return m.params }

// Labels returns the label space in sorted order.
func (m *Model) Labels() []string { return append([]string(nil), m.labels...) }

// Len returns the number of training histograms.
func (m *Model) Len() int { return len(m.histograms) }

// Predict normalizes face to the model size and returns the identity of the
// nearest training sample. Ties keep the earliest sample.
func (m *Model) Predict(face image.Image) (Prediction, error) {
	norm, err := dataset.Normalize(face, m.params.Size)
	if err != nil {
		return Prediction{}, err
	}
	probe := Histogram(norm, m.params)

	best, bestDist := -1, math.Inf(1)
	for i, h := range m.histograms {
		d := ChiSquare(probe, h)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return Prediction{}, ErrModelNotLoaded
	}
	return Prediction{Identity: m.labels[m.owners[best]], Distance: bestDist}, nil
}

// Histogram computes the spatial LBP histogram of a size x size face.
// Columns and rows that do not fill a whole cell are ignored.
func Histogram(img *image.Gray, p Params) []float32 {
	codes, w, h := lbp(img)
	cw, ch := w/p.GridX, h/p.GridY
	out := make([]float32, p.HistogramLen())
	if cw == 0 || ch == 0 {
		return out
	}

	mass := float32(cw * ch)
	for gy := 0; gy < p.GridY; gy++ {
		for gx := 0; gx < p.GridX; gx++ {
			cell := out[(gy*p.GridX+gx)*bins : (gy*p.GridX+gx+1)*bins]
			for y := gy * ch; y < (gy+1)*ch; y++ {
				row := codes[y*w+gx*cw : y*w+(gx+1)*cw]
				for _, c := range row {
					cell[c]++
				}
			}
			for i := range cell {
				cell[i] /= mass
			}
		}
	}
	return out
}

// neighbours in clockwise order starting top-left; bit 7 is the first.
var neighbours = [8][2]int{{-1, -1}, {0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}}

// lbp returns the code image of the interior pixels, (w-2) x (h-2).
func lbp(img *image.Gray) ([]uint8, int, int) {
	b := img.Bounds()
	w, h := b.Dx()-2, b.Dy()-2
	if w <= 0 || h <= 0 {
		return nil, 0, 0
	}
	codes := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			cx, cy := b.Min.X+x+1, b.Min.Y+y+1
			center := img.Pix[img.PixOffset(cx, cy)]
			var code uint8
			for i, n := range neighbours {
				if img.Pix[img.PixOffset(cx+n[0], cy+n[1])] >= center {
					code |= 1 << (7 - i)
				}
			}
			codes[y*w+x] = code
		}
	}
	return codes, w, h
}

// ChiSquare is the alternate chi-square distance 2*sum((a-b)^2/(a+b)).
// Bins empty in both histograms do not contribute.
func ChiSquare(a, b []float32) float64 {
	var d float64
	for i := range a {
		s := float64(a[i]) + float64(b[i])
		if s == 0 {
			continue
		}
		diff := float64(a[i]) - float64(b[i])
		d += diff * diff / s
	}
	return 2 * d
}
