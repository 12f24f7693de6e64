package lbph

import (
	"image"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

var ErrModelNotLoaded = errors.New("model not loaded")

// Version is one published model. It never changes after publication.
type Version struct {
	Model    *Model
	Number   uint64
	LoadedAt time.Time
}

// Handle holds the active model version. Predictions acquire a version and
// keep using it even if a newer one is published meanwhile.
type Handle struct {
	current atomic.Pointer[Version]
	next    atomic.Uint64
}

func NewHandle() *Handle { return &Handle{} }

// Swap publishes m as the new active version and returns it.
func (h *Handle) Swap(m *Model) *Version {
	v := &Version{Model: m, Number: h.next.Add(1), LoadedAt: time.Now()}
	h.current.Store(v)
	return v
}

// Load reads the artifact at path and publishes it. On failure the active
// version is left as it was.
func (h *Handle) Load(path string) (*Version, error) {
	m, err := Load(path)
	if err != nil {
		return nil, err
	}
	return h.Swap(m), nil
}

// Acquire returns the active version.
func (h *Handle) Acquire() (*Version, error) {
	v := h.current.Load()
	if v == nil {
		return nil, ErrModelNotLoaded
	}
	return v, nil
}

func (h *Handle) Predict(face image.Image) (Prediction, error) {
	v, err := h.Acquire()
	if err != nil {
		return Prediction{}, err
	}
	return v.Model.Predict(face)
}
