package lbph

import (
	"hash/crc32"
	"math"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/renameio"
	"github.com/pkg/errors"
)

const (
	artifactMagic   = "RCLBPH"
	artifactVersion = 1
)

var (
	ErrModelNotAvailable = errors.New("model not available")
	ErrArtifactCorrupt   = errors.New("model artifact corrupt")
)

type envelope struct {
	Magic   string `cbor:"1,keyasint"`
	Version int    `cbor:"2,keyasint"`
	Payload []byte `cbor:"3,keyasint"`
	Sum     uint32 `cbor:"4,keyasint"`
}

type payload struct {
	GridX      int         `cbor:"1,keyasint"`
	GridY      int         `cbor:"2,keyasint"`
	Size       int         `cbor:"3,keyasint"`
	Labels     []string    `cbor:"4,keyasint"`
	Owners     []int       `cbor:"5,keyasint"`
	Histograms [][]float32 `cbor:"6,keyasint"`
}

// Marshal encodes the model as a checksummed artifact.
func (m *Model) Marshal() ([]byte, error) {
	body, err := cbor.Marshal(payload{
		GridX:      m.params.GridX,
		GridY:      m.params.GridY,
		Size:       m.params.Size,
		Labels:     m.labels,
		Owners:     m.owners,
		Histograms: m.histograms,
	})
	if err != nil {
		return nil, errors.Wrap(err, "Can not encode model")
	}
	return cbor.Marshal(envelope{
		Magic:   artifactMagic,
		Version: artifactVersion,
		Payload: body,
		Sum:     crc32.ChecksumIEEE(body),
	})
}

// Save writes the artifact to path. Readers see either the previous file or
// the complete new one.
func (m *Model) Save(path string) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "Can not create model directory")
	}
	return errors.Wrap(renameio.WriteFile(path, data, 0o644), "Can not write model")
}

// Unmarshal decodes an artifact produced by Marshal.
func Unmarshal(data []byte) (*Model, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(ErrArtifactCorrupt, err.Error())
	}
	if env.Magic != artifactMagic {
		return nil, errors.Wrap(ErrArtifactCorrupt, "bad magic")
	}
	if env.Version != artifactVersion {
		return nil, errors.Wrapf(ErrArtifactCorrupt, "unsupported version %d", env.Version)
	}
	if crc32.ChecksumIEEE(env.Payload) != env.Sum {
		return nil, errors.Wrap(ErrArtifactCorrupt, "checksum mismatch")
	}

	var p payload
	if err := cbor.Unmarshal(env.Payload, &p); err != nil {
		return nil, errors.Wrap(ErrArtifactCorrupt, err.Error())
	}
	m := &Model{
		params:     Params{GridX: p.GridX, GridY: p.GridY, Size: p.Size},
		labels:     p.Labels,
		owners:     p.Owners,
		histograms: p.Histograms,
	}
	if err := m.check(); err != nil {
		return nil, errors.Wrap(ErrArtifactCorrupt, err.Error())
	}
	return m, nil
}

// Load reads the artifact at path.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(ErrModelNotAvailable, path)
	}
	if err != nil {
		return nil, errors.Wrap(err, "Can not read model")
	}
	m, err := Unmarshal(data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return m, nil
}

func (m *Model) check() error {
	if err := m.params.Validate(); err != nil {
		return err
	}
	if len(m.labels) == 0 || len(m.histograms) == 0 {
		return errors.New("empty model")
	}
	if len(m.owners) != len(m.histograms) {
		return errors.New("owner count mismatch")
	}
	for i, h := range m.histograms {
		if len(h) != m.params.HistogramLen() {
			return errors.Errorf("histogram %d has length %d", i, len(h))
		}
		if m.owners[i] < 0 || m.owners[i] >= len(m.labels) {
			return errors.Errorf("histogram %d has no label", i)
		}
		for _, v := range h {
			if v < 0 || math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return errors.Errorf("histogram %d has invalid bin", i)
			}
		}
	}
	return nil
}
