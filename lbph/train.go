package lbph

import (
	"fmt"
	"sort"

	"github.com/abihf/rollcall/dataset"
	"github.com/pkg/errors"
)

const DefaultMinSamples = 5

var (
	ErrEmptyDataset        = errors.New("dataset has no samples")
	ErrInsufficientSamples = errors.New("insufficient samples")
)

// InsufficientSamplesError names the first identity below the minimum.
type InsufficientSamplesError struct {
	Identity string
	Have     int
	Want     int
}

func (e *InsufficientSamplesError) Error() string {
	return fmt.Sprintf("insufficient samples for %q: have %d, want %d", e.Identity, e.Have, e.Want)
}

func (e *InsufficientSamplesError) Is(target error) bool {
	return target == ErrInsufficientSamples
}

type TrainOptions struct {
	// MinSamples per identity; values below 1 use DefaultMinSamples.
	MinSamples int
	Params     Params
}

// Train fits a model over the whole dataset. Every identity partition,
// including an empty one, must hold at least MinSamples samples.
func Train(ds *dataset.Dataset, opts TrainOptions) (*Model, error) {
	if opts.MinSamples < 1 {
		opts.MinSamples = DefaultMinSamples
	}
	if opts.Params == (Params{}) {
		opts.Params = DefaultParams()
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	if ds == nil || len(ds.Samples) == 0 {
		return nil, ErrEmptyDataset
	}

	counts := ds.Counts()
	labels := sortedKeys(counts)
	index := make(map[string]int, len(labels))
	for i, id := range labels {
		if counts[id] < opts.MinSamples {
			return nil, &InsufficientSamplesError{Identity: id, Have: counts[id], Want: opts.MinSamples}
		}
		index[id] = i
	}

	m := &Model{
		params:     opts.Params,
		labels:     labels,
		histograms: make([][]float32, 0, len(ds.Samples)),
		owners:     make([]int, 0, len(ds.Samples)),
	}
	for _, s := range ds.Samples {
		norm, err := dataset.Normalize(s.Image, opts.Params.Size)
		if err != nil {
			return nil, errors.Wrapf(err, "Bad sample %s/%d", s.Identity, s.Seq)
		}
		m.histograms = append(m.histograms, Histogram(norm, opts.Params))
		m.owners = append(m.owners, index[s.Identity])
	}
	return m, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
