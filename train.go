package rollcall

import (
	"context"
	"log/slog"

	"github.com/abihf/rollcall/dataset"
	"github.com/abihf/rollcall/lbph"
	"github.com/abihf/rollcall/metrics"
)

type TrainOptions struct {
	Store      *dataset.Store
	ModelPath  string
	MinSamples int
	Params     lbph.Params
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Train rebuilds the model from every stored sample and replaces the
// artifact at ModelPath. Nothing is written when training fails.
func Train(ctx context.Context, opts TrainOptions) (m *lbph.Model, err error) {
	log := loggerOr(opts.Logger)
	defer func() { opts.Metrics.Training(err) }()

	ds, err := opts.Store.Load()
	if err != nil {
		return nil, err
	}
	log.Info("Training", "identities", len(ds.Identities), "samples", len(ds.Samples))

	m, err = lbph.Train(ds, lbph.TrainOptions{MinSamples: opts.MinSamples, Params: opts.Params})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.Save(opts.ModelPath); err != nil {
		return nil, err
	}
	log.Info("Model saved", "path", opts.ModelPath, "labels", m.Labels())
	return m, nil
}
