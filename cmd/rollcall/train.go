package main

import (
	"fmt"

	"github.com/abihf/rollcall"
	"github.com/abihf/rollcall/internal/wire"
	"github.com/abihf/rollcall/lbph"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Build the recognition model from all enrolled samples",
	Args:  cobra.NoArgs,
	RunE:  runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, _ []string) error {
	m, err := rollcall.Train(cmd.Context(), rollcall.TrainOptions{
		Store:      wire.Store(conf),
		ModelPath:  conf.Model.Path,
		MinSamples: conf.Model.MinSamples,
		Params:     conf.LBPH(),
		Logger:     logger,
	})
	var short *lbph.InsufficientSamplesError
	switch {
	case errors.As(err, &short):
		return errors.Errorf("%s has %d samples, at least %d needed; enroll more", short.Identity, short.Have, short.Want)
	case errors.Is(err, rollcall.ErrEmptyDataset):
		return errors.New("no samples enrolled yet")
	case err != nil:
		return err
	}

	fmt.Printf("Model with %d samples of %d identities saved to %s\n", m.Len(), len(m.Labels()), conf.Model.Path)
	return nil
}
