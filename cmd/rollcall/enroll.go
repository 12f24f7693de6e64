package main

import (
	"fmt"

	"github.com/abihf/rollcall"
	"github.com/abihf/rollcall/internal/wire"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <identity>",
	Short: "Capture face samples of one person",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnroll,
}

func init() {
	enrollCmd.Flags().Bool("reset", false, "Drop existing samples first")
	enrollCmd.Flags().Int("target", 0, "Samples to collect (default from config)")
	enrollCmd.Flags().String("source", "", "Replay images from a directory instead of the camera")
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(cmd *cobra.Command, args []string) error {
	reset, _ := cmd.Flags().GetBool("reset")
	target, _ := cmd.Flags().GetInt("target")
	source, _ := cmd.Flags().GetString("source")
	if target <= 0 {
		target = conf.Dataset.Target
	}

	locator, err := wire.Locator(conf)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(target,
		progressbar.OptionSetDescription("Enrolling "+args[0]),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("samples"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)
	res, err := rollcall.Enroll(cmd.Context(), rollcall.EnrollOptions{
		Identity: args[0],
		Source:   wire.Source(conf, source),
		Locator:  locator,
		Store:    wire.Store(conf),
		Target:   target,
		Reset:    reset,
		Progress: func(p rollcall.EnrollProgress) { _ = bar.Set(p.Count) },
		Logger:   logger,
	})
	_ = bar.Finish()
	fmt.Println()
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d/%d samples (%d new, %d frames, %d without face, %d with several faces)\n",
		res.Identity, res.Count, res.Target, res.Captured, res.Frames, res.NoFace, res.MultipleFaces)
	if !res.Complete {
		return errors.Errorf("enrollment of %s incomplete", res.Identity)
	}
	return nil
}
