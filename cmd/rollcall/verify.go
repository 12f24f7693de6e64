package main

import (
	"fmt"
	"time"

	"github.com/abihf/rollcall"
	"github.com/abihf/rollcall/internal/wire"
	"github.com/abihf/rollcall/lbph"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Recognise faces and record attendance until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().Duration("timeout", 0, "End the session after this long")
	verifyCmd.Flags().String("source", "", "Replay images from a directory instead of the camera")
	verifyCmd.Flags().Bool("once", false, "Stop after the first attendance mark")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, _ []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	source, _ := cmd.Flags().GetString("source")
	once, _ := cmd.Flags().GetBool("once")

	handle := lbph.NewHandle()
	if _, err := handle.Load(conf.Model.Path); err != nil {
		return err
	}
	locator, err := wire.Locator(conf)
	if err != nil {
		return err
	}
	log, rec, err := wire.Attendance(cmd.Context(), conf, logger)
	if err != nil {
		return err
	}
	defer log.Close()

	res, err := rollcall.Verify(cmd.Context(), rollcall.VerifyOptions{
		Source:             wire.Source(conf, source),
		Locator:            locator,
		Model:              handle,
		Recorder:           rec,
		Timeout:            timeout,
		StopAfterFirstMark: once || conf.Attendance.StopAfterFirstMark,
		OnMatch: func(m rollcall.Match) {
			fmt.Printf("%s  %-16s %7.2f  %s\n", time.Now().Format(time.TimeOnly), m.Prediction.Identity, m.Prediction.Distance, m.Outcome)
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%d frames, %d faces, %d rejected, %d duplicates, marked %v\n",
		res.Frames, res.Faces, res.Rejected, res.Duplicates, res.Marked)
	return nil
}
