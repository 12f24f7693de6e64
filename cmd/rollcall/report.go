package main

import (
	"fmt"
	"time"

	"github.com/abihf/rollcall/attendance"
	"github.com/abihf/rollcall/internal/wire"
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "status <identity>",
			Short: "Tell whether a person is marked present today",
			Args:  cobra.ExactArgs(1),
			RunE:  runStatus,
		},
		&cobra.Command{
			Use:   "history <identity>",
			Short: "List every attendance event of a person",
			Args:  cobra.ExactArgs(1),
			RunE:  runHistory,
		},
		&cobra.Command{
			Use:   "day [date]",
			Short: "Show who was present on a day (default today) and who was not",
			Args:  cobra.MaximumNArgs(1),
			RunE:  runDay,
		},
		&cobra.Command{
			Use:   "months",
			Short: "Count attendance events per month",
			Args:  cobra.NoArgs,
			RunE:  runMonths,
		},
		&cobra.Command{
			Use:   "identities",
			Short: "List enrolled people and their sample counts",
			Args:  cobra.NoArgs,
			RunE:  runIdentities,
		},
	)
}

func runStatus(cmd *cobra.Command, args []string) error {
	log, rec, err := wire.Attendance(cmd.Context(), conf, logger)
	if err != nil {
		return err
	}
	defer log.Close()

	present, err := rec.Status(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if present {
		fmt.Println(args[0], "present")
	} else {
		fmt.Println(args[0], "absent")
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	log, _, err := wire.Attendance(cmd.Context(), conf, logger)
	if err != nil {
		return err
	}
	defer log.Close()

	events, err := log.AllForIdentity(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	for _, e := range events {
		fmt.Printf("%s %s\n", e.Date, e.Time)
	}
	fmt.Printf("%d days\n", len(events))
	return nil
}

func runDay(cmd *cobra.Command, args []string) error {
	date := attendance.Today(time.Now())
	if len(args) == 1 {
		if _, err := time.Parse(attendance.DateLayout, args[0]); err != nil {
			return errors.Errorf("date %q is not YYYY-MM-DD", args[0])
		}
		date = args[0]
	}

	log, _, err := wire.Attendance(cmd.Context(), conf, logger)
	if err != nil {
		return err
	}
	defer log.Close()

	events, err := log.OnDate(cmd.Context(), date)
	if err != nil {
		return err
	}
	enrolled, err := wire.Store(conf).Identities()
	if err != nil {
		return err
	}
	absent := absentees(events, enrolled)
	for _, e := range events {
		fmt.Printf("%s %-24s present\n", e.Time, e.Identity)
	}
	for _, id := range absent {
		fmt.Printf("%8s %-24s absent\n", "", id)
	}
	fmt.Printf("%s: %d present, %d absent\n", date, len(events), len(absent))
	return nil
}

// absentees lists enrolled identities with no event among events.
func absentees(events []attendance.Event, enrolled []string) []string {
	present := make(map[string]bool, len(events))
	for _, e := range events {
		present[e.Identity] = true
	}
	var absent []string
	for _, id := range enrolled {
		if !present[id] {
			absent = append(absent, id)
		}
	}
	return absent
}

func runMonths(cmd *cobra.Command, _ []string) error {
	log, _, err := wire.Attendance(cmd.Context(), conf, logger)
	if err != nil {
		return err
	}
	defer log.Close()

	counts, err := log.CountsByMonth(cmd.Context())
	if err != nil {
		return err
	}
	months := treemap.NewWithStringComparator()
	for month, n := range counts {
		months.Put(month, n)
	}
	it := months.Iterator()
	for it.Next() {
		fmt.Printf("%s %d\n", it.Key(), it.Value())
	}
	return nil
}

func runIdentities(_ *cobra.Command, _ []string) error {
	st := wire.Store(conf)
	ids, err := st.Identities()
	if err != nil {
		return err
	}
	for _, id := range ids {
		n, err := st.Count(id)
		if err != nil {
			return err
		}
		fmt.Printf("%-24s %d\n", id, n)
	}
	return nil
}
