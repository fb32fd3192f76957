package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/langchou/overmove/internal/config"
	"github.com/langchou/overmove/internal/stats"
)

func statsCommand(cfg *config.Config, logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "stats TRAVEL_ID",
		Short: "Print distance, duration and speed of a travel and its moves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, err := openTracker(cfg, logger)
			if err != nil {
				return err
			}

			travel, err := tracker.GetTravel(args[0])
			if err != nil {
				return err
			}
			st, err := tracker.TravelStatistics(travel.ID)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", travel.Name, travel.ID)
			return printTravelStatistics(cmd.OutOrStdout(), st, cfg.Location())
		},
	}
}

func printTravelStatistics(w io.Writer, st stats.TravelStatistics, loc *time.Location) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MOVE\tSTART\tEND\tSAMPLES\tDISTANCE\tDURATION\tAVG\tMAX\tHEADING")
	for _, m := range st.Moves {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.2f km\t%s\t%s\t%s\t%s\n",
			m.MoveID,
			formatTime(m.StartTime, loc),
			formatTime(m.EndTime, loc),
			m.SampleCount,
			m.DistanceKm(),
			time.Duration(m.DurationSeconds)*time.Second,
			formatSpeed(m.AverageSpeedKmh()),
			formatSpeed(m.MaxSpeedKmh()),
			orDash(m.LastHeading))
	}
	fmt.Fprintf(tw, "TOTAL\t\t\t%d\t%.2f km\t%s\t%s\t%s\t\n",
		st.SampleCount,
		st.DistanceKm(),
		time.Duration(st.DurationSeconds)*time.Second,
		formatSpeed(st.AverageSpeedKmh()),
		formatSpeed(st.MaxSpeedKmh()))
	return tw.Flush()
}

func formatTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "-"
	}
	return t.In(loc).Format("2006-01-02 15:04:05")
}

func formatSpeed(kmh *float64) string {
	if kmh == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f km/h", *kmh)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
