package main

import (
	"fmt"

	"github.com/md-rashed-zaman/slotreflow/services/availability-service/internal/duration"
	"github.com/md-rashed-zaman/slotreflow/services/availability-service/internal/model"
	"github.com/spf13/cobra"
)

var (
	durationMinutes []int
	durationStart   string
)

var durationCmd = &cobra.Command{
	Use:     "duration",
	Short:   "Print the minimum, total and end time of a service set",
	Example: "  reflowctl duration --durations 45,20 --start 09:00",
	RunE: func(cmd *cobra.Command, _ []string) error {
		services := make([]model.Service, 0, len(durationMinutes))
		for i, m := range durationMinutes {
			if m <= 0 {
				return fmt.Errorf("duration %d must be positive", m)
			}
			services = append(services, model.Service{ID: fmt.Sprintf("svc-%d", i+1), DurationMinutes: m})
		}
		total := duration.Total(services)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "min:   %d\n", duration.MinService(services))
		fmt.Fprintf(out, "total: %d\n", total)
		if durationStart != "" {
			fmt.Fprintf(out, "end:   %s\n", duration.EndTime(durationStart, total))
		}
		return nil
	},
}

func init() {
	durationCmd.Flags().IntSliceVar(&durationMinutes, "durations", nil, "Service durations in minutes")
	durationCmd.Flags().StringVar(&durationStart, "start", "", "Start time (HH:MM) to compute the end time from")
	rootCmd.AddCommand(durationCmd)
}
