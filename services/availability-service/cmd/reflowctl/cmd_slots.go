package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/md-rashed-zaman/slotreflow/services/availability-service/internal/clock"
	"github.com/md-rashed-zaman/slotreflow/services/availability-service/internal/duration"
	"github.com/md-rashed-zaman/slotreflow/services/availability-service/internal/reflow"
	"github.com/spf13/cobra"
)

var (
	slotsFile          string
	slotsJSON          bool
	slotsOnlyAvailable bool
)

var slotsCmd = &cobra.Command{
	Use:   "slots",
	Short: "Reflow a day described in a YAML file",
	Long: `Reflow a day described in a YAML file and print the retained slots.

The file lists services, slots and bookings:

  services:
    - {id: cut, duration_minutes: 45}
  slots:
    - {id: s1, start_time: "09:00", end_time: "09:30", booked: true}
  bookings:
    - {start_time: "09:00", end_time: "09:45"}

Use "-" to read the file from stdin.`,
	RunE: runSlots,
}

func init() {
	slotsCmd.Flags().StringVarP(&slotsFile, "file", "f", "-", "YAML day fixture")
	slotsCmd.Flags().BoolVar(&slotsJSON, "json", false, "Print JSON instead of a table")
	slotsCmd.Flags().BoolVar(&slotsOnlyAvailable, "only-available", false, "Hide retained slots that are booked")
	rootCmd.AddCommand(slotsCmd)
}

func runSlots(cmd *cobra.Command, _ []string) error {
	d, err := loadFixture(slotsFile)
	if err != nil {
		return err
	}
	minMinutes := duration.MinService(d.services)
	total := duration.Total(d.services)
	retained := reflow.Reflow(d.slots, d.bookings, minMinutes)
	if slotsOnlyAvailable {
		kept := retained[:0]
		for _, s := range retained {
			if s.Available {
				kept = append(kept, s)
			}
		}
		retained = kept
	}
	return printSlots(cmd.OutOrStdout(), retained, minMinutes, total, slotsJSON)
}

type slotRow struct {
	ID             string `json:"slot_id"`
	DisplayTime    string `json:"display_time"`
	EndTime        string `json:"end_time"`
	Available      bool   `json:"available"`
	Remaining      int    `json:"remaining_minutes"`
	ServiceEndTime string `json:"service_end_time"`
}

func printSlots(w io.Writer, slots []reflow.Slot, minMinutes, total int, asJSON bool) error {
	rows := make([]slotRow, 0, len(slots))
	for _, s := range slots {
		rows = append(rows, slotRow{
			ID:             s.ID,
			DisplayTime:    s.DisplayTime,
			EndTime:        clock.Normalize(s.EndTime),
			Available:      s.Available,
			Remaining:      s.Remaining,
			ServiceEndTime: duration.EndTime(s.DisplayTime, total),
		})
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "# min service %d min, total %d min\n", minMinutes, total)
	fmt.Fprintln(tw, "SLOT\tFROM\tTO\tLEFT\tAVAILABLE\tSERVICE ENDS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\t%s\n", r.ID, r.DisplayTime, r.EndTime, r.Remaining, r.Available, r.ServiceEndTime)
	}
	return tw.Flush()
}
