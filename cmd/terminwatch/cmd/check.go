package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"terminwatch/lib/serviceutil"
	"terminwatch/lib/siteprofile"
	"terminwatch/services/booking"
	"terminwatch/services/booking/prober"
)

var (
	checkCategory string
	checkService  string
	checkQuantity int
	checkHeadful  bool
	checkShotsDir string
)

func init() {
	checkCmd.Flags().StringVar(&checkCategory, "category", "", "Accordion category on the booking site.")
	checkCmd.Flags().StringVar(&checkService, "service", "", "Service row inside the category.")
	checkCmd.Flags().IntVar(&checkQuantity, "quantity", 1, "Number of persons.")
	checkCmd.Flags().BoolVar(&checkHeadful, "headful", false, "Show the browser window.")
	checkCmd.Flags().StringVar(&checkShotsDir, "screenshots", "", "Directory for diagnostic screenshots.")
	checkCmd.MarkFlagRequired("category")
	checkCmd.MarkFlagRequired("service")
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Runs a single availability probe and prints the result.",
	Run: func(cmd *cobra.Command, args []string) {
		var sinks []prober.Sink
		if checkShotsDir != "" {
			sinks = append(sinks, prober.FileSink{Dir: checkShotsDir})
		}

		p := prober.New(prober.Options{
			Profiles: siteprofile.Static(siteprofile.Default()),
			Headless: !checkHeadful,
			Sinks:    sinks,
		})

		outcome := p.Probe(cmd.Context(), booking.Target{
			Category: checkCategory,
			Service:  checkService,
			Quantity: checkQuantity,
		})

		fmt.Printf("result:   %s\n", outcome.Kind)
		if outcome.FailureReason != "" {
			fmt.Printf("reason:   %s\n", outcome.FailureReason)
		}
		if outcome.ScreenshotRef != "" {
			fmt.Printf("evidence: %s\n", outcome.ScreenshotRef)
		}
		fmt.Printf("duration: %s\n", outcome.Duration.Round(time.Millisecond))

		if len(outcome.Slots) > 0 {
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Date", "Time", "Label"})
			for _, slot := range outcome.Slots {
				t.AppendRow(table.Row{slot.Date, slot.Time, slot.RawLabel})
			}
			t.SetStyle(table.StyleRounded)
			t.Render()
		}

		if outcome.Kind == booking.KindFailed {
			serviceutil.Fatal("probe failed", fmt.Errorf("%s", outcome.FailureReason))
		}
	},
}
