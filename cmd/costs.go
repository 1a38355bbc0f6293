package main

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/tmc-media/leadgen-cli/internal/cost"
)

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Summarize API spend from the usage log",
	RunE: func(cmd *cobra.Command, _ []string) error {
		entries, err := cost.ReadUsage(cfg.Cost.LogFile)
		if err != nil {
			return eris.Wrap(err, "read usage log")
		}
		if len(entries) == 0 {
			fmt.Println("no usage recorded")
			return nil
		}

		totals := cost.TotalsByService(entries)
		services := make([]string, 0, len(totals))
		for s := range totals {
			services = append(services, s)
		}
		sort.Strings(services)

		var grand float64
		for _, s := range services {
			fmt.Printf("%-24s $%.4f\n", s, totals[s])
			grand += totals[s]
		}
		fmt.Printf("%-24s $%.4f  (%d calls)\n", "total", grand, len(entries))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(costsCmd)
}
