package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tmc-media/leadgen-cli/internal/store"
)

var leadsFilter store.Filter

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Inspect and edit stored leads",
}

var leadsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List leads",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if leadsFilter.Limit == 0 {
			leadsFilter.Limit = 50
		}
		leads, err := st.ListLeads(ctx, leadsFilter)
		if err != nil {
			return eris.Wrap(err, "list leads")
		}
		total, err := st.CountLeads(ctx, leadsFilter)
		if err != nil {
			return eris.Wrap(err, "count leads")
		}

		for _, l := range leads {
			fmt.Printf("%d\t%s\t%s\t%s\t%s\n",
				l.ID, l.Name, l.Website, l.Phone, l.Address)
		}
		fmt.Printf("%d of %d leads\n", len(leads), total)
		return nil
	},
}

var leadsSetCmd = &cobra.Command{
	Use:   "set <id> <field> <value>",
	Short: "Set a single lead field",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var id int64
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
			return eris.Errorf("invalid lead id: %s", args[0])
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		updated, err := st.UpdateLeadField(ctx, id, args[1], args[2])
		if err != nil {
			return eris.Wrap(err, "update lead")
		}
		if !updated {
			return eris.Errorf("lead %d not found", id)
		}

		zap.L().Info("lead updated",
			zap.Int64("lead", id),
			zap.String("field", args[1]),
		)
		return nil
	},
}

var leadsRmCmd = &cobra.Command{
	Use:   "rm <id>...",
	Short: "Delete leads and their enrichment records",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ids := make([]int64, 0, len(args))
		for _, a := range args {
			var id int64
			if _, err := fmt.Sscanf(a, "%d", &id); err != nil {
				return eris.Errorf("invalid lead id: %s", a)
			}
			ids = append(ids, id)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		removed, err := st.DeleteLeads(ctx, ids)
		if err != nil {
			return eris.Wrap(err, "delete leads")
		}

		zap.L().Info("leads deleted", zap.Int("removed", removed))
		return nil
	},
}

func init() {
	leadsLsCmd.Flags().StringVar(&leadsFilter.Name, "name", "", "filter by name substring")
	leadsLsCmd.Flags().StringVar(&leadsFilter.Source, "source", "", "filter by source")
	leadsLsCmd.Flags().StringVar(&leadsFilter.Domain, "domain", "", "filter by domain substring")
	leadsLsCmd.Flags().StringVar(&leadsFilter.BusinessType, "type", "", "filter by business type")
	leadsLsCmd.Flags().IntVar(&leadsFilter.Limit, "limit", 50, "max rows")
	leadsLsCmd.Flags().IntVar(&leadsFilter.Offset, "offset", 0, "rows to skip")

	leadsCmd.AddCommand(leadsLsCmd, leadsSetCmd, leadsRmCmd)
	rootCmd.AddCommand(leadsCmd)
}
