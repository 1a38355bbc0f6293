package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tmc-media/leadgen-cli/internal/model"
	"github.com/tmc-media/leadgen-cli/internal/smartlist"
	"github.com/tmc-media/leadgen-cli/internal/store"
)

var (
	smartListName     string
	smartListCriteria string
	smartListFilter   store.Filter
)

var smartListCmd = &cobra.Command{
	Use:   "smartlist",
	Short: "Build and inspect goal-driven lead lists",
}

var smartListBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Evaluate leads against criteria and grow a list",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		g, err := initGate()
		if err != nil {
			return err
		}

		if smartListFilter.Limit == 0 {
			smartListFilter.Limit = cfg.SmartList.MaxLeadsPerRun
		}

		builder := smartlist.New(st, g,
			smartlist.WithCourtesyDelay(courtesyRPS(cfg.SmartList.CourtesyDelayMs)),
			smartlist.WithProgress(func(leadID int64, name string, index, total int) {
				zap.L().Info("evaluating lead",
					zap.Int64("lead", leadID),
					zap.String("name", name),
					zap.Int("index", index),
					zap.Int("total", total),
				)
			}))

		summary, err := builder.Build(ctx, smartListName, smartListCriteria, smartListFilter)
		if err != nil {
			return eris.Wrap(err, "build smart list")
		}

		zap.L().Info("smart list build done",
			zap.String("list", smartListName),
			zap.Int("evaluated", summary.Evaluated),
			zap.Int("matched", summary.Matched),
			zap.Int("skipped", summary.Skipped),
			zap.Int("failed", summary.Failed),
		)
		return nil
	},
}

var smartListShowCmd = &cobra.Command{
	Use:   "show <list-name>",
	Short: "Print a smart list's members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		leads, entries, err := smartlist.New(st, nil).Members(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "load smart list")
		}

		byID := make(map[int64]model.Lead, len(leads))
		for _, lead := range leads {
			byID[lead.ID] = lead
		}
		for _, e := range entries {
			lead, ok := byID[e.LeadID]
			if !ok {
				continue
			}
			fmt.Printf("%d\t%s\t%s\t%s\n",
				lead.ID, lead.Name, e.Category, e.Justification)
		}
		return nil
	},
}

var smartListLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List smart list names",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		names, err := st.SmartListNames(ctx)
		if err != nil {
			return eris.Wrap(err, "list smart lists")
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	},
}

func init() {
	smartListBuildCmd.Flags().StringVar(&smartListName, "name", "", "list name (required)")
	smartListBuildCmd.Flags().StringVar(&smartListCriteria, "criteria", "", "natural-language membership criteria (required)")
	smartListBuildCmd.Flags().StringVar(&smartListFilter.Source, "source", "", "restrict candidates by source")
	smartListBuildCmd.Flags().StringVar(&smartListFilter.BusinessType, "type", "", "restrict candidates by business type")
	smartListBuildCmd.Flags().IntVar(&smartListFilter.Limit, "max", 0, "max leads per run (default from config)")
	_ = smartListBuildCmd.MarkFlagRequired("name")
	_ = smartListBuildCmd.MarkFlagRequired("criteria")

	smartListCmd.AddCommand(smartListBuildCmd, smartListShowCmd, smartListLsCmd)
	rootCmd.AddCommand(smartListCmd)
}
