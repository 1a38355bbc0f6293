package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Delete duplicate leads, keeping the oldest of each group",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		removed, err := st.MergeDuplicates(ctx)
		if err != nil {
			return eris.Wrap(err, "merge duplicates")
		}

		zap.L().Info("dedupe complete", zap.Int("removed", removed))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dedupeCmd)
}
