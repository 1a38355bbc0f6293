package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tmc-media/leadgen-cli/internal/exportfile"
	"github.com/tmc-media/leadgen-cli/internal/store"
)

var (
	exportPath        string
	exportWithReports bool
	exportFilter      store.Filter
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export leads to a CSV or Excel file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		ex := exportfile.NewExporter(st)
		ex.WithReports = exportWithReports

		var rows int
		switch strings.ToLower(filepath.Ext(exportPath)) {
		case ".csv":
			f, err := os.Create(exportPath)
			if err != nil {
				return eris.Wrap(err, "create export file")
			}
			defer f.Close()
			rows, err = ex.ExportCSV(ctx, f, exportFilter)
			if err != nil {
				return eris.Wrap(err, "export csv")
			}
		case ".xlsx":
			rows, err = ex.ExportXLSX(ctx, exportPath, exportFilter)
			if err != nil {
				return eris.Wrap(err, "export xlsx")
			}
		default:
			return eris.Errorf("unsupported file type: %s", exportPath)
		}

		zap.L().Info("export complete",
			zap.String("file", exportPath),
			zap.Int("rows", rows),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportPath, "out", "", "output path, .csv or .xlsx (required)")
	exportCmd.Flags().BoolVar(&exportWithReports, "with-reports", false, "join advanced report columns")
	exportCmd.Flags().StringVar(&exportFilter.Name, "name", "", "filter by name substring")
	exportCmd.Flags().StringVar(&exportFilter.Source, "source", "", "filter by source")
	exportCmd.Flags().StringVar(&exportFilter.BusinessType, "type", "", "filter by business type")
	exportCmd.Flags().StringVar(&exportFilter.Address, "address", "", "filter by address substring")
	_ = exportCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(exportCmd)
}
