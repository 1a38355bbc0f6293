package main

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tmc-media/leadgen-cli/internal/exportfile"
)

var importPath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import leads from a CSV or Excel file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		im := exportfile.NewImporter(st)

		var inserted, skipped int
		switch strings.ToLower(filepath.Ext(importPath)) {
		case ".csv":
			inserted, skipped, err = im.ImportCSV(ctx, importPath)
		case ".xlsx":
			inserted, skipped, err = im.ImportXLSX(ctx, importPath)
		default:
			return eris.Errorf("unsupported file type: %s", importPath)
		}
		if err != nil {
			return eris.Wrap(err, "import file")
		}

		zap.L().Info("import complete",
			zap.String("file", importPath),
			zap.Int("inserted", inserted),
			zap.Int("skipped", skipped),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importPath, "file", "", "path to .csv or .xlsx file (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
