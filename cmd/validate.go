package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tmc-media/leadgen-cli/internal/gate"
	"github.com/tmc-media/leadgen-cli/internal/model"
	"github.com/tmc-media/leadgen-cli/internal/store"
)

var (
	validateFilter store.Filter
	validateDelete bool
)

var leadsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Flag junk entries (category labels, scrape fragments) via the validation gate",
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

		if validateFilter.Limit == 0 {
			validateFilter.Limit = 100
		}
		leads, err := st.ListLeads(ctx, validateFilter)
		if err != nil {
			return eris.Wrap(err, "list leads")
		}

		var junk []int64
		for _, lead := range leads {
			if err := ctx.Err(); err != nil {
				return err
			}

			verdict, err := g.ValidateEntry(ctx, string(lead.RecordType), lead.Name, entryDetails(lead))
			if eris.Is(err, gate.ErrUnparseable) {
				// No verdict means no action on the record.
				zap.L().Warn("entry verdict unparseable", zap.Int64("lead", lead.ID))
				continue
			}
			if err != nil {
				return eris.Wrap(err, "validate entry")
			}
			if verdict.IsValid {
				continue
			}

			junk = append(junk, lead.ID)
			fmt.Printf("%d\t%s\t%s\n", lead.ID, lead.Name, verdict.Reason)
		}

		if validateDelete && len(junk) > 0 {
			removed, err := st.DeleteLeads(ctx, junk)
			if err != nil {
				return eris.Wrap(err, "delete junk leads")
			}
			zap.L().Info("junk leads deleted", zap.Int("removed", removed))
		} else {
			zap.L().Info("validation sweep done",
				zap.Int("checked", len(leads)),
				zap.Int("junk", len(junk)),
			)
		}
		return nil
	},
}

func entryDetails(l model.Lead) string {
	var parts []string
	for _, p := range []struct{ label, value string }{
		{"title", l.Title},
		{"website", l.Website},
		{"address", l.Address},
		{"source", l.Source},
	} {
		if p.value != "" {
			parts = append(parts, p.label+": "+p.value)
		}
	}
	if len(parts) == 0 {
		return "no other fields recorded"
	}
	return strings.Join(parts, ", ")
}

func init() {
	leadsValidateCmd.Flags().StringVar(&validateFilter.Source, "source", "", "restrict to a source")
	leadsValidateCmd.Flags().IntVar(&validateFilter.Limit, "limit", 100, "max leads to check")
	leadsValidateCmd.Flags().BoolVar(&validateDelete, "delete", false, "delete flagged entries instead of just listing them")

	leadsCmd.AddCommand(leadsValidateCmd)
}
