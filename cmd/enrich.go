package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tmc-media/leadgen-cli/internal/cost"
	"github.com/tmc-media/leadgen-cli/internal/enrich"
	"github.com/tmc-media/leadgen-cli/pkg/hunter"
	"github.com/tmc-media/leadgen-cli/pkg/pagespeed"
)

var deepLeadIDs []int64

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Fill in missing lead data",
}

var enrichFindFillCmd = &cobra.Command{
	Use:   "find-fill",
	Short: "Find official websites and extract missing contact details",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEnricher(cmd, func(env *enrichEnv) (*enrich.Summary, error) {
			return env.enricher.FindFill(cmd.Context())
		})
	},
}

var enrichWebsitesCmd = &cobra.Command{
	Use:   "websites",
	Short: "Find official websites only, leaving contact fields alone",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEnricher(cmd, func(env *enrichEnv) (*enrich.Summary, error) {
			return env.enricher.FindWebsites(cmd.Context())
		})
	},
}

var enrichBasicCmd = &cobra.Command{
	Use:   "basic",
	Short: "Run the non-AI enrichment pass (PageSpeed score, Hunter emails)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		var psi pagespeed.Client
		if cfg.PageSpeed.Key != "" {
			psi = pagespeed.NewClient(cfg.PageSpeed.Key,
				pagespeed.WithBaseURL(cfg.PageSpeed.BaseURL))
		}
		var hc hunter.Client
		if cfg.Hunter.Key != "" {
			hc = hunter.NewClient(cfg.Hunter.Key,
				hunter.WithBaseURL(cfg.Hunter.BaseURL))
		}
		if psi == nil && hc == nil {
			return eris.New("basic enrichment needs a pagespeed or hunter api key")
		}

		runner := enrich.NewBasicRunner(st, psi, hc,
			usageLogger(), cost.NewCalculator(rateTable()),
			enrich.WithBasicDelay(courtesyRPS(cfg.Enrich.BasicDelayMs)))

		summary, err := runner.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "basic enrichment")
		}
		logSummary("basic enrichment done", summary)
		return nil
	},
}

var enrichDeepCmd = &cobra.Command{
	Use:   "deep",
	Short: "Produce LLM outreach reports for specific leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if len(deepLeadIDs) == 0 {
			return eris.New("--lead is required at least once")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		g, err := initGate()
		if err != nil {
			return err
		}

		session, err := initSession()
		if err != nil {
			return eris.Wrap(err, "init session")
		}
		defer session.Close()

		var opts []enrich.DeepOption
		if cfg.PageSpeed.Key != "" {
			opts = append(opts, enrich.WithPageSpeed(
				pagespeed.NewClient(cfg.PageSpeed.Key,
					pagespeed.WithBaseURL(cfg.PageSpeed.BaseURL))))
		}
		opts = append(opts, enrich.WithDeepDelay(courtesyRPS(cfg.Enrich.CourtesyDelayMs)))

		analyzer := enrich.NewDeepAnalyzer(st, g, session,
			companyProfile(), cfg.Enrich.ReportsDir, cfg.Browser.ScreenshotDir, opts...)

		summary, err := analyzer.AnalyzeBatch(ctx, deepLeadIDs)
		if err != nil {
			return eris.Wrap(err, "deep analysis")
		}
		logSummary("deep analysis done", summary)
		return nil
	},
}

type enrichEnv struct {
	enricher *enrich.Enricher
}

func runEnricher(cmd *cobra.Command, run func(*enrichEnv) (*enrich.Summary, error)) error {
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

	session, err := initSession()
	if err != nil {
		return eris.Wrap(err, "init session")
	}
	defer session.Close()

	e := enrich.New(st, g, initStrategy(session),
		enrich.WithSession(session),
		enrich.WithCourtesyDelay(courtesyRPS(cfg.Enrich.CourtesyDelayMs)),
		enrich.WithCandidatesPerQuery(cfg.Enrich.CandidatesPerQuery),
		enrich.WithSelectLimit(cfg.Enrich.SelectLimit),
		enrich.WithProgress(func(p enrich.Progress) {
			zap.L().Info("lead processed",
				zap.Int64("lead", p.LeadID),
				zap.String("outcome", string(p.Outcome)),
			)
		}),
	)

	summary, err := run(&enrichEnv{enricher: e})
	if err != nil {
		return eris.Wrap(err, "enrichment")
	}
	logSummary("enrichment done", summary)
	return nil
}

func logSummary(msg string, s *enrich.Summary) {
	zap.L().Info(msg,
		zap.Int("processed", s.Processed),
		zap.Int("updated", s.Updated),
		zap.Int("no_new_data", s.NoNewData),
		zap.Int("failed", s.Failed),
	)
}

func init() {
	enrichDeepCmd.Flags().Int64SliceVar(&deepLeadIDs, "lead", nil, "lead id to analyze (repeatable)")

	enrichCmd.AddCommand(enrichFindFillCmd, enrichWebsitesCmd, enrichBasicCmd, enrichDeepCmd)
	rootCmd.AddCommand(enrichCmd)
}
