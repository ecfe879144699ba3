package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/subcommands"
	"github.com/jmanzanog/stock-screener/internal/application"
	"github.com/jmanzanog/stock-screener/internal/bootstrap"
	"github.com/jmanzanog/stock-screener/internal/domain"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/config"
	"github.com/joho/godotenv"
)

// Register the subcommands.
func Register(c *subcommands.Commander, e *env) {
	c.Register(&refreshCmd{env: e}, "data")
	c.Register(&seedCmd{env: e}, "data")

	c.Register(&statusCmd{env: e}, "inspect")
	c.Register(&screenCmd{env: e}, "inspect")
}

// env is what every command needs to reach the stores.
type env struct {
	open func(ctx context.Context) (*bootstrap.Services, error)
	out  io.Writer
	err  io.Writer
}

func newEnv() *env {
	return &env{open: openServices, out: os.Stdout, err: os.Stderr}
}

// openServices loads the configuration from the environment (and .env when
// present) and builds the service graph.
func openServices(ctx context.Context) (*bootstrap.Services, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if _, _, err := bootstrap.SetupLogger(cfg.LogLevel, ""); err != nil {
		return nil, err
	}

	return bootstrap.Build(ctx, cfg, bootstrap.Options{})
}

// withServices opens the graph, runs fn and closes everything afterwards.
func (e *env) withServices(ctx context.Context, fn func(*bootstrap.Services) error) subcommands.ExitStatus {
	services, err := e.open(ctx)
	if err != nil {
		fmt.Fprintln(e.err, err)
		return subcommands.ExitFailure
	}
	defer func() {
		if err := services.Close(); err != nil {
			fmt.Fprintln(e.err, err)
		}
	}()

	if err := fn(services); err != nil {
		var verr *application.ValidationError
		if errors.As(err, &verr) {
			for _, fe := range verr.Errors {
				fmt.Fprintf(e.err, "%s: %s\n", fe.Field, fe.Message)
			}
			return subcommands.ExitUsageError
		}
		fmt.Fprintln(e.err, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// marketsFlag resolves an optional -market flag against the configured
// markets.
func marketsFlag(raw string, configured []domain.Market) ([]domain.Market, error) {
	if raw == "" {
		return configured, nil
	}
	m, err := application.ParseMarketParam(raw)
	if err != nil {
		return nil, err
	}
	return []domain.Market{m}, nil
}

var errRefreshFailed = errors.New("one or more markets failed to refresh")

type refreshCmd struct {
	*env
	market string
}

func (*refreshCmd) Name() string     { return "refresh" }
func (*refreshCmd) Synopsis() string { return "fetch fundamentals for the universe and store them" }
func (*refreshCmd) Usage() string {
	return `screenerctl refresh [-market JP|US]

  Runs a refresh synchronously for one market, or for every configured
  market when -market is omitted, and prints the outcome of each run.
  Exits non-zero when a run ends in failure.
`
}

func (c *refreshCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.market, "market", "", "Market to refresh (JP or US). Defaults to every configured market.")
}

func (c *refreshCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.withServices(ctx, func(s *bootstrap.Services) error {
		markets, err := marketsFlag(c.market, s.Config.Markets)
		if err != nil {
			return err
		}

		failed := false
		for _, m := range markets {
			outcome, err := s.Orchestrator.RefreshMarket(ctx, m)
			if outcome != nil {
				printOutcome(c.out, outcome)
				failed = failed || outcome.Status == domain.BatchFailure
			}
			if err != nil {
				return fmt.Errorf("refresh %s: %w", m, err)
			}
		}

		freshness, err := s.Screening.Freshness(ctx)
		if err != nil {
			return err
		}
		for _, mf := range freshness.Markets {
			fmt.Fprintf(c.out, "%s: %d stocks stored\n", mf.Market, mf.Count)
		}
		if failed {
			return errRefreshFailed
		}
		return nil
	})
}

func printOutcome(w io.Writer, o *domain.BatchOutcome) {
	fmt.Fprintf(w, "%s: %s (%d/%d succeeded, %d failed) in %s\n",
		o.Market, o.Status, o.SuccessCount, o.TotalRequested, o.FailureCount,
		o.FinishedAt.Sub(o.StartedAt).Round(time.Millisecond))
	for _, f := range o.Failures {
		fmt.Fprintf(w, "  %s [%s] %s\n", f.Symbol, f.Kind, f.Error)
	}
}

type seedCmd struct {
	*env
	market string
}

func (*seedCmd) Name() string     { return "seed" }
func (*seedCmd) Synopsis() string { return "insert universe symbols that are not stored yet" }
func (*seedCmd) Usage() string {
	return `screenerctl seed [-market JP|US]

  Stores a name and sector for every universe symbol missing from the
  database, without calling the market data provider.
`
}

func (c *seedCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.market, "market", "", "Market to seed (JP or US). Defaults to every configured market.")
}

func (c *seedCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.withServices(ctx, func(s *bootstrap.Services) error {
		markets, err := marketsFlag(c.market, s.Config.Markets)
		if err != nil {
			return err
		}
		n, err := s.Orchestrator.Seed(ctx, markets...)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "seeded %d symbols\n", n)
		return nil
	})
}

type statusCmd struct {
	*env
	asJSON bool
}

func (*statusCmd) Name() string     { return "status" }
func (*statusCmd) Synopsis() string { return "show stored record counts and the last refresh runs" }
func (*statusCmd) Usage() string {
	return `screenerctl status [-json]
`
}

func (c *statusCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.asJSON, "json", false, "Print the report as JSON.")
}

func (c *statusCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.withServices(ctx, func(s *bootstrap.Services) error {
		report, err := s.Status.Report(ctx)
		if err != nil {
			return err
		}
		if c.asJSON {
			return writeJSON(c.out, report)
		}

		tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "MARKET\tSTOCKS\tLAST UPDATED\tLAST RUN")
		for _, mf := range report.Freshness.Markets {
			updated := "never"
			if mf.LastUpdated != nil {
				updated = mf.LastUpdated.Format(time.RFC3339)
			}
			run := "-"
			if o, ok := report.Refresh.ByMarket[mf.Market]; ok {
				run = fmt.Sprintf("%s %d/%d", o.Status, o.SuccessCount, o.TotalRequested)
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", mf.Market, mf.Count, updated, run)
		}
		fmt.Fprintf(tw, "TOTAL\t%d\t\t\n", report.Freshness.Total)
		return tw.Flush()
	})
}

type screenCmd struct {
	*env
}

func (*screenCmd) Name() string     { return "screen" }
func (*screenCmd) Synopsis() string { return "run a screening query against the stored records" }
func (*screenCmd) Usage() string {
	return `screenerctl screen <query>

  Runs the same query the HTTP API accepts and prints the page as JSON.

  Example:
    screenerctl screen 'market=JP&perMax=15&sortBy=dividendYield&sortOrder=desc'
`
}

func (*screenCmd) SetFlags(*flag.FlagSet) {}

func (c *screenCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(c.err, c.Usage())
		return subcommands.ExitUsageError
	}
	values, err := url.ParseQuery(strings.TrimPrefix(f.Arg(0), "?"))
	if err != nil {
		fmt.Fprintf(c.err, "invalid query: %v\n", err)
		return subcommands.ExitUsageError
	}

	return c.withServices(ctx, func(s *bootstrap.Services) error {
		result, err := s.Screening.ScreenQuery(ctx, values)
		if err != nil {
			return err
		}
		return writeJSON(c.out, result)
	})
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
