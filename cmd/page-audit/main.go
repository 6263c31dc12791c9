// Command page-audit fetches a page and reports the extension-injected
// elements the interference sweep would remove, without removing them.
//
// Usage:
//
//	page-audit -url https://admin.example.com/ -out findings.csv
//	page-audit -url https://admin.example.com/ -out findings.xlsx -revision v4 -exec
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/poku-e/foodadmin/internal/config"
	"github.com/poku-e/foodadmin/internal/interference"
	"github.com/poku-e/foodadmin/internal/logger"
)

type auditOptions struct {
	URL       string
	Out       string
	Exec      bool
	Selectors []string
}

func main() {
	var (
		opts       auditOptions
		configPath string
		revision   string
		selectors  string
	)
	flag.StringVar(&opts.URL, "url", "", "Page URL to fetch (required)")
	flag.StringVar(&opts.Out, "out", "", "Output file path (.csv or .xlsx) (required)")
	flag.StringVar(&configPath, "config", "", "Path to the YAML config file (optional)")
	flag.StringVar(&revision, "revision", "", "Denylist revision (overrides config)")
	flag.StringVar(&selectors, "selectors", "", "Comma-separated sweep selectors (default: built-in list)")
	flag.BoolVar(&opts.Exec, "exec", false, "Also run the page's inline scripts with the filter installed")
	flag.Parse()

	if opts.URL == "" || opts.Out == "" {
		flag.Usage()
		os.Exit(2)
	}
	for _, s := range strings.Split(selectors, ",") {
		if s = strings.TrimSpace(s); s != "" {
			opts.Selectors = append(opts.Selectors, s)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err)
	}
	if revision != "" {
		cfg.Interference.Revision = revision
		cfg.Interference.DenylistPath = ""
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	sum, err := audit(ctx, cfg.Interference, opts, log)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("OK: %d findings -> %s\n", len(sum.Findings), opts.Out)
	if opts.Exec {
		fmt.Printf("scripts: %d run, %d failed | suppressed: %d errors, %d console, %d requests, %d listeners\n",
			sum.Scripts.Ran, len(sum.Scripts.Failed),
			sum.Stats.ErrorsBlocked, sum.Stats.ConsoleDropped, sum.Stats.RequestsBlocked, sum.Stats.ListenersRefused)
	}
}

type summary struct {
	Findings []interference.Finding
	Scripts  scriptResult
	Stats    interference.Stats
}

func audit(ctx context.Context, ic config.InterferenceConfig, opts auditOptions, log logger.Logger) (summary, error) {
	var sum summary
	dl, err := ic.Denylist()
	if err != nil {
		return sum, err
	}
	mode, err := interference.ParseFetchMode(ic.FetchMode)
	if err != nil {
		return sum, err
	}
	heuristic := ic.StyleHeuristic == nil || *ic.StyleHeuristic
	f := interference.New(dl,
		interference.WithLogger(log.Named("interference")),
		interference.WithStyleHeuristic(heuristic),
	)
	log = log.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return interference.NewCore(c, f)
	}))

	body, err := fetch(ctx, f.Client(baseTransport(), mode, 25*time.Second), opts.URL)
	if err != nil {
		return sum, err
	}
	page, err := interference.ParsePage(body)
	if err != nil {
		return sum, err
	}

	var sweepOpts []interference.SweepOption
	if len(opts.Selectors) > 0 {
		sweepOpts = append(sweepOpts, interference.WithSelectors(opts.Selectors...))
	}
	sweepOpts = append(sweepOpts, interference.WithSweepLogger(log))
	sweeper := f.Sweeper(sweepOpts...)
	if len(sweeper.Selectors()) == 0 {
		return sum, errors.New("no valid selectors")
	}
	sum.Findings = sweeper.Audit(page)

	if opts.Exec {
		sum.Scripts, err = runScripts(f, mode, inlineScripts(page), 5*time.Second, log)
		if err != nil {
			return sum, err
		}
	}
	sum.Stats = f.Snapshot()

	if err := writeReport(opts.Out, sum.Findings); err != nil {
		return sum, err
	}
	return sum, nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}
