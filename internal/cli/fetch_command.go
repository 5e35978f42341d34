package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"capset/internal/bulkfetch"
	"capset/internal/fetch"
	"capset/internal/report"
	"capset/internal/settings"
)

func runFetch(args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())
	sourcePath := fs.String("source", "", "caption TSV file (caption<TAB>url per line)")
	destDir := fs.String("dest", settings.DefaultDestDir, "directory for downloaded files")
	ledgerPath := fs.String("ledger", settings.DefaultLedgerPath, "progress ledger (.json)")
	resume := fs.Bool("resume", true, "continue from the ledger; false starts over and replaces it")
	timeout := fs.Duration("timeout", 0, "per-item timeout (default from config, else 1s)")
	retries := fs.Int("retries", -1, "retries per item after the first attempt (-1 keeps config/default)")
	ext := fs.String("ext", "", "extension for saved files (default from config, else jpg)")
	reportEvery := fs.Int("report-every", 0, "report progress every N items (default from config, else 100)")
	saveEvery := fs.Int("save-every", 0, "persist the ledger every N items (default from config, else 1000)")
	configPath := fs.String("config", settings.DefaultConfigPath, "optional JSON settings file")
	metricsFile := fs.String("metrics-file", "", "write Prometheus text metrics to this file")
	yes := fs.Bool("yes", false, "replace an existing ledger without asking")
	jsonOut := fs.Bool("json", false, "print the final result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	if strings.TrimSpace(*sourcePath) == "" {
		return errors.New("--source is required")
	}
	if err := requireFile(*sourcePath, "source file"); err != nil {
		return err
	}
	if err := requireJSONPath(*ledgerPath, "ledger"); err != nil {
		return err
	}
	if err := requireParentDir(*ledgerPath, "ledger"); err != nil {
		return err
	}

	raw, err := settings.Read(*configPath)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	eff, err := settings.Resolve(raw, settings.Overrides{
		Timeout:     *timeout,
		Retries:     *retries,
		Extension:   *ext,
		ReportEvery: *reportEvery,
		SaveEvery:   *saveEvery,
		MetricsFile: *metricsFile,
	})
	if err != nil {
		return err
	}

	if !*resume {
		if err := confirmOverwrite(*ledgerPath, "ledger", *yes); err != nil {
			return err
		}
	}

	var console io.Writer = os.Stdout
	if *jsonOut {
		console = os.Stderr
	}
	reporters := report.Multi{report.NewConsole(console, !*jsonOut && stdoutIsTTY())}
	if eff.MetricsFile != "" {
		reporters = append(reporters, report.NewMetrics(eff.MetricsFile, func(err error) {
			fmt.Fprintf(os.Stderr, "warn  metrics: %v\n", err)
		}))
	}

	cfg := fetch.DefaultConfig()
	cfg.Timeout = eff.Timeout
	cfg.Retries = uint64(eff.Retries)
	cfg.MaxBodyBytes = eff.MaxBodyBytes
	if eff.UserAgent != "" {
		cfg.UserAgent = eff.UserAgent
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := bulkfetch.Run(ctx, bulkfetch.Options{
		SourcePath:  *sourcePath,
		DestDir:     *destDir,
		LedgerPath:  *ledgerPath,
		Resume:      *resume,
		Timeout:     eff.Timeout,
		Retries:     eff.Retries,
		Extension:   eff.Extension,
		ReportEvery: eff.ReportEvery,
		SaveEvery:   eff.SaveEvery,
		Fetcher:     fetch.NewHTTPFetcher(cfg),
		Reporter:    reporters,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "interrupted: ledger saved to %s, rerun to resume\n", *ledgerPath)
		}
		return err
	}

	if *jsonOut {
		return printJSON(res)
	}
	fmt.Printf("ledger: %s\n", res.LedgerPath)
	fmt.Printf("dest: %s\n", res.DestDir)
	if res.Processed == 0 && res.StartIndex >= res.Total {
		fmt.Println("nothing to do: every record is already in the ledger")
	}
	return nil
}
