package cli

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"capset/internal/bulkfetch"
	"capset/internal/ledger"
	"capset/internal/runstore"
	"capset/internal/settings"
	"capset/internal/source"
)

type statusView struct {
	LedgerPath     string  `json:"ledger_path"`
	SourceName     string  `json:"source_name"`
	Completed      int     `json:"completed"`
	Failed         int     `json:"failed"`
	NextIndex      int     `json:"next_index"`
	ElapsedSeconds int64   `json:"elapsed_seconds"`
	Locked         bool    `json:"locked"`
	SourceTotal    int     `json:"source_total"`
	Remaining      int     `json:"remaining"`
	FailurePercent float64 `json:"failure_percent"`
	SourceMatches  *bool   `json:"source_matches,omitempty"`
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())
	ledgerPath := fs.String("ledger", settings.DefaultLedgerPath, "progress ledger (.json)")
	sourcePath := fs.String("source", "", "optional caption TSV to compute remaining items")
	jsonOut := fs.Bool("json", false, "print JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	view, err := buildStatus(*ledgerPath, *sourcePath)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(view)
	}

	fmt.Printf("ledger: %s\n", view.LedgerPath)
	fmt.Printf("source: %s\n", view.SourceName)
	fmt.Printf("completed: %d\n", view.Completed)
	fmt.Printf("failed: %d\n", view.Failed)
	fmt.Printf("next_index: %d\n", view.NextIndex)
	fmt.Printf("elapsed_total: %s\n", time.Duration(view.ElapsedSeconds)*time.Second)
	if view.Locked {
		fmt.Printf("locked: yes (%s)\n", runstore.LockPath(view.LedgerPath))
	}
	if view.SourceMatches != nil {
		if !*view.SourceMatches {
			fmt.Println("warning: ledger was built from a different source")
		}
		fmt.Printf("source_total: %d\n", view.SourceTotal)
		fmt.Printf("remaining: %d\n", view.Remaining)
		fmt.Printf("failure_percent: %.2f%%\n", view.FailurePercent)
	}
	return nil
}

func buildStatus(ledgerPath, sourcePath string) (statusView, error) {
	if err := requireJSONPath(ledgerPath, "ledger"); err != nil {
		return statusView{}, err
	}
	exists, err := runstore.Exists(ledgerPath)
	if err != nil {
		return statusView{}, err
	}
	if !exists {
		return statusView{}, fmt.Errorf("ledger not found: %s", ledgerPath)
	}
	led, err := ledger.Load(ledgerPath)
	if err != nil {
		return statusView{}, err
	}
	completed, failed := led.Counts()
	view := statusView{
		LedgerPath:     ledgerPath,
		SourceName:     led.SourceName,
		Completed:      completed,
		Failed:         failed,
		NextIndex:      led.NextIndex(),
		ElapsedSeconds: led.ElapsedSeconds,
		Locked:         runstore.IsLocked(ledgerPath),
	}

	if strings.TrimSpace(sourcePath) == "" {
		return view, nil
	}
	list, err := source.Load(sourcePath)
	if err != nil {
		return statusView{}, err
	}
	matches := list.Name == led.SourceName
	view.SourceMatches = &matches
	view.SourceTotal = list.Len()
	view.Remaining = max(list.Len()-led.NextIndex(), 0)
	view.FailurePercent = bulkfetch.FailurePercent(failed, list.Len())
	return view, nil
}
