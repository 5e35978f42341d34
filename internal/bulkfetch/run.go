package bulkfetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"capset/internal/fetch"
	"capset/internal/ledger"
	"capset/internal/report"
	"capset/internal/runstore"
	"capset/internal/source"
)

const (
	DefaultExtension   = "jpg"
	DefaultReportEvery = 100
	DefaultSaveEvery   = 1000

	reasonMalformed = "malformed_line"
)

var (
	ErrSourceMismatch = errors.New("ledger belongs to a different source")
	ErrLedgerTooLong  = errors.New("ledger references indexes beyond the source list")
)

type Options struct {
	SourcePath  string
	DestDir     string
	LedgerPath  string
	Resume      bool
	Timeout     time.Duration
	Retries     int
	Extension   string
	ReportEvery int
	SaveEvery   int

	// Fetcher defaults to an HTTP fetcher built from Timeout and Retries.
	Fetcher  fetch.Fetcher
	Reporter report.Reporter
	Now      func() time.Time
}

type Result struct {
	SourceName     string  `json:"source_name"`
	LedgerPath     string  `json:"ledger_path"`
	DestDir        string  `json:"dest_dir"`
	Total          int     `json:"total"`
	StartIndex     int     `json:"start_index"`
	Processed      int     `json:"processed_now"`
	Completed      int     `json:"completed"`
	Failed         int     `json:"failed"`
	FailurePercent float64 `json:"failure_percent"`
	ElapsedSeconds int64   `json:"elapsed_seconds"`
}

// itemOutcome is the per-index result: either a saved artifact or a failure
// reason. Storage errors are returned separately and end the run.
type itemOutcome struct {
	filename string
	reason   string
}

func (o itemOutcome) ok() bool {
	return o.reason == ""
}

type runner struct {
	opts     Options
	list     source.List
	led      *ledger.Ledger
	reporter report.Reporter
	now      func() time.Time
	width    int

	priorElapsed time.Duration
	started      time.Time
}

func Run(ctx context.Context, opts Options) (Result, error) {
	opts = withDefaults(opts)
	if strings.TrimSpace(opts.SourcePath) == "" {
		return Result{}, fmt.Errorf("source path is required")
	}
	if strings.TrimSpace(opts.LedgerPath) == "" {
		return Result{}, fmt.Errorf("ledger path is required")
	}
	if strings.TrimSpace(opts.DestDir) == "" {
		return Result{}, fmt.Errorf("destination directory is required")
	}

	list, err := source.Load(opts.SourcePath)
	if err != nil {
		return Result{}, err
	}
	if err := runstore.Mkdir(opts.DestDir); err != nil {
		return Result{}, err
	}
	if err := runstore.Mkdir(filepath.Dir(opts.LedgerPath)); err != nil {
		return Result{}, err
	}

	lock, err := runstore.AcquireLock(opts.LedgerPath)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		_ = lock.Release()
	}()

	led, resumed, err := openLedger(opts, list)
	if err != nil {
		return Result{}, err
	}

	r := &runner{
		opts:         opts,
		list:         list,
		led:          led,
		reporter:     opts.Reporter,
		now:          opts.Now,
		width:        PadWidth(list.Len()),
		priorElapsed: time.Duration(led.ElapsedSeconds) * time.Second,
	}
	return r.run(ctx, resumed)
}

func withDefaults(opts Options) Options {
	if opts.Extension == "" {
		opts.Extension = DefaultExtension
	}
	if opts.ReportEvery <= 0 {
		opts.ReportEvery = DefaultReportEvery
	}
	if opts.SaveEvery <= 0 {
		opts.SaveEvery = DefaultSaveEvery
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Reporter == nil {
		opts.Reporter = report.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Fetcher == nil {
		cfg := fetch.DefaultConfig()
		cfg.Timeout = opts.Timeout
		cfg.Retries = uint64(opts.Retries)
		opts.Fetcher = fetch.NewHTTPFetcher(cfg)
	}
	return opts
}

// openLedger loads the existing ledger in resume mode, otherwise creates and
// persists a fresh one (replacing any previous file).
func openLedger(opts Options, list source.List) (*ledger.Ledger, bool, error) {
	if opts.Resume {
		exists, err := runstore.Exists(opts.LedgerPath)
		if err != nil {
			return nil, false, err
		}
		if exists {
			led, err := ledger.Load(opts.LedgerPath)
			if err != nil {
				return nil, false, err
			}
			if led.SourceName != list.Name {
				return nil, false, fmt.Errorf("%w: ledger %s was built from %q, got %q", ErrSourceMismatch, opts.LedgerPath, led.SourceName, list.Name)
			}
			if led.LastIndex() >= list.Len() {
				return nil, false, fmt.Errorf("%w: last index %d, source has %d records", ErrLedgerTooLong, led.LastIndex(), list.Len())
			}
			return led, true, nil
		}
		opts.Reporter.Warn(fmt.Sprintf("resume requested but %s does not exist; starting from the beginning", opts.LedgerPath))
	}

	led := ledger.New(list.Name)
	if err := ledger.Save(opts.LedgerPath, led); err != nil {
		return nil, false, err
	}
	return led, false, nil
}

func (r *runner) run(ctx context.Context, resumed bool) (Result, error) {
	total := r.list.Len()
	start := r.led.NextIndex()
	r.started = r.now()

	r.reporter.Start(report.StartInfo{
		SourcePath: r.opts.SourcePath,
		DestDir:    r.opts.DestDir,
		LedgerPath: r.opts.LedgerPath,
		Total:      total,
		StartIndex: start,
		Resumed:    resumed,
	})

	if start >= total {
		// nothing left; the ledger on disk stays untouched
		return r.finish(start, 0), nil
	}

	processed := 0
	for i := start; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return r.interrupted(start, processed, err)
		}

		outcome, err := r.processItem(ctx, i)
		if err != nil {
			return Result{}, err
		}
		if ctx.Err() != nil && !outcome.ok() {
			// a fetch cut short by cancellation says nothing about the URL
			return r.interrupted(start, processed, ctx.Err())
		}
		if err := r.record(i, outcome); err != nil {
			return Result{}, err
		}
		processed++

		if i%r.opts.ReportEvery == 0 {
			r.reportProgress(i, total)
		}
		if i%r.opts.SaveEvery == 0 {
			if err := r.save(); err != nil {
				return Result{}, err
			}
		}
	}

	if err := r.save(); err != nil {
		return Result{}, err
	}
	return r.finish(start, processed), nil
}

func (r *runner) processItem(ctx context.Context, i int) (itemOutcome, error) {
	rec := r.list.Records[i]
	filename := Filename(i, r.width, r.opts.Extension)
	dest := filepath.Join(r.opts.DestDir, filename)

	reason := ""
	if rec.Malformed {
		reason = reasonMalformed
	} else {
		res := r.opts.Fetcher.Fetch(ctx, rec.URL)
		if res.OK() {
			if err := runstore.WriteBytes(dest, res.Body); err != nil {
				return itemOutcome{}, fmt.Errorf("save item %d: %w", i, err)
			}
			return itemOutcome{filename: filename}, nil
		}
		reason = fetch.Reason(res.Err)
	}

	// a failed index never leaves an artifact, including one from an earlier run
	if err := runstore.RemoveIfExists(dest); err != nil {
		return itemOutcome{}, fmt.Errorf("clear item %d: %w", i, err)
	}
	return itemOutcome{reason: reason}, nil
}

func (r *runner) record(i int, o itemOutcome) error {
	rec := r.list.Records[i]
	if o.ok() {
		if err := r.led.Complete(i, o.filename, rec.Caption); err != nil {
			return err
		}
		r.reporter.ItemCompleted(i, o.filename)
		return nil
	}
	if err := r.led.Fail(i); err != nil {
		return err
	}
	target := rec.URL
	if rec.Malformed {
		target = strconv.Quote(rec.Line)
	}
	r.reporter.ItemFailed(i, target, o.reason)
	return nil
}

func (r *runner) elapsed() time.Duration {
	return r.priorElapsed + r.now().Sub(r.started)
}

func (r *runner) reportProgress(i, total int) {
	elapsed := r.elapsed()
	done := i + 1
	r.reporter.Progress(report.Progress{
		Index:     i,
		Total:     total,
		Processed: done,
		Elapsed:   elapsed,
		Remaining: ProjectRemaining(elapsed, done, total-done),
	})
}

func (r *runner) save() error {
	r.led.ElapsedSeconds = int64(r.elapsed().Round(time.Second) / time.Second)
	if err := ledger.Save(r.opts.LedgerPath, r.led); err != nil {
		return err
	}
	r.reporter.Saved(r.opts.LedgerPath)
	return nil
}

func (r *runner) interrupted(start, processed int, cause error) (Result, error) {
	if err := r.save(); err != nil {
		return Result{}, errors.Join(cause, err)
	}
	res := r.finish(start, processed)
	return res, fmt.Errorf("fetch interrupted at index %d: %w", start+processed, cause)
}

func (r *runner) finish(start, processed int) Result {
	completed, failed := r.led.Counts()
	total := r.list.Len()
	res := Result{
		SourceName:     r.list.Name,
		LedgerPath:     r.opts.LedgerPath,
		DestDir:        r.opts.DestDir,
		Total:          total,
		StartIndex:     start,
		Processed:      processed,
		Completed:      completed,
		Failed:         failed,
		FailurePercent: FailurePercent(failed, total),
		ElapsedSeconds: r.led.ElapsedSeconds,
	}
	r.reporter.Summary(report.Summary{
		Total:          total,
		Completed:      completed,
		Failed:         failed,
		Processed:      processed,
		FailurePercent: res.FailurePercent,
		Elapsed:        time.Duration(res.ElapsedSeconds) * time.Second,
	})
	return res
}

// PadWidth is the digit count of the largest index, so lexical and numeric
// filename order agree.
func PadWidth(total int) int {
	if total <= 1 {
		return 1
	}
	return len(strconv.Itoa(total - 1))
}

func Filename(index, width int, ext string) string {
	return fmt.Sprintf("%0*d.%s", width, index, ext)
}

// ProjectRemaining scales elapsed time by remaining/processed items.
func ProjectRemaining(elapsed time.Duration, processed, remaining int) time.Duration {
	if processed <= 0 || remaining <= 0 {
		return 0
	}
	return time.Duration(float64(elapsed) * float64(remaining) / float64(processed))
}

func FailurePercent(failed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(10000*float64(failed)/float64(total)) / 100
}
