// Package report holds the progress sinks a bulk fetch reports to. The
// fetcher only hands them plain values; rendering is entirely up to the sink.
package report

import "time"

type StartInfo struct {
	SourcePath string
	DestDir    string
	LedgerPath string
	Total      int
	StartIndex int
	Resumed    bool
}

type Progress struct {
	Index     int
	Total     int
	Processed int
	Elapsed   time.Duration
	Remaining time.Duration
}

type Summary struct {
	Total          int
	Completed      int
	Failed         int
	Processed      int
	FailurePercent float64
	Elapsed        time.Duration
}

type Reporter interface {
	Start(info StartInfo)
	ItemCompleted(index int, filename string)
	// ItemFailed gets the URL, or the quoted input line for a malformed record.
	ItemFailed(index int, target, reason string)
	Progress(p Progress)
	Saved(ledgerPath string)
	Warn(msg string)
	Summary(s Summary)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Start(StartInfo)                {}
func (Nop) ItemCompleted(int, string)      {}
func (Nop) ItemFailed(int, string, string) {}
func (Nop) Progress(Progress)              {}
func (Nop) Saved(string)                   {}
func (Nop) Warn(string)                    {}
func (Nop) Summary(Summary)                {}

// Multi fans every call out to each reporter in order.
type Multi []Reporter

func (m Multi) Start(info StartInfo) {
	for _, r := range m {
		r.Start(info)
	}
}

func (m Multi) ItemCompleted(index int, filename string) {
	for _, r := range m {
		r.ItemCompleted(index, filename)
	}
}

func (m Multi) ItemFailed(index int, target, reason string) {
	for _, r := range m {
		r.ItemFailed(index, target, reason)
	}
}

func (m Multi) Progress(p Progress) {
	for _, r := range m {
		r.Progress(p)
	}
}

func (m Multi) Saved(ledgerPath string) {
	for _, r := range m {
		r.Saved(ledgerPath)
	}
}

func (m Multi) Warn(msg string) {
	for _, r := range m {
		r.Warn(msg)
	}
}

func (m Multi) Summary(s Summary) {
	for _, r := range m {
		r.Summary(s)
	}
}
