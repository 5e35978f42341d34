package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

const barWidth = 40

// Console prints operator-facing status lines.
type Console struct {
	out     io.Writer
	bar     *progress.Model
	heading lipgloss.Style
	warn    lipgloss.Style
	fail    lipgloss.Style
	ok      lipgloss.Style
}

func NewConsole(out io.Writer, showBar bool) *Console {
	r := lipgloss.NewRenderer(out)
	c := &Console{
		out:     out,
		heading: r.NewStyle().Bold(true),
		warn:    r.NewStyle().Foreground(lipgloss.Color("214")),
		fail:    r.NewStyle().Foreground(lipgloss.Color("203")),
		ok:      r.NewStyle().Foreground(lipgloss.Color("42")),
	}
	if showBar {
		bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth))
		c.bar = &bar
	}
	return c
}

func (c *Console) Start(info StartInfo) {
	fmt.Fprintln(c.out, c.heading.Render("paths"))
	fmt.Fprintf(c.out, "source: %s\n", info.SourcePath)
	fmt.Fprintf(c.out, "ledger: %s\n", info.LedgerPath)
	fmt.Fprintf(c.out, "dest_dir: %s\n", info.DestDir)
	mode := "fresh"
	if info.Resumed {
		mode = "resume"
	}
	fmt.Fprintf(c.out, "found %d records, mode %s, starting at index %d\n", info.Total, mode, info.StartIndex)
}

func (c *Console) ItemCompleted(int, string) {}

func (c *Console) ItemFailed(index int, target, reason string) {
	fmt.Fprintln(c.out, c.fail.Render(fmt.Sprintf("[%d] fail  %s (%s)", index, target, reason)))
}

func (c *Console) Progress(p Progress) {
	line := fmt.Sprintf("[%d/%d] elapsed %s | eta %s", p.Index, p.Total, formatDuration(p.Elapsed), formatDuration(p.Remaining))
	if c.bar != nil && p.Total > 0 {
		line = c.bar.ViewAs(float64(p.Index+1)/float64(p.Total)) + "  " + line
	}
	fmt.Fprintln(c.out, line)
}

func (c *Console) Saved(ledgerPath string) {
	fmt.Fprintf(c.out, "saved ledger %s\n", ledgerPath)
}

func (c *Console) Warn(msg string) {
	fmt.Fprintln(c.out, c.warn.Render("warn  "+msg))
}

func (c *Console) Summary(s Summary) {
	fmt.Fprintln(c.out, c.heading.Render("fetch summary"))
	fmt.Fprintln(c.out, c.ok.Render(fmt.Sprintf("downloaded: %d of %d", s.Completed, s.Total)))
	fmt.Fprintf(c.out, "failed: %d\n", s.Failed)
	fmt.Fprintf(c.out, "failure_percent: %.2f%%\n", s.FailurePercent)
	fmt.Fprintf(c.out, "processed_now: %d\n", s.Processed)
	fmt.Fprintf(c.out, "elapsed_total: %s\n", formatDuration(s.Elapsed))
}

// formatDuration renders whole seconds as H:MM:SS.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d.Round(time.Second) / time.Second)
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	var b strings.Builder
	fmt.Fprintf(&b, "%d:%02d:%02d", h, m, s)
	return b.String()
}
