package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsole_SummaryAndFailureLines(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false)

	c.ItemFailed(7, "http://x/7.jpg", "timeout")
	c.ItemFailed(8, `"no tab here"`, "malformed_line")
	c.Progress(Progress{Index: 100, Total: 400, Processed: 101, Elapsed: 61 * time.Second, Remaining: 3 * time.Minute})
	c.Summary(Summary{Total: 400, Completed: 390, Failed: 10, Processed: 400, FailurePercent: 2.5, Elapsed: time.Hour})

	out := buf.String()
	assert.Contains(t, out, "[7] fail  http://x/7.jpg (timeout)")
	assert.Contains(t, out, `[8] fail  "no tab here" (malformed_line)`)
	assert.Contains(t, out, "[100/400] elapsed 0:01:01 | eta 0:03:00")
	assert.Contains(t, out, "downloaded: 390 of 400")
	assert.Contains(t, out, "failure_percent: 2.50%")
	assert.Contains(t, out, "elapsed_total: 1:00:00")
}

func TestConsole_ProgressBarPrefixesLine(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, true)
	c.Progress(Progress{Index: 1, Total: 2})

	line := strings.TrimSpace(buf.String())
	assert.Contains(t, line, "[1/2]")
	assert.False(t, strings.HasPrefix(line, "[1/2]"), "expected bar before status text: %q", line)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0:00:00", formatDuration(-time.Second))
	assert.Equal(t, "0:00:02", formatDuration(1600*time.Millisecond))
	assert.Equal(t, "26:03:04", formatDuration(26*time.Hour+3*time.Minute+4*time.Second))
}

func TestMetrics_CountsAndTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capset.prom")
	var flushErr error
	m := NewMetrics(path, func(err error) { flushErr = err })

	r := Multi{Nop{}, m}
	r.Start(StartInfo{Total: 3})
	r.ItemCompleted(0, "0.jpg")
	r.ItemFailed(1, "http://x/1", "timeout")
	r.ItemFailed(2, "http://x/2", "http_404")
	r.Saved("ledger.json")
	r.Summary(Summary{Total: 3, Completed: 1, Failed: 2, Elapsed: 5 * time.Second})

	require.NoError(t, flushErr)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.items.WithLabelValues("completed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.items.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.saves))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.elapsed))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `capset_fetch_items_total{result="failed"} 2`)
	assert.Contains(t, string(data), "capset_fetch_source_records 3")
}
