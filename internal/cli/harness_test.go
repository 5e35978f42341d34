package cli

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"capset/internal/coco"
	"capset/internal/ledger"
	"capset/internal/runstore"
)

func newImageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/missing") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg:" + r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeSource(t *testing.T, dir string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, "captions.tsv")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHarnessFetchThenResumeIsIdempotent(t *testing.T) {
	tmp := t.TempDir()
	srv := newImageServer(t)
	src := writeSource(t, tmp,
		"a dog on a beach\t"+srv.URL+"/a.jpg",
		"gone\t"+srv.URL+"/missing.jpg",
		"two cats\t"+srv.URL+"/c.jpg",
	)
	dest := filepath.Join(tmp, "pictures")
	ledgerPath := filepath.Join(tmp, "output_gdset.json")
	args := []string{
		"fetch", "--source", src, "--dest", dest, "--ledger", ledgerPath,
		"--config", filepath.Join(tmp, "capset.json"),
	}

	if err := Run(args); err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}
	led, err := ledger.Load(ledgerPath)
	if err != nil {
		t.Fatal(err)
	}
	completed, failed := led.Counts()
	if completed != 2 || failed != 1 {
		t.Fatalf("unexpected counts: completed=%d failed=%d", completed, failed)
	}
	if led.SourceName != "captions.tsv" {
		t.Fatalf("unexpected source_name %q", led.SourceName)
	}
	if _, err := os.Stat(filepath.Join(dest, "0.jpg")); err != nil {
		t.Fatalf("expected 0.jpg: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "1.jpg")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no artifact for failed index, got err=%v", err)
	}
	if runstore.IsLocked(ledgerPath) {
		t.Fatal("expected lock released after fetch")
	}

	before, err := os.ReadFile(ledgerPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := Run(args); err != nil {
		t.Fatalf("resumed fetch failed: %v", err)
	}
	after, err := os.ReadFile(ledgerPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Fatal("expected ledger unchanged by a resume with nothing left")
	}
}

func TestHarnessFetchRestartNeedsConfirmation(t *testing.T) {
	tmp := t.TempDir()
	srv := newImageServer(t)
	src := writeSource(t, tmp, "one\t"+srv.URL+"/a.jpg")
	ledgerPath := filepath.Join(tmp, "output_gdset.json")
	stale := `{"source_name":"captions.tsv","elapsed_seconds":7,"completed":[],"failed":[0]}` + "\n"
	if err := os.WriteFile(ledgerPath, []byte(stale), 0o644); err != nil {
		t.Fatal(err)
	}

	asked := 0
	orig := confirm
	confirm = func(string) (bool, error) {
		asked++
		return false, nil
	}
	t.Cleanup(func() { confirm = orig })

	args := []string{
		"fetch", "--source", src, "--dest", filepath.Join(tmp, "pictures"),
		"--ledger", ledgerPath, "--resume=false", "--config", filepath.Join(tmp, "capset.json"),
	}
	err := Run(args)
	if err == nil || !strings.Contains(err.Error(), "aborted") {
		t.Fatalf("expected aborted error, got %v", err)
	}
	if asked != 1 {
		t.Fatalf("expected one confirmation prompt, got %d", asked)
	}
	raw, err := os.ReadFile(ledgerPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != stale {
		t.Fatal("expected declined restart to keep the ledger")
	}

	if err := Run(append(args, "--yes")); err != nil {
		t.Fatalf("restart with --yes failed: %v", err)
	}
	if asked != 1 {
		t.Fatalf("expected --yes to skip the prompt, got %d prompts", asked)
	}
	led, err := ledger.Load(ledgerPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(led.Completed) != 1 || len(led.Failed) != 0 {
		t.Fatalf("expected fresh ledger with one completed entry, got %+v", led)
	}
}

func TestFetchRejectsBadArguments(t *testing.T) {
	tmp := t.TempDir()
	src := writeSource(t, tmp, "one\thttp://127.0.0.1/a.jpg")

	cases := []struct {
		name string
		args []string
		want string
	}{
		{"missing source flag", []string{"fetch"}, "--source is required"},
		{"source not found", []string{"fetch", "--source", filepath.Join(tmp, "nope.tsv")}, "not found"},
		{"ledger not json", []string{"fetch", "--source", src, "--ledger", filepath.Join(tmp, "ledger.txt")}, ".json"},
		{"ledger dir missing", []string{"fetch", "--source", src, "--ledger", filepath.Join(tmp, "no", "l.json")}, "does not exist"},
		{"stray args", []string{"fetch", "--source", src, "extra"}, "unexpected arguments"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Run(tc.args)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if err := Run([]string{"frobnicate"}); err == nil {
		t.Fatal("expected error for unknown command")
	}
	if err := Run(nil); err != nil {
		t.Fatalf("expected usage without error, got %v", err)
	}
}

func TestBuildStatusWithSource(t *testing.T) {
	tmp := t.TempDir()
	src := writeSource(t, tmp, "a\thttp://x/a", "b\thttp://x/b", "c\thttp://x/c", "d\thttp://x/d")
	ledgerPath := filepath.Join(tmp, "output_gdset.json")
	led := ledger.New("captions.tsv")
	if err := led.Complete(0, "0.jpg", "a"); err != nil {
		t.Fatal(err)
	}
	if err := led.Fail(1); err != nil {
		t.Fatal(err)
	}
	if err := ledger.Save(ledgerPath, led); err != nil {
		t.Fatal(err)
	}

	view, err := buildStatus(ledgerPath, src)
	if err != nil {
		t.Fatal(err)
	}
	if view.Completed != 1 || view.Failed != 1 || view.NextIndex != 2 {
		t.Fatalf("unexpected counts: %+v", view)
	}
	if view.SourceTotal != 4 || view.Remaining != 2 {
		t.Fatalf("unexpected totals: total=%d remaining=%d", view.SourceTotal, view.Remaining)
	}
	if view.SourceMatches == nil || !*view.SourceMatches {
		t.Fatal("expected source to match ledger")
	}
	if view.FailurePercent != 25 {
		t.Fatalf("expected 25%% failures, got %v", view.FailurePercent)
	}
	if view.Locked {
		t.Fatal("expected unlocked ledger")
	}

	if _, err := buildStatus(filepath.Join(tmp, "absent.json"), ""); err == nil {
		t.Fatal("expected error for missing ledger")
	}
}

func TestBuildStatusFinishedLedgerKeepsZeroRemaining(t *testing.T) {
	tmp := t.TempDir()
	src := writeSource(t, tmp, "a\thttp://x/a")
	ledgerPath := filepath.Join(tmp, "output_gdset.json")
	led := ledger.New("captions.tsv")
	if err := led.Complete(0, "0.jpg", "a"); err != nil {
		t.Fatal(err)
	}
	if err := ledger.Save(ledgerPath, led); err != nil {
		t.Fatal(err)
	}

	view, err := buildStatus(ledgerPath, src)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := json.Marshal(view)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"remaining", "failure_percent", "source_total"} {
		if _, ok := got[key]; !ok {
			t.Fatalf("expected %q in status JSON, got %s", key, raw)
		}
	}
	if got["remaining"] != float64(0) || got["failure_percent"] != float64(0) || got["source_total"] != float64(1) {
		t.Fatalf("unexpected status JSON: %s", raw)
	}
}

func TestHarnessMergeRemapsSecondDataset(t *testing.T) {
	tmp := t.TempDir()
	first := filepath.Join(tmp, "a.json")
	second := filepath.Join(tmp, "b.json")
	out := filepath.Join(tmp, "merged.json")
	if err := coco.Save(first, coco.Dataset{
		Images:      []coco.Image{{ID: 10, FileName: "a.jpg"}},
		Annotations: []coco.Annotation{{ID: 5, ImageID: 10, Caption: "first"}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := coco.Save(second, coco.Dataset{
		Images:      []coco.Image{{ID: 1, FileName: "b.jpg"}},
		Annotations: []coco.Annotation{{ID: 1, ImageID: 1, Caption: "second"}},
	}); err != nil {
		t.Fatal(err)
	}

	if err := Run([]string{"merge", "--first", first, "--second", second, "--out", out}); err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	merged, err := coco.Load(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(merged.Images) != 2 || merged.Images[1].ID != 11 {
		t.Fatalf("unexpected merged images: %+v", merged.Images)
	}
	if merged.Annotations[1].ID != 6 || merged.Annotations[1].ImageID != 11 {
		t.Fatalf("unexpected merged annotation: %+v", merged.Annotations[1])
	}

	err = Run([]string{"merge", "--first", first, "--second", second, "--out", first})
	if err == nil {
		t.Fatal("expected error when --out is an input file")
	}
	err = Run([]string{"merge", "--first", first, "--second", second, "--out", filepath.Join(tmp, "merged.txt")})
	if err == nil || !strings.Contains(err.Error(), ".json") {
		t.Fatalf("expected .json extension error, got %v", err)
	}
}

func TestHarnessLookupResolvesImageDirs(t *testing.T) {
	tmp := t.TempDir()
	cocoPath := filepath.Join(tmp, "captions.json")
	imagesA := filepath.Join(tmp, "train")
	imagesB := filepath.Join(tmp, "val")
	for _, d := range []string{imagesA, imagesB} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(imagesB, "b.jpg"), []byte("img"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := coco.Save(cocoPath, coco.Dataset{
		Images:      []coco.Image{{ID: 2, FileName: "b.jpg"}},
		Annotations: []coco.Annotation{{ID: 9, ImageID: 2, Caption: "a bird"}},
	}); err != nil {
		t.Fatal(err)
	}

	if err := Run([]string{"lookup", "--coco", cocoPath, "--images", imagesA + "," + imagesB, "--num", "0"}); err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	err := Run([]string{"lookup", "--coco", cocoPath, "--num", "3"})
	if !errors.Is(err, coco.ErrPositionOutOfRange) {
		t.Fatalf("expected out of range error, got %v", err)
	}
	if err := Run([]string{"lookup", "--coco", cocoPath}); err == nil {
		t.Fatal("expected error without --num")
	}
}
