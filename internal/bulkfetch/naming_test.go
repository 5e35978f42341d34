package bulkfetch

import (
	"sort"
	"strconv"
	"testing"
	"time"
)

func TestPadWidth(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 2: 1, 10: 1, 11: 2, 100: 2, 101: 3, 12345: 5, 100000: 5, 100001: 6}
	for total, want := range cases {
		if got := PadWidth(total); got != want {
			t.Fatalf("PadWidth(%d) = %d, want %d", total, got, want)
		}
	}
}

func TestFilename_LexicalOrderMatchesNumeric(t *testing.T) {
	width := PadWidth(12345)
	if got := Filename(42, width, "jpg"); got != "00042.jpg" {
		t.Fatalf("unexpected filename %q", got)
	}
	names := make([]string, 0, 12345)
	for i := 12344; i >= 0; i -= 7 {
		names = append(names, Filename(i, width, "jpg"))
	}
	sort.Strings(names)
	prev := -1
	for _, n := range names {
		i, err := strconv.Atoi(n[:width])
		if err != nil {
			t.Fatal(err)
		}
		if i <= prev {
			t.Fatalf("lexical order broke numeric order at %s", n)
		}
		prev = i
	}
}

func TestProjectRemaining(t *testing.T) {
	if got := ProjectRemaining(100*time.Second, 10, 30); got != 300*time.Second {
		t.Fatalf("unexpected projection %s", got)
	}
	if got := ProjectRemaining(time.Minute, 0, 5); got != 0 {
		t.Fatalf("expected zero projection without progress, got %s", got)
	}
}

func TestFailurePercent(t *testing.T) {
	if got := FailurePercent(1, 3); got != 33.33 {
		t.Fatalf("unexpected percent %v", got)
	}
	if got := FailurePercent(0, 0); got != 0 {
		t.Fatalf("expected zero for empty source, got %v", got)
	}
}
