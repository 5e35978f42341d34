package ledger

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrOutOfOrder = errors.New("ledger index out of order")
	ErrDuplicate  = errors.New("ledger index already recorded")
)

// Ledger is the persisted progress record of a bulk fetch.
type Ledger struct {
	SourceName     string  `json:"source_name"`
	ElapsedSeconds int64   `json:"elapsed_seconds"`
	Completed      []Entry `json:"completed"`
	Failed         []int   `json:"failed"`
}

type Entry struct {
	Index    int    `json:"index"`
	Filename string `json:"filename"`
	Caption  string `json:"caption"`
}

func New(sourceName string) *Ledger {
	return &Ledger{
		SourceName: sourceName,
		Completed:  []Entry{},
		Failed:     []int{},
	}
}

// LastIndex returns the highest recorded index, or -1 for an empty ledger.
func (l *Ledger) LastIndex() int {
	last := -1
	if n := len(l.Completed); n > 0 {
		last = l.Completed[n-1].Index
	}
	if n := len(l.Failed); n > 0 && l.Failed[n-1] > last {
		last = l.Failed[n-1]
	}
	return last
}

func (l *Ledger) NextIndex() int {
	return l.LastIndex() + 1
}

func (l *Ledger) Complete(index int, filename, caption string) error {
	if err := l.checkAppend(index); err != nil {
		return err
	}
	l.Completed = append(l.Completed, Entry{Index: index, Filename: filename, Caption: caption})
	return nil
}

func (l *Ledger) Fail(index int) error {
	if err := l.checkAppend(index); err != nil {
		return err
	}
	l.Failed = append(l.Failed, index)
	return nil
}

func (l *Ledger) checkAppend(index int) error {
	if index < 0 {
		return fmt.Errorf("%w: negative index %d", ErrOutOfOrder, index)
	}
	last := l.LastIndex()
	if index > last {
		return nil
	}
	if l.contains(index) {
		return fmt.Errorf("%w: %d", ErrDuplicate, index)
	}
	return fmt.Errorf("%w: %d after %d", ErrOutOfOrder, index, last)
}

func (l *Ledger) contains(index int) bool {
	if _, ok := slices.BinarySearchFunc(l.Completed, index, func(e Entry, t int) int {
		return e.Index - t
	}); ok {
		return true
	}
	_, ok := slices.BinarySearch(l.Failed, index)
	return ok
}

// Validate checks a ledger read from disk: both lists strictly increasing,
// no index in both, none negative.
func (l *Ledger) Validate() error {
	seen := make(map[int]bool, len(l.Completed)+len(l.Failed))
	prev := -1
	for _, e := range l.Completed {
		if e.Index <= prev {
			return fmt.Errorf("%w: completed index %d after %d", ErrOutOfOrder, e.Index, prev)
		}
		prev = e.Index
		seen[e.Index] = true
	}
	prev = -1
	for _, i := range l.Failed {
		if i <= prev {
			return fmt.Errorf("%w: failed index %d after %d", ErrOutOfOrder, i, prev)
		}
		prev = i
		if seen[i] {
			return fmt.Errorf("%w: %d is both completed and failed", ErrDuplicate, i)
		}
	}
	return nil
}

// Normalize replaces nil slices so the JSON form always carries arrays.
func (l *Ledger) Normalize() {
	if l.Completed == nil {
		l.Completed = []Entry{}
	}
	if l.Failed == nil {
		l.Failed = []int{}
	}
}

func (l *Ledger) Counts() (completed, failed int) {
	return len(l.Completed), len(l.Failed)
}
