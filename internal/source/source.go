package source

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const maxLineBytes = 1 << 20

// Record is one caption/URL pair; its position in the returned slice is its index.
type Record struct {
	Caption   string
	URL       string
	Malformed bool
	// Line is the trimmed input line, kept for reporting malformed records.
	Line string
}

type List struct {
	Name    string
	Records []Record
}

func (l List) Len() int {
	return len(l.Records)
}

func Load(path string) (List, error) {
	f, err := os.Open(path)
	if err != nil {
		return List{}, fmt.Errorf("open source %s: %w", path, err)
	}
	defer f.Close()

	records, err := Parse(f)
	if err != nil {
		return List{}, fmt.Errorf("read source %s: %w", path, err)
	}
	return List{Name: filepath.Base(path), Records: records}, nil
}

// Parse reads "<caption>\t<url>" lines, one record per line. Blank lines and
// lines without a tab are kept as malformed records so later indexes match
// their line positions. A single blank line right before EOF is dropped.
func Parse(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	records := make([]Record, 0, 1024)
	lastBlank := false
	for sc.Scan() {
		raw := strings.TrimRight(sc.Text(), "\r")
		line := strings.TrimSpace(raw)
		lastBlank = line == ""
		caption, rest, ok := strings.Cut(raw, "\t")
		if !ok {
			records = append(records, Record{Caption: line, Malformed: true, Line: line})
			continue
		}
		url, _, _ := strings.Cut(rest, "\t")
		url = strings.TrimSpace(url)
		records = append(records, Record{
			Caption:   strings.TrimSpace(caption),
			URL:       url,
			Malformed: url == "",
			Line:      line,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if lastBlank {
		records = records[:len(records)-1]
	}
	return records, nil
}
