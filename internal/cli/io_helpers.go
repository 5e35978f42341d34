package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// confirm is swapped out by tests.
var confirm = promptConfirm

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func stdinIsTTY() bool {
	return isCharDevice(os.Stdin)
}

func stdoutIsTTY() bool {
	return isCharDevice(os.Stdout)
}

func isCharDevice(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// confirmOverwrite asks before replacing an existing file unless assumeYes.
func confirmOverwrite(path, what string, assumeYes bool) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s %s is a directory", what, path)
	}
	if assumeYes {
		return nil
	}
	ok, err := confirm(fmt.Sprintf("%s %s already exists, overwrite it?", what, path))
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("aborted: existing file kept")
	}
	return nil
}

func requireFile(path, what string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s not found: %s", what, path)
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is not a file: %s", what, path)
	}
	return nil
}

func requireJSONPath(path, what string) error {
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		return fmt.Errorf("%s must have a .json extension: %s", what, path)
	}
	return nil
}

func requireParentDir(path, what string) error {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%s directory does not exist: %s", what, dir)
	}
	return nil
}

func absPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
