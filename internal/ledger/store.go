package ledger

import (
	"fmt"

	"capset/internal/runstore"
)

func Load(path string) (*Ledger, error) {
	var l Ledger
	if err := runstore.ReadJSON(path, &l); err != nil {
		return nil, err
	}
	l.Normalize()
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ledger %s: %w", path, err)
	}
	return &l, nil
}

func Save(path string, l *Ledger) error {
	l.Normalize()
	if err := runstore.WriteJSON(path, l); err != nil {
		return fmt.Errorf("persist ledger: %w", err)
	}
	return nil
}
