package runstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	lockDirSuffix = ".lock"
	lockOwnerFile = "owner.json"
)

// Lock guards a ledger against a second fetcher running on the same path.
type Lock struct {
	lockDir string
	token   string
}

type lockOwner struct {
	Token     string `json:"token"`
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

func LockPath(ledgerPath string) string {
	return strings.TrimSpace(ledgerPath) + lockDirSuffix
}

// IsLocked reports whether a lock directory currently sits beside ledgerPath.
func IsLocked(ledgerPath string) bool {
	info, err := os.Stat(LockPath(ledgerPath))
	return err == nil && info.IsDir()
}

func AcquireLock(ledgerPath string) (Lock, error) {
	target := strings.TrimSpace(ledgerPath)
	if target == "" {
		return Lock{}, fmt.Errorf("ledger path is required")
	}

	lockDir := LockPath(target)
	if err := os.Mkdir(lockDir, 0o755); err != nil {
		if os.IsExist(err) {
			var owner lockOwner
			if readErr := ReadJSON(filepath.Join(lockDir, lockOwnerFile), &owner); readErr == nil && owner.PID > 0 && owner.CreatedAt != "" {
				return Lock{}, fmt.Errorf(
					"ledger is locked: %s (pid=%d created_at=%s host=%s); remove %s if no fetch is running",
					target, owner.PID, owner.CreatedAt, owner.Hostname, lockDir,
				)
			}
			return Lock{}, fmt.Errorf("ledger is locked: %s", target)
		}
		return Lock{}, fmt.Errorf("acquire lock for %s: %w", target, err)
	}

	owner := lockOwner{
		Token:     uuid.NewString(),
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	if err := WriteJSON(filepath.Join(lockDir, lockOwnerFile), owner); err != nil {
		_ = os.RemoveAll(lockDir)
		return Lock{}, fmt.Errorf("write lock owner for %s: %w", target, err)
	}

	return Lock{lockDir: lockDir, token: owner.Token}, nil
}

// Release removes the lock only if it still carries this holder's token.
func (l Lock) Release() error {
	if strings.TrimSpace(l.lockDir) == "" {
		return nil
	}
	ownerPath := filepath.Join(l.lockDir, lockOwnerFile)
	var owner lockOwner
	if err := ReadJSON(ownerPath, &owner); err == nil && owner.Token != l.token {
		return fmt.Errorf("release lock %s: held by another owner (pid=%d)", l.lockDir, owner.PID)
	}
	_ = os.Remove(ownerPath)
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock %s: %w", l.lockDir, err)
	}
	return nil
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
