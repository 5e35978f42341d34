package settings

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"capset/internal/runstore"
)

const (
	DefaultConfigPath  = "capset.json"
	DefaultTimeout     = time.Second
	DefaultExtension   = "jpg"
	DefaultReportEvery = 100
	DefaultSaveEvery   = 1000
	DefaultMaxBodyMB   = 64
	DefaultDestDir     = "dset_pictures"
	DefaultLedgerPath  = "output_gdset.json"
	maxTimeoutSeconds  = 3600
)

// Settings is the optional on-disk defaults file. Zero fields fall back to
// built-in defaults; command-line flags override both.
type Settings struct {
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty"`
	Retries        int     `json:"retries,omitempty"`
	Extension      string  `json:"extension,omitempty"`
	ReportEvery    int     `json:"report_every,omitempty"`
	SaveEvery      int     `json:"save_every,omitempty"`
	UserAgent      string  `json:"user_agent,omitempty"`
	MaxBodyMB      int     `json:"max_body_mb,omitempty"`
	MetricsFile    string  `json:"metrics_file,omitempty"`
}

// Overrides carries flag values; zero or negative means "not set".
type Overrides struct {
	Timeout     time.Duration
	Retries     int
	Extension   string
	ReportEvery int
	SaveEvery   int
	MetricsFile string
}

type Effective struct {
	Timeout      time.Duration
	Retries      int
	Extension    string
	ReportEvery  int
	SaveEvery    int
	UserAgent    string
	MaxBodyBytes int64
	MetricsFile  string
}

func Defaults() Settings {
	return Settings{
		TimeoutSeconds: DefaultTimeout.Seconds(),
		Extension:      DefaultExtension,
		ReportEvery:    DefaultReportEvery,
		SaveEvery:      DefaultSaveEvery,
		MaxBodyMB:      DefaultMaxBodyMB,
	}
}

// Read loads path; a missing file yields Defaults().
func Read(path string) (Settings, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultConfigPath
	}
	var s Settings
	if err := runstore.ReadJSON(path, &s); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Defaults(), nil
		}
		return Settings{}, err
	}
	return Normalize(s), nil
}

func Normalize(raw Settings) Settings {
	def := Defaults()
	norm := raw
	if norm.TimeoutSeconds <= 0 || norm.TimeoutSeconds > maxTimeoutSeconds {
		norm.TimeoutSeconds = def.TimeoutSeconds
	}
	if norm.Retries < 0 {
		norm.Retries = 0
	}
	norm.Extension = NormalizeExtension(norm.Extension)
	if norm.ReportEvery <= 0 {
		norm.ReportEvery = def.ReportEvery
	}
	if norm.SaveEvery <= 0 {
		norm.SaveEvery = def.SaveEvery
	}
	if norm.MaxBodyMB <= 0 {
		norm.MaxBodyMB = def.MaxBodyMB
	}
	norm.UserAgent = strings.TrimSpace(norm.UserAgent)
	norm.MetricsFile = strings.TrimSpace(norm.MetricsFile)
	return norm
}

func NormalizeExtension(raw string) string {
	ext := strings.ToLower(strings.TrimSpace(raw))
	ext = strings.TrimLeft(ext, ".")
	if ext == "" || strings.ContainsAny(ext, `/\ `) {
		return DefaultExtension
	}
	return ext
}

func Resolve(s Settings, o Overrides) (Effective, error) {
	if o.Timeout < 0 {
		return Effective{}, fmt.Errorf("timeout must be >= 0")
	}
	if o.Retries < -1 {
		return Effective{}, fmt.Errorf("retries must be >= 0, or -1 to keep config/default")
	}
	norm := Normalize(s)

	timeout := o.Timeout
	if timeout == 0 {
		timeout = time.Duration(norm.TimeoutSeconds * float64(time.Second))
	}
	retries := norm.Retries
	if o.Retries >= 0 {
		retries = o.Retries
	}
	ext := norm.Extension
	if strings.TrimSpace(o.Extension) != "" {
		ext = NormalizeExtension(o.Extension)
	}

	return Effective{
		Timeout:      timeout,
		Retries:      retries,
		Extension:    ext,
		ReportEvery:  firstPositive(o.ReportEvery, norm.ReportEvery, DefaultReportEvery),
		SaveEvery:    firstPositive(o.SaveEvery, norm.SaveEvery, DefaultSaveEvery),
		UserAgent:    norm.UserAgent,
		MaxBodyBytes: int64(norm.MaxBodyMB) * 1024 * 1024,
		MetricsFile:  firstNonEmpty(o.MetricsFile, norm.MetricsFile),
	}, nil
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
