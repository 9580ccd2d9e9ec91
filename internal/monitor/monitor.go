// Package monitor implements the Output Monitor: it watches a multiplexer
// session's pane for the idle-timeout pattern that indicates an interactive
// CLI has finished producing a response. It is purely observational and
// never writes to the session.
package monitor

import (
	"context"
	"crypto/sha256"
	"regexp"
	"strings"
	"time"

	"github.com/khuongdo/mindmux/internal/multiplexer"
)

// Status is the outcome of a single Wait call.
type Status string

const (
	StatusComplete Status = "complete"
	StatusTimeout  Status = "timeout"
	StatusError    Status = "error"
)

// Result is returned by Wait.
type Result struct {
	Status     Status
	Output     string
	DurationMs int64
	Err        error
}

// Config tunes the polling algorithm.
type Config struct {
	PollInterval  time.Duration // default 500ms
	IdleThreshold time.Duration // default 2s
	Timeout       time.Duration // default 5min
}

// DefaultConfig returns the spec's default polling parameters.
func DefaultConfig() Config {
	return Config{
		PollInterval:  500 * time.Millisecond,
		IdleThreshold: 2 * time.Second,
		Timeout:       5 * time.Minute,
	}
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// normalize strips ANSI escape sequences and trailing whitespace from each
// line so that cursor-blink or color-only redraws don't defeat the hash.
func normalize(text string) string {
	stripped := ansiPattern.ReplaceAllString(text, "")
	lines := strings.Split(stripped, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

func hash(text string) [32]byte {
	return sha256.Sum256([]byte(text))
}

// Monitor polls a Driver's pane output until it stabilizes.
type Monitor struct {
	driver multiplexer.Driver
	cfg    Config
}

// New creates a Monitor bound to driver with the given polling configuration.
func New(driver multiplexer.Driver, cfg Config) *Monitor {
	return &Monitor{driver: driver, cfg: cfg}
}

// Wait polls sessionName's pane at cfg.PollInterval, hashing the normalized
// text each time. It returns StatusComplete once the hash has been
// unchanged for cfg.IdleThreshold, StatusTimeout if cfg.Timeout elapses
// first, or StatusError on a capture failure.
func (m *Monitor) Wait(ctx context.Context, sessionName string, lineCount int) Result {
	start := time.Now()
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	var lastHash [32]byte
	var lastChange time.Time
	var lastOutput string
	first := true

	for {
		select {
		case <-ctx.Done():
			return Result{Status: StatusError, Err: ctx.Err()}
		case now := <-ticker.C:
			raw, err := m.driver.CapturePane(ctx, sessionName, lineCount)
			if err != nil {
				return Result{Status: StatusError, Err: err}
			}
			normalized := normalize(raw)
			h := hash(normalized)

			if first || h != lastHash {
				lastHash = h
				lastChange = now
				lastOutput = raw
				first = false
			} else if now.Sub(lastChange) >= m.cfg.IdleThreshold {
				return Result{
					Status:     StatusComplete,
					Output:     lastOutput,
					DurationMs: time.Since(start).Milliseconds(),
				}
			}

			if time.Since(start) >= m.cfg.Timeout {
				return Result{Status: StatusTimeout, Output: lastOutput, DurationMs: time.Since(start).Milliseconds()}
			}
		}
	}
}

// IsIdle takes two captures PollInterval apart and reports whether they are
// identical once normalized, per the CLI Adapter's isIdle contract.
func (m *Monitor) IsIdle(ctx context.Context, sessionName string, lineCount int) (bool, error) {
	first, err := m.driver.CapturePane(ctx, sessionName, lineCount)
	if err != nil {
		return false, err
	}
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(m.cfg.PollInterval):
	}
	second, err := m.driver.CapturePane(ctx, sessionName, lineCount)
	if err != nil {
		return false, err
	}
	return normalize(first) == normalize(second), nil
}
