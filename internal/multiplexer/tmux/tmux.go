// Package tmux drives a local tmux installation as the default Multiplexer
// Driver implementation: every operation shells out to the tmux binary via
// os/exec and scrapes its plain-text output. No idiomatic Go tmux control
// library exists; this component's use of os/exec (rather than a
// third-party client) is a deliberate, justified exception to the
// prefer-a-library rule.
package tmux

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	apperrors "github.com/khuongdo/mindmux/internal/common/errors"
	"github.com/khuongdo/mindmux/internal/common/logger"
	"github.com/khuongdo/mindmux/internal/multiplexer"
	"go.uber.org/zap"
)

// Driver drives sessions hosted by a local tmux server.
type Driver struct {
	binary string
	prefix string
	log    *logger.Logger
}

var _ multiplexer.Driver = (*Driver)(nil)

// New creates a tmux-backed Driver. binary is the tmux executable name or
// path (defaults to "tmux"); prefix scopes ListSessions to names owned by
// this system.
func New(binary, prefix string, log *logger.Logger) *Driver {
	if binary == "" {
		binary = "tmux"
	}
	return &Driver{binary: binary, prefix: prefix, log: log.WithComponent("tmux-driver")}
}

// CheckInstalled reports whether the tmux binary is reachable on PATH.
func (d *Driver) CheckInstalled() error {
	if _, err := exec.LookPath(d.binary); err != nil {
		return apperrors.Unavailable("tmux")
	}
	return nil
}

func (d *Driver) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, d.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		if _, ok := err.(*exec.Error); ok {
			return "", apperrors.Unavailable("tmux")
		}
		return stdout.String(), fmt.Errorf("%s: %w", strings.TrimSpace(stderr.String()), err)
	}
	return stdout.String(), nil
}

// CreateSession implements multiplexer.Driver.
func (d *Driver) CreateSession(ctx context.Context, name, initialShell, cwd string) error {
	if err := multiplexer.SanitizeSessionName(name); err != nil {
		return err
	}
	exists, err := d.HasSession(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return apperrors.AlreadyInUse(fmt.Sprintf("session %q already exists", name))
	}

	args := []string{"new-session", "-d", "-s", name}
	if cwd != "" {
		args = append(args, "-c", cwd)
	}
	if initialShell != "" {
		args = append(args, initialShell)
	}
	if _, err := d.run(ctx, args...); err != nil {
		return apperrors.Internal("failed to create tmux session", err)
	}
	d.log.Info("created session", zap.String("session", name))
	return nil
}

// HasSession implements multiplexer.Driver.
func (d *Driver) HasSession(ctx context.Context, name string) (bool, error) {
	if err := multiplexer.SanitizeSessionName(name); err != nil {
		return false, err
	}
	cmd := exec.CommandContext(ctx, d.binary, "has-session", "-t", name)
	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return false, nil
		}
		return false, apperrors.Unavailable("tmux")
	}
	return true, nil
}

// ListSessions implements multiplexer.Driver.
func (d *Driver) ListSessions(ctx context.Context) ([]string, error) {
	out, err := d.run(ctx, "list-sessions", "-F", "#{session_name}")
	if err != nil {
		if strings.Contains(err.Error(), "no server running") {
			return nil, nil
		}
		return nil, apperrors.Internal("failed to list tmux sessions", err)
	}
	var names []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		if d.prefix == "" || strings.HasPrefix(line, d.prefix+"-") {
			names = append(names, line)
		}
	}
	return names, nil
}

// SendKeystrokes implements multiplexer.Driver. Text is sent with tmux's
// literal flag (-l) so that shell and tmux control sequences embedded in
// it are never interpreted, then Enter is sent as a separate key.
func (d *Driver) SendKeystrokes(ctx context.Context, name, text string) error {
	if err := multiplexer.SanitizeSessionName(name); err != nil {
		return err
	}
	if _, err := d.run(ctx, "send-keys", "-t", name, "-l", "--", text); err != nil {
		return apperrors.Internal("failed to send keystrokes", err)
	}
	if _, err := d.run(ctx, "send-keys", "-t", name, "Enter"); err != nil {
		return apperrors.Internal("failed to send Enter", err)
	}
	return nil
}

// CapturePane implements multiplexer.Driver.
func (d *Driver) CapturePane(ctx context.Context, name string, lineCount int) (string, error) {
	if err := multiplexer.SanitizeSessionName(name); err != nil {
		return "", err
	}
	if lineCount <= 0 {
		lineCount = 200
	}
	out, err := d.run(ctx, "capture-pane", "-t", name, "-p", "-S", "-"+strconv.Itoa(lineCount))
	if err != nil {
		return "", apperrors.Internal("failed to capture pane", err)
	}
	return out, nil
}

// SendInterrupt implements multiplexer.Driver by sending tmux's native C-c
// key name (not the -l literal flag used by SendKeystrokes), so the pane's
// foreground process receives an actual SIGINT rather than the two-character
// string "C-c".
func (d *Driver) SendInterrupt(ctx context.Context, name string) error {
	if err := multiplexer.SanitizeSessionName(name); err != nil {
		return err
	}
	if _, err := d.run(ctx, "send-keys", "-t", name, "C-c"); err != nil {
		return apperrors.Internal("failed to send interrupt", err)
	}
	return nil
}

// KillSession implements multiplexer.Driver. Idempotent: killing a session
// that does not exist returns nil.
func (d *Driver) KillSession(ctx context.Context, name string) error {
	if err := multiplexer.SanitizeSessionName(name); err != nil {
		return err
	}
	exists, err := d.HasSession(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if _, err := d.run(ctx, "kill-session", "-t", name); err != nil {
		return apperrors.Internal("failed to kill tmux session", err)
	}
	d.log.Info("killed session", zap.String("session", name))
	return nil
}
