package sandbox

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/khuongdo/mindmux/internal/common/errors"
	"github.com/khuongdo/mindmux/internal/common/logger"
	"github.com/khuongdo/mindmux/internal/multiplexer"
)

// Driver is a Multiplexer Driver that hosts each session's tmux server
// inside a disposable Docker container instead of on the host, giving
// untrusted CLI agents a throwaway filesystem. The tmux session naming
// convention (<prefix>-<agentID>) is unchanged; only where it runs differs.
type Driver struct {
	client *Client
	image  string
	log    *logger.Logger
}

var _ multiplexer.Driver = (*Driver)(nil)

// New creates a Docker-sandboxed Driver. image is the container image that
// provides a tmux binary and whatever CLI tools the adapters expect.
func New(client *Client, image string, log *logger.Logger) *Driver {
	return &Driver{client: client, image: image, log: log.WithComponent("sandbox-driver")}
}

// agentIDFromSession recovers the agent id from the <prefix>-<agentID>
// session naming convention shared with the tmux driver.
func agentIDFromSession(name string) string {
	idx := strings.IndexByte(name, '-')
	if idx < 0 {
		return name
	}
	return name[idx+1:]
}

func (d *Driver) execTmux(ctx context.Context, name string, args ...string) (string, error) {
	if err := multiplexer.SanitizeSessionName(name); err != nil {
		return "", err
	}
	agentID := agentIDFromSession(name)
	argv := append([]string{"tmux"}, args...)
	out, err := d.client.Exec(ctx, agentID, argv)
	if err != nil {
		return "", apperrors.Internal("sandboxed tmux exec failed", err)
	}
	return out, nil
}

// CreateSession implements multiplexer.Driver.
func (d *Driver) CreateSession(ctx context.Context, name, initialShell, cwd string) error {
	if err := multiplexer.SanitizeSessionName(name); err != nil {
		return err
	}
	agentID := agentIDFromSession(name)
	if _, err := d.client.EnsureAgentContainer(ctx, agentID, d.image); err != nil {
		return apperrors.Internal("failed to provision sandbox container", err)
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
	_, err = d.execTmux(ctx, name, args...)
	return err
}

// HasSession implements multiplexer.Driver.
func (d *Driver) HasSession(ctx context.Context, name string) (bool, error) {
	out, err := d.execTmux(ctx, name, "has-session", "-t", name)
	if err != nil {
		return false, nil
	}
	_ = out
	return true, nil
}

// ListSessions implements multiplexer.Driver. It returns every tmux session
// inside the running managed containers; the names are not filtered by the
// session prefix.
func (d *Driver) ListSessions(ctx context.Context) ([]string, error) {
	containers, err := d.client.ListManaged(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to list sandbox containers", err)
	}
	var names []string
	for _, c := range containers {
		if c.State != "running" {
			continue
		}
		out, err := d.client.Exec(ctx, c.AgentID, []string{"tmux", "list-sessions", "-F", "#{session_name}"})
		if err != nil {
			continue
		}
		for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
			if line != "" {
				names = append(names, line)
			}
		}
	}
	return names, nil
}

// SendKeystrokes implements multiplexer.Driver.
func (d *Driver) SendKeystrokes(ctx context.Context, name, text string) error {
	if _, err := d.execTmux(ctx, name, "send-keys", "-t", name, "-l", "--", text); err != nil {
		return err
	}
	_, err := d.execTmux(ctx, name, "send-keys", "-t", name, "Enter")
	return err
}

// CapturePane implements multiplexer.Driver.
func (d *Driver) CapturePane(ctx context.Context, name string, lineCount int) (string, error) {
	if lineCount <= 0 {
		lineCount = 200
	}
	return d.execTmux(ctx, name, "capture-pane", "-t", name, "-p", "-S", "-"+strconv.Itoa(lineCount))
}

// SendInterrupt implements multiplexer.Driver, mirroring the tmux driver:
// the key name "C-c" is passed to tmux send-keys without the -l literal
// flag so it is delivered as an actual interrupt.
func (d *Driver) SendInterrupt(ctx context.Context, name string) error {
	_, err := d.execTmux(ctx, name, "send-keys", "-t", name, "C-c")
	return err
}

// KillSession implements multiplexer.Driver. Idempotent, and tears down the
// agent's sandbox container once its last session is gone.
func (d *Driver) KillSession(ctx context.Context, name string) error {
	exists, err := d.HasSession(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if _, err := d.execTmux(ctx, name, "kill-session", "-t", name); err != nil {
		return err
	}

	agentID := agentIDFromSession(name)
	remaining, err := d.client.Exec(ctx, agentID, []string{"tmux", "list-sessions", "-F", "#{session_name}"})
	if err != nil || strings.TrimSpace(remaining) == "" {
		_ = d.client.RemoveAgentContainer(ctx, agentID)
	}
	return nil
}
