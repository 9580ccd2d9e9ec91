// Package adapter implements the per-assistant CLI Adapter contract: each
// AI assistant variant gets one adapter instance describing how to spawn
// it, recognize its ready prompt, send it a prompt, and extract its
// response. Differences between variants are small and table-driven;
// adding a new assistant requires only a new Adapter value, never a
// scheduler change.
package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/khuongdo/mindmux/internal/common/errors"
	"github.com/khuongdo/mindmux/internal/monitor"
	"github.com/khuongdo/mindmux/internal/multiplexer"
	v1 "github.com/khuongdo/mindmux/pkg/api/v1"
)

// SpawnOptions are the caller-supplied fields for SpawnProcess.
type SpawnOptions struct {
	WorkDir string
}

// SendOptions are the caller-supplied fields for SendPrompt.
type SendOptions struct {
	Timeout time.Duration
}

// SendResult is returned by SendPrompt.
type SendResult struct {
	Success    bool
	Output     string
	DurationMs int64
	Err        error
}

// Adapter is the per-assistant-variant CLI driving contract.
type Adapter interface {
	// Kind identifies which Agent.Kind this adapter serves.
	Kind() v1.AgentKind

	// Command returns the shell command name the adapter expects on PATH.
	Command() string

	// CheckInstalled reports whether the CLI is installed, together with a
	// human install hint.
	CheckInstalled() (bool, string)

	// SpawnProcess builds the vendor-specific invocation, sends it through
	// the driver, then waits for the variant's ready prompt to stabilize.
	SpawnProcess(ctx context.Context, sessionName string, opts SpawnOptions) error

	// SendPrompt snapshots the pane, sends prompt, waits for completion, and
	// returns only the text that is new relative to the snapshot.
	SendPrompt(ctx context.Context, sessionName, prompt string, opts SendOptions) SendResult

	// IsIdle reports whether the session currently has no in-flight output.
	IsIdle(ctx context.Context, sessionName string) (bool, error)

	// Terminate sends the variant's quit token and waits briefly for a
	// graceful exit.
	Terminate(ctx context.Context, sessionName string) error
}

// variant is the shared Adapter implementation, parameterized per assistant
// so that adding a new CLI only requires a new variant literal (see
// claude.go, gemini.go, gpt4.go, opencode.go) rather than new code.
type variant struct {
	kind            v1.AgentKind
	command         string
	installHint     string
	launchArgs      []string
	readyPattern    string // substring that marks the CLI's prompt as ready
	quitToken       string // e.g. "/exit"; empty means send Ctrl-C
	heredocMinLines int    // prompts with more lines than this use a heredoc

	driver  multiplexer.Driver
	monitor *monitor.Monitor
}

// Kind implements Adapter.
func (v *variant) Kind() v1.AgentKind { return v.kind }

// Command implements Adapter.
func (v *variant) Command() string { return v.command }

// CheckInstalled implements Adapter. It does not probe PATH: it always
// reports true, together with the variant's install hint.
func (v *variant) CheckInstalled() (bool, string) {
	return true, v.installHint
}

// SpawnProcess implements Adapter.
func (v *variant) SpawnProcess(ctx context.Context, sessionName string, opts SpawnOptions) error {
	cmd := v.command
	if len(v.launchArgs) > 0 {
		cmd = fmt.Sprintf("%s %s", v.command, strings.Join(v.launchArgs, " "))
	}
	if opts.WorkDir != "" {
		cmd = fmt.Sprintf("cd %s && %s", shellQuote(opts.WorkDir), cmd)
	}

	if err := v.driver.SendKeystrokes(ctx, sessionName, cmd); err != nil {
		return apperrors.Wrap(err, "failed to spawn CLI process")
	}

	result := v.monitor.Wait(ctx, sessionName, 200)
	switch result.Status {
	case monitor.StatusComplete:
		return nil
	case monitor.StatusTimeout:
		return apperrors.Timeout(fmt.Sprintf("%s did not become ready in time", v.command))
	default:
		return apperrors.Internal("failed to observe readiness", result.Err)
	}
}

// SendPrompt implements Adapter.
func (v *variant) SendPrompt(ctx context.Context, sessionName, prompt string, opts SendOptions) SendResult {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	snapshot, err := v.driver.CapturePane(sendCtx, sessionName, 2000)
	if err != nil {
		return SendResult{Err: apperrors.Wrap(err, "failed to snapshot pane")}
	}

	encoded := v.encodePrompt(prompt)
	if err := v.driver.SendKeystrokes(sendCtx, sessionName, encoded); err != nil {
		return SendResult{Err: apperrors.Wrap(err, "failed to send prompt")}
	}

	result := v.monitor.Wait(sendCtx, sessionName, 2000)
	switch result.Status {
	case monitor.StatusComplete:
		return SendResult{
			Success:    true,
			Output:     diffSnapshot(snapshot, result.Output),
			DurationMs: result.DurationMs,
		}
	case monitor.StatusTimeout:
		return SendResult{
			DurationMs: result.DurationMs,
			Err:        apperrors.Timeout("prompt execution timed out"),
		}
	default:
		return SendResult{Err: apperrors.Internal("failed to observe completion", result.Err)}
	}
}

// encodePrompt escapes a single-line prompt's shell metacharacters, or
// wraps a multi-line prompt in a heredoc marker so the multiplexer driver
// can send it as one literal block.
func (v *variant) encodePrompt(prompt string) string {
	lines := strings.Count(prompt, "\n") + 1
	if lines <= v.heredocMinLines {
		return escapeShellMetacharacters(prompt)
	}
	const marker = "MINDMUX_EOF"
	return fmt.Sprintf("cat <<'%s'\n%s\n%s", marker, prompt, marker)
}

// shellMetacharacters are the runes escapeShellMetacharacters backslash-escapes.
const shellMetacharacters = "\\\"'`$&|;<>(){}*?[]~!#"

// escapeShellMetacharacters backslash-escapes every shell metacharacter in s,
// so a single-line prompt typed into a session can never be reinterpreted
// as a shell command or control sequence.
func escapeShellMetacharacters(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(shellMetacharacters, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsIdle implements Adapter.
func (v *variant) IsIdle(ctx context.Context, sessionName string) (bool, error) {
	return v.monitor.IsIdle(ctx, sessionName, 200)
}

// Terminate implements Adapter.
func (v *variant) Terminate(ctx context.Context, sessionName string) error {
	if v.quitToken != "" {
		if err := v.driver.SendKeystrokes(ctx, sessionName, v.quitToken); err != nil {
			return apperrors.Wrap(err, "failed to send quit token")
		}
	} else if err := v.driver.SendInterrupt(ctx, sessionName); err != nil {
		return apperrors.Wrap(err, "failed to send interrupt")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(1 * time.Second):
	}
	return nil
}

// diffSnapshot returns the suffix of full that is new relative to snapshot.
func diffSnapshot(snapshot, full string) string {
	if strings.HasPrefix(full, snapshot) {
		return full[len(snapshot):]
	}
	// Pane scrolled past the snapshot window; return everything captured.
	return full
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
