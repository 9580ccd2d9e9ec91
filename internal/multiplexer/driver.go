// Package multiplexer abstracts the terminal multiplexer that hosts each
// agent's interactive CLI session. The only strict contract callers may
// depend on is that session names are addressable, pane contents are
// capturable, and keystrokes are injectable; the primary implementation is
// tmux, but the abstraction allows substituting a fake for tests or, in
// principle, another multiplexer.
package multiplexer

import (
	"context"
	"regexp"

	apperrors "github.com/khuongdo/mindmux/internal/common/errors"
)

// MaxSessionNameLength bounds any session name accepted from a caller.
const MaxSessionNameLength = 200

var sessionNamePattern = regexp.MustCompile(`^[A-Za-z0-9_%:-]+$`)

// SanitizeSessionName validates name against the multiplexer's session-name
// whitelist and length bound, returning a Validation AppError on failure.
func SanitizeSessionName(name string) error {
	if name == "" {
		return apperrors.Validation("sessionName", "must not be empty")
	}
	if len(name) > MaxSessionNameLength {
		return apperrors.Validation("sessionName", "exceeds maximum length")
	}
	if !sessionNamePattern.MatchString(name) {
		return apperrors.Validation("sessionName", "contains characters outside [A-Za-z0-9_%:-]")
	}
	return nil
}

// Driver is the abstraction over a terminal multiplexer. All implementations
// must treat names as opaque addressable strings and never interpret pane
// text beyond what CapturePane returns verbatim.
type Driver interface {
	// CreateSession starts a new named session running initialShell in cwd
	// (if non-empty). It fails with ALREADY_IN_USE if name already exists.
	CreateSession(ctx context.Context, name, initialShell, cwd string) error

	// HasSession reports whether a session with the given name is live.
	HasSession(ctx context.Context, name string) (bool, error)

	// ListSessions returns the names of all live sessions belonging to this
	// system, filtered to the configured name prefix.
	ListSessions(ctx context.Context) ([]string, error)

	// SendKeystrokes appends text followed by a newline to the session's
	// active pane. Implementations must escape text against injection of
	// multiplexer or shell control sequences.
	SendKeystrokes(ctx context.Context, name, text string) error

	// CapturePane returns the most recent lineCount lines of the session's
	// active pane, verbatim as the multiplexer prints it. Both drivers run
	// tmux capture-pane without -e, so the text carries no ANSI sequences.
	CapturePane(ctx context.Context, name string, lineCount int) (string, error)

	// KillSession terminates a session. It is idempotent: killing a session
	// that does not exist is a no-op success.
	KillSession(ctx context.Context, name string) error

	// SendInterrupt sends the session's active pane a Ctrl-C key signal,
	// distinct from SendKeystrokes: implementations must deliver this as
	// the multiplexer's native key name, never as literal text.
	SendInterrupt(ctx context.Context, name string) error
}
