package monitor

import (
	"context"
	"sync"
	"testing"
	"time"
)

// scriptedDriver plays back a fixed sequence of pane captures, one per call
// to CapturePane, repeating the last entry once exhausted.
type scriptedDriver struct {
	mu     sync.Mutex
	frames []string
	calls  int
}

func (d *scriptedDriver) CapturePane(ctx context.Context, name string, lineCount int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx := d.calls
	if idx >= len(d.frames) {
		idx = len(d.frames) - 1
	}
	d.calls++
	return d.frames[idx], nil
}
func (d *scriptedDriver) CreateSession(ctx context.Context, name, initialShell, cwd string) error {
	return nil
}
func (d *scriptedDriver) HasSession(ctx context.Context, name string) (bool, error) { return true, nil }
func (d *scriptedDriver) ListSessions(ctx context.Context) ([]string, error)        { return nil, nil }
func (d *scriptedDriver) SendKeystrokes(ctx context.Context, name, text string) error {
	return nil
}
func (d *scriptedDriver) KillSession(ctx context.Context, name string) error    { return nil }
func (d *scriptedDriver) SendInterrupt(ctx context.Context, name string) error { return nil }

func TestWaitReturnsCompleteOnceHashStable(t *testing.T) {
	d := &scriptedDriver{frames: []string{"a", "a", "a", "a", "a", "a"}}
	m := New(d, Config{PollInterval: 10 * time.Millisecond, IdleThreshold: 25 * time.Millisecond, Timeout: time.Second})

	result := m.Wait(context.Background(), "sess", 200)
	if result.Status != StatusComplete {
		t.Fatalf("expected StatusComplete, got %s (err=%v)", result.Status, result.Err)
	}
	if result.Output != "a" {
		t.Fatalf("expected output %q, got %q", "a", result.Output)
	}
}

func TestWaitTimesOutOnContinuouslyChangingOutput(t *testing.T) {
	frames := make([]string, 50)
	for i := range frames {
		frames[i] = string(rune('a' + i%10))
	}
	d := &scriptedDriver{frames: frames}
	m := New(d, Config{PollInterval: 5 * time.Millisecond, IdleThreshold: 5 * time.Second, Timeout: 40 * time.Millisecond})

	result := m.Wait(context.Background(), "sess", 200)
	if result.Status != StatusTimeout {
		t.Fatalf("expected StatusTimeout, got %s", result.Status)
	}
}

func TestNormalizeStripsANSIAndTrailingWhitespace(t *testing.T) {
	raw := "\x1b[1mhello\x1b[0m   \nworld  \n\n"
	got := normalize(raw)
	want := "hello\nworld"
	if got != want {
		t.Fatalf("normalize(%q) = %q, want %q", raw, got, want)
	}
}

func TestIsIdleComparesTwoCapturesApart(t *testing.T) {
	d := &scriptedDriver{frames: []string{"same", "same"}}
	m := New(d, Config{PollInterval: 5 * time.Millisecond, IdleThreshold: time.Second, Timeout: time.Second})
	idle, err := m.IsIdle(context.Background(), "sess", 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !idle {
		t.Fatal("expected two identical captures to report idle")
	}
}
