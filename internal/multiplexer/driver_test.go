package multiplexer

import "testing"

func TestSanitizeSessionNameAcceptsWhitelistedCharacters(t *testing.T) {
	for _, name := range []string{"mindmux-abc123", "a", "A_B-C:D%E"} {
		if err := SanitizeSessionName(name); err != nil {
			t.Errorf("expected %q to be accepted, got error: %v", name, err)
		}
	}
}

func TestSanitizeSessionNameRejectsShellMetacharacters(t *testing.T) {
	for _, name := range []string{"", "mindmux; rm -rf /", "foo$(whoami)", "foo/../bar", "foo bar"} {
		if err := SanitizeSessionName(name); err == nil {
			t.Errorf("expected %q to be rejected", name)
		}
	}
}

func TestSanitizeSessionNameRejectsOverLength(t *testing.T) {
	long := make([]byte, MaxSessionNameLength+1)
	for i := range long {
		long[i] = 'a'
	}
	if err := SanitizeSessionName(string(long)); err == nil {
		t.Fatal("expected a session name over the length bound to be rejected")
	}
}
