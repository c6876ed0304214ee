package version

import (
	"strings"
	"testing"
)

func TestVersionDefault(t *testing.T) {
	if Version == "" {
		t.Error("Version should have a default value")
	}
}

func TestStringIncludesMetadata(t *testing.T) {
	origCommit, origDate := GitCommit, BuildDate
	defer func() {
		GitCommit, BuildDate = origCommit, origDate
	}()

	GitCommit = ""
	BuildDate = ""
	if got := String(); got != Version {
		t.Errorf("bare String() = %q, want just the version", got)
	}

	GitCommit = "abc123"
	BuildDate = "2026-01-15T10:30:00Z"
	got := String()
	if !strings.Contains(got, "abc123") || !strings.Contains(got, "2026-01-15") {
		t.Errorf("String() = %q, want commit and date included", got)
	}
}
