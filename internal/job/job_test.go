package job

import (
	"errors"
	"os"
	"strings"
	"testing"
)

func TestParseKindAliases(t *testing.T) {
	for in, want := range map[string]Kind{
		"cut":    KindTrim,
		"concat": KindMerge,
		"BURN":   KindBurnSubtitle,
		"attach": KindAttachSubtitle,
		"frame":  KindExtractFrame,
	} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Fatalf("ParseKind(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseKind("explode"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestFailureMessagesDistinguishOutcomes(t *testing.T) {
	crashed := &NonZeroExitError{Kind: KindMerge, OutputPath: "/out.mp4", ExitCode: 1}
	truncated := &NonZeroExitError{Kind: KindMerge, OutputPath: "/out.mp4", ExitCode: 255, OutputExisted: true, OutputSize: 2048}
	empty := &EmptyOutputError{Kind: KindTrim, OutputPath: "/out.mp4", OutputExisted: true}

	if !strings.Contains(crashed.Error(), "missing") || !strings.Contains(crashed.Error(), "exit code 1") {
		t.Fatalf("crash message: %s", crashed)
	}
	if !strings.Contains(truncated.Error(), "truncated") || !strings.Contains(truncated.Error(), "2.0 kB") {
		t.Fatalf("truncated message: %s", truncated)
	}
	if !strings.Contains(empty.Error(), "empty") || !strings.Contains(empty.Error(), "trim") {
		t.Fatalf("empty message: %s", empty)
	}
}

func TestLaunchErrorUnwraps(t *testing.T) {
	err := error(&LaunchError{Kind: KindTrim, Binary: "ffmpeg", Err: os.ErrNotExist})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatal("LaunchError should unwrap to its cause")
	}
	var le *LaunchError
	if !errors.As(err, &le) || le.Binary != "ffmpeg" {
		t.Fatal("errors.As should find LaunchError")
	}
}

func TestCommandLineQuotesSpaces(t *testing.T) {
	j := Job{Binary: "ffmpeg", Argv: []string{"-i", "my clip.mp4", "out.mp4"}}
	if got := j.CommandLine(); got != `ffmpeg -i "my clip.mp4" out.mp4` {
		t.Fatalf("CommandLine = %s", got)
	}
}
