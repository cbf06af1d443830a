package audio

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scopevoice/internal/domain"
	"scopevoice/internal/ports"
)

func TestFFMPEGCaptureStartReadAndStop(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nprintf 'hello'\nsleep 2\n")
	capture := NewFFMPEGCapture(script)

	session, err := capture.Start(context.Background(), ports.AudioConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	buf := make([]byte, 8)
	n, readErr := session.Read(buf)
	if n <= 0 {
		t.Fatalf("expected audio bytes, got n=%d err=%v", n, readErr)
	}
	if !strings.Contains(string(buf[:n]), "hello") {
		t.Fatalf("unexpected bytes: %q", string(buf[:n]))
	}

	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}

func TestFFMPEGCaptureStartEarlyExit(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'boom' 1>&2\nexit 1\n")
	capture := NewFFMPEGCapture(script)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := capture.Start(ctx, ports.AudioConfig{})
	if err == nil {
		t.Fatalf("expected early exit error")
	}
	if !strings.Contains(err.Error(), "exited before capture started") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFFMPEGCaptureStartPermissionDenied(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "denied.sh", "#!/usr/bin/env bash\necho 'default: Permission denied' 1>&2\nexit 1\n")
	capture := NewFFMPEGCapture(script)

	_, err := capture.Start(context.Background(), ports.AudioConfig{})
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestCaptureArgsDefaults(t *testing.T) {
	t.Parallel()

	args := strings.Join(captureArgs(ports.AudioConfig{}), " ")
	for _, want := range []string{"-f pulse", "-i default", "-ac 1", "-ar 16000", "-f s16le"} {
		if !strings.Contains(args, want) {
			t.Fatalf("expected %q in args: %s", want, args)
		}
	}

	args = strings.Join(captureArgs(ports.AudioConfig{SampleRate: 48000, Channels: 2, InputFormat: "alsa", InputDevice: "hw:1"}), " ")
	if !strings.Contains(args, "-f alsa -i hw:1 -ac 2 -ar 48000") {
		t.Fatalf("unexpected args: %s", args)
	}
}

func TestFFPlayPlayerPlaysStdin(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "played.bin")
	script := writeScript(t, "player.sh", "#!/usr/bin/env bash\ncat > "+out+"\n")
	player := NewFFPlayPlayer(script)

	if err := player.Unlock(context.Background()); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if err := player.Play(context.Background(), bytes.NewReader([]byte("mp3-bytes"))); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read played output: %v", err)
	}
	if string(data) != "mp3-bytes" {
		t.Fatalf("unexpected played bytes: %q", string(data))
	}
}

func TestFFPlayPlayerReportsFailure(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "broken.sh", "#!/usr/bin/env bash\ncat >/dev/null\necho 'no device' 1>&2\nexit 3\n")
	player := NewFFPlayPlayer(script)

	err := player.Play(context.Background(), strings.NewReader("x"))
	if err == nil || !strings.Contains(err.Error(), "no device") {
		t.Fatalf("expected playback failure with stderr, got %v", err)
	}
}

func TestFFPlayPlayerUnlockMissingBinary(t *testing.T) {
	t.Parallel()

	player := NewFFPlayPlayer(filepath.Join(t.TempDir(), "missing-ffplay"))
	if err := player.Unlock(context.Background()); err == nil {
		t.Fatalf("expected unlock error for missing binary")
	}
}

func TestFFPlayPlayerCancelled(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "slow.sh", "#!/usr/bin/env bash\nsleep 5\n")
	player := NewFFPlayPlayer(script)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := player.Play(ctx, strings.NewReader("x"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestNormalizeStopErrExitErrorIsIgnored(t *testing.T) {
	t.Parallel()

	err := exec.Command("bash", "-lc", "exit 1").Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if got := normalizeStopErr(err); got != nil {
		t.Fatalf("expected nil for exit error, got %v", got)
	}
}

func TestStderrTailKeepsLastBytes(t *testing.T) {
	t.Parallel()

	tail := &stderrTail{}
	_, _ = tail.Write([]byte(strings.Repeat("a", stderrTailLimit)))
	_, _ = tail.Write([]byte("  end\n"))
	got := tail.String()
	if !strings.HasSuffix(got, "end") {
		t.Fatalf("expected tail to keep newest output, got suffix %q", got[len(got)-5:])
	}
	if len(got) > stderrTailLimit {
		t.Fatalf("expected tail to be bounded, got %d bytes", len(got))
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}
