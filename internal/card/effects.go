package card

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Speaker reads text aloud. Speak blocks until playback ends or ctx is
// cancelled; cancelling must stop the audio.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Clipboard writes text to the system clipboard.
type Clipboard interface {
	Copy(ctx context.Context, text string) error
}

// ExecSpeaker speaks through an external text-to-speech program. The text is
// passed as the final argument.
type ExecSpeaker struct {
	Command []string
}

// NewExecSpeaker returns a speaker running command, or the platform default
// (say on macOS, espeak elsewhere) when command is empty.
func NewExecSpeaker(command []string) *ExecSpeaker {
	if len(command) == 0 {
		command = DefaultSpeechCommand()
	}
	return &ExecSpeaker{Command: command}
}

// DefaultSpeechCommand returns the text-to-speech program for this platform.
func DefaultSpeechCommand() []string {
	if runtime.GOOS == "darwin" {
		return []string{"say"}
	}
	return []string{"espeak"}
}

// Speak implements Speaker.
func (s *ExecSpeaker) Speak(ctx context.Context, text string) error {
	if len(s.Command) == 0 {
		return fmt.Errorf("no speech command configured")
	}
	args := append(append([]string(nil), s.Command[1:]...), text)
	return exec.CommandContext(ctx, s.Command[0], args...).Run()
}

// ExecClipboard copies by piping text into an external program.
type ExecClipboard struct {
	Command []string
}

// NewExecClipboard returns a clipboard running command, or the platform
// default when command is empty.
func NewExecClipboard(command []string) *ExecClipboard {
	if len(command) == 0 {
		command = DefaultClipboardCommand()
	}
	return &ExecClipboard{Command: command}
}

// DefaultClipboardCommand picks pbcopy, clip, wl-copy or xclip.
func DefaultClipboardCommand() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"pbcopy"}
	case "windows":
		return []string{"clip"}
	}
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		return []string{"wl-copy"}
	}
	return []string{"xclip", "-selection", "clipboard"}
}

// Copy implements Clipboard.
func (c *ExecClipboard) Copy(ctx context.Context, text string) error {
	if len(c.Command) == 0 {
		return fmt.Errorf("no clipboard command configured")
	}
	cmd := exec.CommandContext(ctx, c.Command[0], c.Command[1:]...)
	cmd.Stdin = strings.NewReader(text)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", c.Command[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
