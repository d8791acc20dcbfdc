package relay

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

const testPushDuration = 2 * time.Second

// TestDestination validates url and pushes a short synthetic pattern to it,
// proving reachability without touching any live job. The push is bounded:
// the process gets killed once the deadline passes.
func TestDestination(rawURL string, cfg Config) error {
	if err := CheckDestinationURL(rawURL); err != nil {
		return err
	}

	seconds := fmt.Sprintf("%d", int(testPushDuration.Seconds()))
	stream := ffmpeg.Output(placeholderInputs(), rawURL, ffmpeg.KwArgs{
		"t":       seconds,
		"c:v":     "libx264",
		"preset":  "ultrafast",
		"tune":    "zerolatency",
		"pix_fmt": "yuv420p",
		"c:a":     "aac",
		"f":       outputFormat(rawURL),
	}).GlobalArgs("-hide_banner", "-nostdin", "-loglevel", "error").OverWriteOutput()

	bin := cfg.FFmpegBinary
	if bin == "" {
		bin = "ffmpeg"
	}
	ctx, cancel := context.WithTimeout(context.Background(), testPushDuration+cfg.GracePeriod)
	defer cancel()
	cmd := exec.CommandContext(ctx, bin, stream.GetArgs()...)
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("destination test timed out after %s", testPushDuration+cfg.GracePeriod)
	}
	if err != nil {
		detail := lastLine(string(out))
		if detail != "" {
			return fmt.Errorf("destination unreachable: %s", detail)
		}
		return fmt.Errorf("destination unreachable: %v", err)
	}
	return nil
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
