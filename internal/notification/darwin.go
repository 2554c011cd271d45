package notification

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/dooshek/candleblow/internal/logger"
)

type darwinNotifier struct{}

func newDarwinNotifier() platformNotifier {
	return &darwinNotifier{}
}

// quoteAppleScript escapes s for use inside an AppleScript string literal.
func quoteAppleScript(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func (n *darwinNotifier) send(title, message string) error {
	logger.Debugf("Sending macOS notification: %s - %s", title, message)
	script := fmt.Sprintf(`display notification "%s" with title "%s"`,
		quoteAppleScript(message), quoteAppleScript(title))
	cmd := exec.Command("osascript", "-e", script)
	if err := cmd.Run(); err != nil {
		logger.Errorf("Failed to send macOS notification", err)
		return err
	}
	logger.Debug("Successfully sent macOS notification")
	return nil
}

func (n *darwinNotifier) play(path string) error {
	go func() {
		if err := exec.Command("afplay", path).Run(); err != nil {
			logger.Errorf("Failed to play %s", err, path)
		}
	}()
	return nil
}

func (n *darwinNotifier) playOnce(ctx context.Context, path string, volume float64) error {
	return exec.CommandContext(ctx, "afplay", "-v", fmt.Sprintf("%.2f", volume), path).Run()
}
