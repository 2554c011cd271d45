package notification

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/dooshek/candleblow/internal/logger"
)

type linuxNotifier struct{}

func newLinuxNotifier() platformNotifier {
	return &linuxNotifier{}
}

func (n *linuxNotifier) send(title, message string) error {
	logger.Debugf("Sending notification: %s - %s", title, message)
	go func() {
		if err := exec.Command("notify-send", title, message).Run(); err != nil {
			logger.Errorf("Failed to send notification", err)
		}
	}()
	return nil
}

func (n *linuxNotifier) play(path string) error {
	go func() {
		if err := exec.Command("paplay", path).Run(); err != nil {
			logger.Errorf("Failed to play %s", err, path)
		}
	}()
	return nil
}

// paplay volume is linear, 65536 being 100%
func (n *linuxNotifier) playOnce(ctx context.Context, path string, volume float64) error {
	return exec.CommandContext(ctx, "paplay", fmt.Sprintf("--volume=%d", int(volume*65536)), path).Run()
}
