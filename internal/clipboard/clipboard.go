package clipboard

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/dooshek/candleblow/internal/logger"
	"github.com/go-vgo/robotgo"
)

var (
	writeAll = robotgo.WriteAll
	runCopy  = copyWithCommand
)

// Copy copies text to the system clipboard. robotgo is tried
// first; xclip or pbcopy serve when it has no usable backend.
func Copy(text string) error {
	logger.Debugf("clipboard: Copy: %s", text)

	err := writeAll(text)
	if err == nil {
		return nil
	}
	logger.Debugf("clipboard: robotgo failed, trying command fallback: %v", err)

	if ferr := runCopy(text); ferr != nil {
		return fmt.Errorf("failed to copy to clipboard: %w", errors.Join(err, ferr))
	}
	return nil
}

func copyWithCommand(text string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	default:
		if _, err := exec.LookPath("xclip"); err != nil {
			return errors.New("xclip is not installed")
		}
		cmd = exec.Command("xclip", "-selection", "clipboard")
	}
	cmd.Stdin = strings.NewReader(text)
	return cmd.Run()
}
