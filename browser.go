package runfiles

import (
	"os"
	"os/exec"
	"runtime"

	"github.com/pkg/browser"
	"go.uber.org/zap"
)

func init() {
	// stdout carries the readiness line and nothing else.
	browser.Stdout = os.Stderr
}

// launchBrowser opens url in the user's browser. Failures are never fatal:
// pkg/browser is tried first, then the platform's open command, and if both
// fail the problem is only logged.
func launchBrowser(logger *zap.Logger, url string) {
	err := browser.OpenURL(url)
	if err == nil {
		return
	}
	logger.Debug("browser launch failed, falling back to OS open command",
		zap.String("url", url),
		zap.Error(err))

	if err := openWithOS(url); err != nil {
		logger.Warn("could not launch browser",
			zap.String("url", url),
			zap.Error(err))
	}
}

func openWithOS(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
