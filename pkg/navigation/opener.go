package navigation

import (
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"runtime"

	"hostbridge/pkg/logger"
)

// SystemOpener opens URIs with the desktop's default handler.
type SystemOpener struct {
	goos string
	log  *slog.Logger
}

func NewSystemOpener(log *slog.Logger) *SystemOpener {
	return &SystemOpener{
		goos: runtime.GOOS,
		log:  logger.Component(log, "navigation.opener"),
	}
}

// Open starts the platform opener detached from the host. Its output is not
// captured and it is reaped in the background.
func (o *SystemOpener) Open(target *url.URL) error {
	name, args := openCommand(o.goos, target.String())

	cmd := exec.Command(name, args...)
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			o.log.Debug("External opener exited with error", "command", name, "error", err)
		}
	}()

	return nil
}

func openCommand(goos string, target string) (string, []string) {
	switch goos {
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}
	case "darwin":
		return "open", []string{target}
	default:
		return "xdg-open", []string{target}
	}
}
