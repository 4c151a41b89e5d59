// Package browser opens URLs in the user's default web browser.
//
// Launching is best-effort: the launcher command is started and not
// waited for, and failures are reported to the caller, who is expected to
// log them and carry on.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Launcher opens URLs using the platform's opener command.
type Launcher struct {
	goos  string
	start func(name string, args ...string) error
}

// New returns a Launcher for the running platform.
func New() *Launcher {
	return &Launcher{goos: runtime.GOOS, start: startDetached}
}

// Command returns the opener invocation for url on goos.
func Command(goos, url string) (string, []string, error) {
	switch goos {
	case "darwin":
		return "open", []string{url}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}, nil
	case "linux", "freebsd", "netbsd", "openbsd", "dragonfly":
		return "xdg-open", []string{url}, nil
	default:
		return "", nil, fmt.Errorf("opening a browser is not supported on %s", goos)
	}
}

// Open launches the browser for url.
func (l *Launcher) Open(url string) error {
	name, args, err := Command(l.goos, url)
	if err != nil {
		return err
	}
	if err := l.start(name, args...); err != nil {
		return fmt.Errorf("failed to launch %s: %w", name, err)
	}
	return nil
}

// startDetached starts the command and reaps it in the background.
func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
