package shared

import (
	"fmt"
	"os/exec"
	"runtime"
)

var getRuntime = func() string { return runtime.GOOS }

var launchers = map[string][]string{
	"darwin":  {"open"},
	"linux":   {"xdg-open"},
	"freebsd": {"xdg-open"},
	"windows": {"rundll32", "url.dll,FileProtocolHandler"},
}

// browserCommand returns the launcher invocation for the current platform.
func browserCommand(url string) (string, []string, error) {
	rt := getRuntime()
	launcher, ok := launchers[rt]
	if !ok {
		return "", nil, fmt.Errorf("unsupported platform: %s", rt)
	}
	args := append(append([]string{}, launcher[1:]...), url)
	return launcher[0], args, nil
}

// OpenBrowser starts the system browser on url without waiting for it to exit.
//
// Callers should print the URL as a fallback when this fails (headless hosts, containers).
func OpenBrowser(url string) error {
	name, args, err := browserCommand(url)
	if err != nil {
		return err
	}

	if err := exec.Command(name, args...).Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
