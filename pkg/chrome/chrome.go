package chrome

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
)

var ErrNotFound = errors.New("chrome: browser not found, install Google Chrome or Chromium or set CHROME_PATH")

// knownPaths lists where Chrome usually lives on each system.
var knownPaths = map[string][]string{
	"linux": {
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	},
	"darwin": {
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		"/Applications/Chromium.app/Contents/MacOS/Chromium",
	},
	"windows": {
		"C:\\Program Files\\Google\\Chrome\\Application\\chrome.exe",
		"C:\\Program Files (x86)\\Google\\Chrome\\Application\\chrome.exe",
	},
}

var pathNames = []string{"google-chrome", "google-chrome-stable", "chromium-browser", "chromium", "chrome"}

// Find returns the Chrome executable to launch. A configured path wins when
// it exists; otherwise the usual install locations and PATH are searched.
func Find(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", errors.Join(ErrNotFound, err)
		}
		return configured, nil
	}
	return search(knownPaths[runtime.GOOS], exec.LookPath)
}

func search(paths []string, lookPath func(string) (string, error)) (string, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	for _, name := range pathNames {
		if path, err := lookPath(name); err == nil {
			return path, nil
		}
	}
	return "", ErrNotFound
}
