package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.askfolder/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".askfolder", "logs")
	}
	return filepath.Join(home, ".askfolder", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "askfolder.log")
}
