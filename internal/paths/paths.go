package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	daemonName = "echologd"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644

	// Default location of the record log. Lives under /var/tmp rather than
	// the XDG runtime dir so it is not tied to the login session lifetime.
	dataFile = "/var/tmp/echologd.data"
)

// Default path to the record log file.
func DataFile() string {
	return dataFile
}

// Path to the directory for runtime files (PID file).
//
//	Linux:   $XDG_RUNTIME_DIR/echologd or /run/user/<uid>/echologd
//	macOS:   ~/Library/Caches/echologd/run
func Runtime() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, daemonName)
	}
	return filepath.Join(xdg.CacheHome, daemonName, "run")
}

// Default path to the PID file.
//
//	Linux:   $XDG_RUNTIME_DIR/echologd/echologd.pid
//	macOS:   ~/Library/Caches/echologd/run/echologd.pid
func PIDFile() string {
	return filepath.Join(Runtime(), daemonName+".pid")
}
