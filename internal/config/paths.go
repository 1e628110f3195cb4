package config

import (
	"os"
	"path/filepath"
)

// PathManager resolves the application-private directories.
type PathManager struct {
	homeDir string
	appDir  string
}

// NewPathManager returns a path manager rooted at ~/.chatscope.
func NewPathManager() *PathManager {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return &PathManager{
		homeDir: homeDir,
		appDir:  filepath.Join(homeDir, ".chatscope"),
	}
}

// NewPathManagerAt roots the app directory somewhere explicit; used by tests
// and the --data-dir flag.
func NewPathManagerAt(dir string) *PathManager {
	return &PathManager{homeDir: dir, appDir: dir}
}

// AppDir returns the main application directory, creating it if needed.
func (pm *PathManager) AppDir() (string, error) {
	if err := os.MkdirAll(pm.appDir, 0o755); err != nil {
		return "", err
	}
	return pm.appDir, nil
}

// WorkDir returns the directory holding decrypted store copies.
func (pm *PathManager) WorkDir() (string, error) {
	return pm.subdir("work")
}

// LogsDir returns the directory for log files.
func (pm *PathManager) LogsDir() (string, error) {
	return pm.subdir("logs")
}

// ConfigPath returns the main configuration file path.
func (pm *PathManager) ConfigPath() (string, error) {
	dir, err := pm.AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

func (pm *PathManager) subdir(name string) (string, error) {
	dir, err := pm.AppDir()
	if err != nil {
		return "", err
	}
	sub := filepath.Join(dir, name)
	if err := os.MkdirAll(sub, 0o755); err != nil {
		return "", err
	}
	return sub, nil
}
