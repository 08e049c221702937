package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths holds the per-user locations used when the command line does not
// name a config file and the journal path is relative.
type Paths struct {
	RootDir    string
	ConfigFile string
}

func ResolvePaths() (Paths, error) {
	cfgRoot, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve config dir: %w", err)
	}
	root := filepath.Join(cfgRoot, Name)

	return Paths{
		RootDir:    root,
		ConfigFile: filepath.Join(root, ConfigFilename),
	}, nil
}

// DataFile resolves a relative data path against the config root and makes
// sure its directory exists.
func (p Paths) DataFile(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.RootDir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return path, nil
}
